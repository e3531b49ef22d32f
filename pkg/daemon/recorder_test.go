package daemon

import (
	"sync"
	"testing"
	"time"
)

func TestSampleRecorder_GetRecordsIn(t *testing.T) {
	type fields struct {
		MaxRecordCount  int
		LastSampleTimes []time.Time
		mu              *sync.Mutex
	}
	type args struct {
		last time.Duration
	}
	tests := []struct {
		name   string
		fields fields
		args   args
		want   int
	}{
		{
			name: "test empty records",
			fields: fields{
				MaxRecordCount:  10,
				LastSampleTimes: []time.Time{},
				mu:              &sync.Mutex{},
			},
			args: args{
				last: time.Second,
			},
			want: 0,
		},
		{
			name: "test records inside window",
			fields: fields{
				MaxRecordCount: 10,
				LastSampleTimes: []time.Time{
					time.Now().Add(-300 * time.Millisecond),
					time.Now().Add(-200 * time.Millisecond),
					time.Now().Add(-100 * time.Millisecond),
				},
				mu: &sync.Mutex{},
			},
			args: args{
				last: time.Second,
			},
			want: 3,
		},
		{
			name: "test stale records are not counted",
			fields: fields{
				MaxRecordCount: 10,
				LastSampleTimes: []time.Time{
					time.Now().Add(-5 * time.Second),
					time.Now().Add(-3 * time.Second),
					time.Now().Add(-500 * time.Millisecond),
				},
				mu: &sync.Mutex{},
			},
			args: args{
				last: time.Second,
			},
			want: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &SampleRecorder{
				MaxRecordCount:  tt.fields.MaxRecordCount,
				LastSampleTimes: tt.fields.LastSampleTimes,
				mu:              tt.fields.mu,
			}
			if got := r.GetRecordsIn(tt.args.last); got != tt.want {
				t.Errorf("GetRecordsIn() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSampleRecorder_Capacity(t *testing.T) {
	r := NewSampleRecorder(3)
	base := time.Now()
	for i := 0; i < 5; i++ {
		r.AddRecord(base.Add(time.Duration(i) * time.Millisecond))
	}

	if len(r.LastSampleTimes) != 3 {
		t.Fatalf("expected 3 records, got %d", len(r.LastSampleTimes))
	}
	if !r.LastRecord().Equal(base.Add(4 * time.Millisecond).Round(0)) {
		t.Errorf("LastRecord() = %v", r.LastRecord())
	}

	r.ClearRecords()
	if !r.LastRecord().IsZero() {
		t.Errorf("expected no records after ClearRecords")
	}
}

func TestSampleRecorder_Rate(t *testing.T) {
	r := NewSampleRecorder(100)
	now := time.Now()
	for i := 9; i >= 0; i-- {
		r.AddRecord(now.Add(-time.Duration(i) * 10 * time.Millisecond))
	}

	if got := r.Rate(time.Second); got != 10 {
		t.Errorf("Rate(1s) = %v, want 10", got)
	}
	if got := r.Rate(0); got != 0 {
		t.Errorf("Rate(0) = %v, want 0", got)
	}
}
