package daemon

import (
	"sync"
	"time"
)

// SampleRecorder records the arrival times of the last N gaze samples.
type SampleRecorder struct {
	MaxRecordCount  int
	LastSampleTimes []time.Time
	mu              *sync.Mutex
}

// NewSampleRecorder returns a new SampleRecorder.
func NewSampleRecorder(maxRecordCount int) *SampleRecorder {
	return &SampleRecorder{
		MaxRecordCount:  maxRecordCount,
		LastSampleTimes: make([]time.Time, 0, maxRecordCount),
		mu:              &sync.Mutex{},
	}
}

// AddRecord adds a new record.
func (r *SampleRecorder) AddRecord(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Strip monotonic clock reading.
	t = t.Round(0)

	if len(r.LastSampleTimes) >= r.MaxRecordCount {
		r.LastSampleTimes = r.LastSampleTimes[1:]
	}
	r.LastSampleTimes = append(r.LastSampleTimes, t)
}

// AddRecordNow adds a new record with the current time.
func (r *SampleRecorder) AddRecordNow() {
	r.AddRecord(time.Now())
}

// ClearRecords clears all records.
func (r *SampleRecorder) ClearRecords() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.LastSampleTimes = make([]time.Time, 0, r.MaxRecordCount)
}

// GetRecordsIn returns the number of records within the last duration.
func (r *SampleRecorder) GetRecordsIn(last time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for i := len(r.LastSampleTimes) - 1; i >= 0; i-- {
		if time.Since(r.LastSampleTimes[i]) > last {
			break
		}
		count++
	}
	return count
}

// Rate returns the sample rate in Hz over the last duration.
func (r *SampleRecorder) Rate(last time.Duration) float64 {
	if last <= 0 {
		return 0
	}
	return float64(r.GetRecordsIn(last)) / last.Seconds()
}

// LastRecord returns the most recent record, or the zero time.
func (r *SampleRecorder) LastRecord() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.LastSampleTimes) == 0 {
		return time.Time{}
	}
	return r.LastSampleTimes[len(r.LastSampleTimes)-1]
}
