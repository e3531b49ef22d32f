package broadcast

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"pgregory.net/rapid"
)

type recorder struct {
	mu     sync.Mutex
	msgs   [][]byte
	closed atomic.Bool
	delay  time.Duration
	fail   bool
	block  chan struct{}
}

func (r *recorder) Send(msg []byte) error {
	if r.block != nil {
		<-r.block
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.fail {
		return errors.New("connection reset")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) Close() error {
	r.closed.Store(true)
	return nil
}

func (r *recorder) received() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0, len(r.msgs))
	for _, m := range r.msgs {
		var v sample
		_ = json.Unmarshal(m, &v)
		out = append(out, v.Seq)
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

type sample struct {
	Seq int `json:"Seq"`
}

func seqs(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestBroadcaster_OrderedToEverySubscriber(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 200).Draw(t, "samples")
		m := rapid.IntRange(1, 8).Draw(t, "subscribers")

		reg := NewRegistry()
		b := New(reg)
		defer b.Close()

		subs := make([]*recorder, m)
		for i := range subs {
			subs[i] = &recorder{}
			reg.Add(subs[i])
		}

		for i := 0; i < n; i++ {
			require.NoError(t, b.Publish(sample{Seq: i}))
		}

		for _, s := range subs {
			require.Eventually(t, func() bool { return s.count() == n }, 5*time.Second, time.Millisecond)
			require.Equal(t, seqs(n), s.received())
		}
	})
}

func TestBroadcaster_FailingSubscriberIsolated(t *testing.T) {
	reg := NewRegistry()
	b := New(reg)
	defer b.Close()

	good := &recorder{}
	bad := &recorder{fail: true}
	reg.Add(bad)
	goodID := reg.Add(good)

	for i := 0; i < 50; i++ {
		require.NoError(t, b.Publish(sample{Seq: i}))
	}

	require.Eventually(t, func() bool { return good.count() == 50 }, time.Second, time.Millisecond)
	require.Equal(t, seqs(50), good.received())

	// Failures are counted, not propagated, and do not remove the entry.
	require.Equal(t, 2, reg.Len())
	require.Eventually(t, func() bool {
		for _, e := range b.Stats().Entries {
			if e.ID != goodID && e.Failed == 50 {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
}

func TestBroadcaster_DuplicateRegistration(t *testing.T) {
	reg := NewRegistry()
	b := New(reg)
	defer b.Close()

	s := &recorder{}
	reg.Add(s)
	reg.Add(s)
	require.Equal(t, 2, reg.Len())

	require.NoError(t, b.Publish(sample{Seq: 7}))
	require.Eventually(t, func() bool { return s.count() == 2 }, time.Second, time.Millisecond)
	require.Equal(t, []int{7, 7}, s.received())

	require.Equal(t, 2, reg.RemoveSubscriber(s))
	require.Equal(t, 0, reg.Len())
	require.Equal(t, 0, reg.RemoveSubscriber(s))
}

func TestBroadcaster_PublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	reg := NewRegistry()
	b := New(reg)
	defer b.Close()

	stuck := &recorder{block: make(chan struct{})}
	defer close(stuck.block)
	fast := &recorder{}
	reg.Add(stuck)
	reg.Add(fast)

	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, b.Publish(sample{Seq: i}))
	}
	require.Less(t, time.Since(start), time.Second)

	require.Eventually(t, func() bool { return fast.count() == 100 }, time.Second, time.Millisecond)
}

func TestBroadcaster_BurstReachesSlowSubscriber(t *testing.T) {
	reg := NewRegistry()
	b := New(reg)
	defer b.Close()

	slow := &recorder{delay: 50 * time.Microsecond}
	reg.Add(slow)

	const n = 3000
	for i := 0; i < n; i++ {
		require.NoError(t, b.Publish(sample{Seq: i}))
	}

	require.Eventually(t, func() bool { return slow.count() == n }, 10*time.Second, time.Millisecond)
	require.Equal(t, seqs(n), slow.received())
	require.Equal(t, 1, reg.Len())
	require.False(t, slow.closed.Load())
	require.Equal(t, uint64(0), b.Stats().Evicted)
}

func TestBroadcaster_EvictsWhenBacklogFull(t *testing.T) {
	reg := NewRegistry()
	b := New(reg, WithBacklog(4))
	defer b.Close()

	stuck := &recorder{block: make(chan struct{})}
	defer close(stuck.block)
	healthy := &recorder{}
	reg.Add(stuck)
	reg.Add(healthy)

	// Publish at the pace the healthy subscriber drains, so only the stuck
	// one can fill its queue.
	const n = 20
	for i := 0; i < n; i++ {
		require.NoError(t, b.Publish(sample{Seq: i}))
		want := i + 1
		require.Eventually(t, func() bool { return healthy.count() == want }, time.Second, time.Millisecond)
	}

	require.Eventually(t, stuck.closed.Load, time.Second, time.Millisecond)
	require.Equal(t, 1, reg.Len())
	require.Equal(t, uint64(1), b.Stats().Evicted)
	require.False(t, healthy.closed.Load())
	require.Equal(t, seqs(n), healthy.received())
}

func TestBroadcaster_RemovedSubscriberStopsReceiving(t *testing.T) {
	reg := NewRegistry()
	b := New(reg)
	defer b.Close()

	s := &recorder{}
	id := reg.Add(s)
	require.NoError(t, b.Publish(sample{Seq: 1}))
	require.Eventually(t, func() bool { return s.count() == 1 }, time.Second, time.Millisecond)

	require.True(t, reg.Remove(id))
	require.False(t, reg.Remove(id))
	require.NoError(t, b.Publish(sample{Seq: 2}))

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, []int{1}, s.received())
	require.Empty(t, b.Stats().Entries)
}

func TestBroadcaster_ConcurrentChurn(t *testing.T) {
	reg := NewRegistry()
	b := New(reg)
	defer b.Close()

	stable := &recorder{}
	reg.Add(stable)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = b.Publish(sample{Seq: i})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			id := reg.Add(&recorder{})
			reg.Remove(id)
		}
	}()
	wg.Wait()

	require.Eventually(t, func() bool { return stable.count() == 500 }, 5*time.Second, time.Millisecond)
	require.Equal(t, seqs(500), stable.received())
	require.Equal(t, 1, reg.Len())
}

func TestBroadcaster_MarshalError(t *testing.T) {
	b := New(NewRegistry())
	defer b.Close()
	require.Error(t, b.Publish(make(chan int)))
}
