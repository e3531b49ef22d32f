package dispatch

import (
	"sync"
	"time"
)

// Timer ticks every interval on its Dispatcher until stopped. A tick that
// was already in flight when Stop was called does not run.
type Timer struct {
	d        *Dispatcher
	interval time.Duration
	tick     func()

	mu      sync.Mutex
	t       *time.Timer
	gen     uint64
	running bool
}

// NewTimer returns a stopped Timer that calls tick on d.
func (d *Dispatcher) NewTimer(interval time.Duration, tick func()) *Timer {
	return &Timer{d: d, interval: interval, tick: tick}
}

// Start arms the timer. Starting a running timer restarts its interval.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.t != nil {
		t.t.Stop()
	}
	t.gen++
	t.running = true
	t.arm(t.gen)
}

// arm must be called with t.mu held.
func (t *Timer) arm(gen uint64) {
	t.t = time.AfterFunc(t.interval, func() {
		t.d.Post(func() { t.fire(gen) })
	})
}

func (t *Timer) fire(gen uint64) {
	t.mu.Lock()
	if !t.running || t.gen != gen {
		t.mu.Unlock()
		return
	}
	t.arm(gen)
	t.mu.Unlock()

	t.tick()
}

// Stop disarms the timer.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.running = false
	t.gen++
	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
}

// Running reports whether the timer is armed.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// SetInterval changes the interval used from the next Start.
func (t *Timer) SetInterval(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interval = d
}
