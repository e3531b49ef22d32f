// Package dispatch provides a single-goroutine cooperative task queue.
//
// State owned by a Dispatcher is only ever touched from tasks it runs, so
// code running on other goroutines (device callbacks, HTTP handlers) submits
// work with Post instead of mutating that state directly. Timers created with
// NewTimer fire on the same goroutine.
package dispatch

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrClosed is returned when submitting work to a closed Dispatcher.
var ErrClosed = errors.New("dispatcher closed")

// Dispatcher runs submitted tasks one at a time, in submission order.
type Dispatcher struct {
	name string

	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

// New starts a Dispatcher. name is only used for logging.
func New(name string) *Dispatcher {
	d := &Dispatcher{
		name: name,
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)

	log := logrus.WithField("dispatcher", d.name)
	log.Debug("dispatcher started")
	defer log.Debug("dispatcher stopped")

	for {
		select {
		case <-d.quit:
			return
		case <-d.wake:
		}

		for {
			d.mu.Lock()
			if len(d.queue) == 0 || d.closed {
				d.mu.Unlock()
				break
			}
			task := d.queue[0]
			d.queue[0] = nil
			d.queue = d.queue[1:]
			d.mu.Unlock()

			d.exec(log, task)
		}
	}
}

func (d *Dispatcher) exec(log *logrus.Entry, task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("dispatcher task panicked")
		}
	}()
	task()
}

// Post queues fn and returns immediately. It never blocks. Post reports
// false if the dispatcher is closed, in which case fn will not run.
func (d *Dispatcher) Post(fn func()) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return true
}

// Invoke runs fn on the dispatcher and waits for it to return. It must not
// be called from a task running on the same dispatcher.
func (d *Dispatcher) Invoke(fn func()) error {
	finished := make(chan struct{})
	if !d.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}

	select {
	case <-finished:
		return nil
	case <-d.done:
		return ErrClosed
	}
}

// Close stops the dispatcher. Tasks still queued are dropped.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.queue = nil
	d.mu.Unlock()

	close(d.quit)
	<-d.done
}

// Done is closed once the dispatcher goroutine has exited.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}
