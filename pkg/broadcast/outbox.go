package broadcast

import (
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// outbox queues serialized samples for one registry entry and sends them
// from a single goroutine, in order.
type outbox struct {
	id      uint64
	sub     Subscriber
	backlog int
	log     *logrus.Entry

	mu     sync.Mutex
	queue  [][]byte
	closed bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}

	sent   atomic.Uint64
	failed atomic.Uint64
}

func newOutbox(id uint64, sub Subscriber, backlog int) *outbox {
	o := &outbox{
		id:      id,
		sub:     sub,
		backlog: backlog,
		log:     logrus.WithField("subscriber", id),
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go o.run()
	return o
}

// push enqueues msg. It returns false if the outbox is closed or its backlog
// is full, in which case msg is dropped.
func (o *outbox) push(msg []byte) bool {
	o.mu.Lock()
	if o.closed || (o.backlog > 0 && len(o.queue) >= o.backlog) {
		o.mu.Unlock()
		return false
	}
	o.queue = append(o.queue, msg)
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	return true
}

func (o *outbox) pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

func (o *outbox) run() {
	defer close(o.done)

	for {
		select {
		case <-o.quit:
			return
		case <-o.wake:
		}

		for {
			o.mu.Lock()
			if o.closed || len(o.queue) == 0 {
				o.mu.Unlock()
				break
			}
			msg := o.queue[0]
			o.queue[0] = nil
			o.queue = o.queue[1:]
			o.mu.Unlock()

			if err := o.sub.Send(msg); err != nil {
				o.failed.Inc()
				o.log.WithError(err).Debug("failed to send sample")
				continue
			}
			o.sent.Inc()
		}
	}
}

// close stops the sender. Queued samples are discarded. A Send in progress
// is not interrupted.
func (o *outbox) close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.queue = nil
	o.mu.Unlock()

	close(o.quit)
}
