package events

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// listenerBuffer is how many events a listener may lag behind before it
// starts losing them.
const listenerBuffer = 64

type listener struct {
	dropped atomic.Uint64
}

// EventHub fans daemon events out to SSE listeners. A listener that falls
// behind loses events rather than stalling the publisher; losses are
// counted per listener.
type EventHub struct {
	mu        sync.RWMutex
	listeners map[chan Event]*listener
	dropped   atomic.Uint64
}

func NewEventHub() *EventHub {
	return &EventHub{listeners: make(map[chan Event]*listener)}
}

// Subscribe attaches a listener. The channel is closed by Unsubscribe.
func (h *EventHub) Subscribe() chan Event {
	ch := make(chan Event, listenerBuffer)
	h.mu.Lock()
	h.listeners[ch] = &listener{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe detaches ch and closes it. It returns how many events ch
// missed. Unknown channels are ignored.
func (h *EventHub) Unsubscribe(ch chan Event) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.listeners[ch]
	if !ok {
		return 0
	}
	delete(h.listeners, ch)
	close(ch)
	return l.dropped.Load()
}

// Len returns the number of listeners.
func (h *EventHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Dropped returns the number of events lost across all listeners so far.
func (h *EventHub) Dropped() uint64 {
	return h.dropped.Load()
}

// Publish encodes payload and offers it to every listener without blocking.
func (h *EventHub) Publish(name string, payload any) {
	if h == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).WithField("event", name).Error("failed to marshal event")
		return
	}
	ev := Event{Name: name, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch, l := range h.listeners {
		select {
		case ch <- ev:
		default:
			if l.dropped.Inc() == 1 {
				logrus.WithField("event", name).Debug("event listener is lagging, dropping events")
			}
			h.dropped.Inc()
		}
	}
}
