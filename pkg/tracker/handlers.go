package tracker

import (
	"slices"
	"sync"
)

// Handlers is a set of notification handlers of one kind. Tracker
// implementations embed one per notification.
type Handlers[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	fns    map[uint64]func(T)
}

// Add registers fn and returns its subscription.
func (h *Handlers[T]) Add(fn func(T)) Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.fns == nil {
		h.fns = make(map[uint64]func(T))
	}
	h.nextID++
	id := h.nextID
	h.fns[id] = fn

	return &handlerSub[T]{h: h, id: id}
}

// Emit calls every registered handler with v, in registration order.
func (h *Handlers[T]) Emit(v T) {
	h.mu.RLock()
	ids := make([]uint64, 0, len(h.fns))
	for id := range h.fns {
		ids = append(ids, id)
	}
	fns := make([]func(T), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, h.fns[id])
	}
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Len returns the number of registered handlers.
func (h *Handlers[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.fns)
}

func (h *Handlers[T]) remove(id uint64) {
	h.mu.Lock()
	delete(h.fns, id)
	h.mu.Unlock()
}

type handlerSub[T any] struct {
	h    *Handlers[T]
	id   uint64
	once sync.Once
}

func (s *handlerSub[T]) Unsubscribe() {
	s.once.Do(func() { s.h.remove(s.id) })
}
