package broadcast

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/atomic"
)

// Subscriber is an outbound channel to one client.
//
// Send may be slow or fail. Implementations must be comparable, in practice
// a pointer, so that RemoveSubscriber can find every entry for a handle.
type Subscriber interface {
	Send(msg []byte) error
	Close() error
}

// Registry is the set of live subscribers. It is safe for concurrent use.
//
// Registering the same handle twice creates two entries; each receives its
// own copy of every sample.
type Registry struct {
	entries *xsync.MapOf[uint64, Subscriber]
	nextID  atomic.Uint64

	mu       sync.RWMutex
	onRemove []func(id uint64, sub Subscriber)
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: xsync.NewMapOf[uint64, Subscriber]()}
}

// Add registers sub and returns the id of the new entry.
func (r *Registry) Add(sub Subscriber) uint64 {
	id := r.nextID.Inc()
	r.entries.Store(id, sub)
	return id
}

// Remove deletes the entry id. It reports whether the entry existed.
func (r *Registry) Remove(id uint64) bool {
	sub, ok := r.entries.LoadAndDelete(id)
	if !ok {
		return false
	}

	r.mu.RLock()
	fns := r.onRemove
	r.mu.RUnlock()
	for _, fn := range fns {
		fn(id, sub)
	}
	return true
}

// RemoveSubscriber deletes every entry registered for sub and returns how
// many were removed. Removing an unknown handle is a no-op.
func (r *Registry) RemoveSubscriber(sub Subscriber) int {
	var ids []uint64
	r.entries.Range(func(id uint64, s Subscriber) bool {
		if s == sub {
			ids = append(ids, id)
		}
		return true
	})

	n := 0
	for _, id := range ids {
		if r.Remove(id) {
			n++
		}
	}
	return n
}

// Has reports whether the entry id is registered.
func (r *Registry) Has(id uint64) bool {
	_, ok := r.entries.Load(id)
	return ok
}

// Range calls fn for each entry until fn returns false. Entries added or
// removed while ranging may or may not be visited.
func (r *Registry) Range(fn func(id uint64, sub Subscriber) bool) {
	r.entries.Range(fn)
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return r.entries.Size()
}

// OnRemove calls fn after an entry has been removed.
func (r *Registry) OnRemove(fn func(id uint64, sub Subscriber)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRemove = append(r.onRemove, fn)
}
