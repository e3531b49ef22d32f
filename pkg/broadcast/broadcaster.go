package broadcast

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// DefaultBacklog leaves per-entry queues unbounded. A slow subscriber then
// accumulates backlog until its transport drops it.
const DefaultBacklog = 0

// Broadcaster delivers every published sample to every registry entry.
type Broadcaster struct {
	reg     *Registry
	backlog int

	outboxes  *xsync.MapOf[uint64, *outbox]
	published atomic.Uint64
	evicted   atomic.Uint64
	closed    atomic.Bool
}

// Option configures a Broadcaster.
type Option func(b *Broadcaster)

// WithBacklog opts into eviction. An entry whose queue already holds n
// samples when another arrives is removed from the registry and closed.
// Zero or a negative value disables eviction.
func WithBacklog(n int) Option {
	return func(b *Broadcaster) {
		b.backlog = n
	}
}

// New returns a Broadcaster publishing to reg.
func New(reg *Registry, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		reg:      reg,
		backlog:  DefaultBacklog,
		outboxes: xsync.NewMapOf[uint64, *outbox](),
	}
	for _, opt := range opts {
		opt(b)
	}

	reg.OnRemove(func(id uint64, _ Subscriber) {
		if o, ok := b.outboxes.LoadAndDelete(id); ok {
			o.close()
		}
	})

	return b
}

// Registry returns the registry b publishes to.
func (b *Broadcaster) Registry() *Registry {
	return b.reg
}

// Publish serializes sample as JSON once and queues it for every entry.
// It never blocks on a subscriber. Only a serialization error is returned;
// delivery failures are counted per entry.
func (b *Broadcaster) Publish(sample any) error {
	msg, err := json.Marshal(sample)
	if err != nil {
		return errors.Wrap(err, "failed to marshal sample")
	}
	b.PublishRaw(msg)
	return nil
}

// PublishRaw queues an already serialized message for every entry. msg must
// not be modified afterwards.
func (b *Broadcaster) PublishRaw(msg []byte) {
	if b.closed.Load() {
		return
	}
	b.published.Inc()

	b.reg.Range(func(id uint64, sub Subscriber) bool {
		o := b.outboxFor(id, sub)
		if o == nil {
			return true
		}
		if !o.push(msg) {
			b.evict(id, sub)
		}
		return true
	})
}

func (b *Broadcaster) outboxFor(id uint64, sub Subscriber) *outbox {
	o, loaded := b.outboxes.LoadOrCompute(id, func() *outbox {
		return newOutbox(id, sub, b.backlog)
	})
	if loaded {
		return o
	}

	// The entry may have been removed between Range and LoadOrCompute, in
	// which case the removal hook has already run and missed this outbox.
	if !b.reg.Has(id) {
		b.outboxes.Delete(id)
		o.close()
		return nil
	}
	return o
}

func (b *Broadcaster) evict(id uint64, sub Subscriber) {
	if !b.reg.Remove(id) {
		return
	}
	b.evicted.Inc()
	logrus.WithField("subscriber", id).Warn("subscriber backlog full, evicting")

	go func() {
		if err := sub.Close(); err != nil {
			logrus.WithField("subscriber", id).WithError(err).Debug("failed to close evicted subscriber")
		}
	}()
}

// EntryStats describes delivery to one registry entry.
type EntryStats struct {
	ID      uint64 `json:"id"`
	Sent    uint64 `json:"sent"`
	Failed  uint64 `json:"failed"`
	Pending int    `json:"pending"`
}

// Stats is a point in time view of the broadcaster.
type Stats struct {
	Subscribers int          `json:"subscribers"`
	Published   uint64       `json:"published"`
	Evicted     uint64       `json:"evicted"`
	Entries     []EntryStats `json:"entries"`
}

// Stats returns delivery counters for every entry that has received at
// least one sample.
func (b *Broadcaster) Stats() Stats {
	st := Stats{
		Subscribers: b.reg.Len(),
		Published:   b.published.Load(),
		Evicted:     b.evicted.Load(),
		Entries:     []EntryStats{},
	}
	b.outboxes.Range(func(id uint64, o *outbox) bool {
		st.Entries = append(st.Entries, EntryStats{
			ID:      id,
			Sent:    o.sent.Load(),
			Failed:  o.failed.Load(),
			Pending: o.pending(),
		})
		return true
	})
	sort.Slice(st.Entries, func(i, j int) bool { return st.Entries[i].ID < st.Entries[j].ID })
	return st
}

// Close stops every sender goroutine. Registered subscribers are left
// untouched; closing them is up to whoever registered them.
func (b *Broadcaster) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	b.outboxes.Range(func(id uint64, o *outbox) bool {
		o.close()
		b.outboxes.Delete(id)
		return true
	})
}
