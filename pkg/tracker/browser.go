package tracker

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// MockBrowser is a Browser over a fixed set of simulated trackers.
type MockBrowser struct {
	mu       sync.RWMutex
	trackers map[string]*Mock
	changed  Handlers[BrowserEvent]
}

// BrowserEvent is emitted when a tracker appears or disappears.
type BrowserEvent struct {
	Info  Info
	Found bool
}

var _ Browser = &MockBrowser{}

// NewMockBrowser returns a browser that already knows about trackers.
func NewMockBrowser(trackers ...*Mock) *MockBrowser {
	b := &MockBrowser{trackers: make(map[string]*Mock)}
	for _, t := range trackers {
		b.trackers[t.ID()] = t
	}
	return b
}

// Add makes t discoverable and notifies listeners.
func (b *MockBrowser) Add(t *Mock) {
	b.mu.Lock()
	b.trackers[t.ID()] = t
	b.mu.Unlock()

	logrus.WithField("tracker", t.ID()).Info("tracker found")
	b.changed.Emit(BrowserEvent{Info: mockInfo(t), Found: true})
}

// Remove forgets the tracker with id and notifies listeners.
func (b *MockBrowser) Remove(id string) {
	b.mu.Lock()
	t, ok := b.trackers[id]
	delete(b.trackers, id)
	b.mu.Unlock()

	if !ok {
		return
	}
	logrus.WithField("tracker", id).Info("tracker removed")
	b.changed.Emit(BrowserEvent{Info: mockInfo(t), Found: false})
}

func (b *MockBrowser) List() []Info {
	b.mu.RLock()
	defer b.mu.RUnlock()

	infos := make([]Info, 0, len(b.trackers))
	for _, t := range b.trackers {
		infos = append(infos, mockInfo(t))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

func (b *MockBrowser) Open(id string) (Tracker, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if id == "" {
		// First tracker in id order, like a UI that preselects the first match.
		var first *Mock
		for _, t := range b.trackers {
			if first == nil || t.ID() < first.ID() {
				first = t
			}
		}
		if first == nil {
			return nil, ErrNotFound
		}
		return first, nil
	}

	t, ok := b.trackers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

func (b *MockBrowser) OnChanged(fn func(info Info, found bool)) Subscription {
	return b.changed.Add(func(e BrowserEvent) { fn(e.Info, e.Found) })
}

// Close closes every known tracker.
func (b *MockBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.trackers {
		_ = t.Close()
	}
	return nil
}

func mockInfo(t *Mock) Info {
	return Info{
		ID:       t.ID(),
		Model:    "Simulated",
		Name:     "simulated-" + t.ID(),
		Status:   "ok",
		Firmware: "sim-1.0",
	}
}
