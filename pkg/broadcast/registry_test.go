package broadcast

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	var removed []uint64
	reg.OnRemove(func(id uint64, _ Subscriber) { removed = append(removed, id) })

	a, b := &recorder{}, &recorder{}
	idA := reg.Add(a)
	idB := reg.Add(b)
	require.NotEqual(t, idA, idB)
	require.Equal(t, 2, reg.Len())
	require.True(t, reg.Has(idA))

	seen := map[uint64]Subscriber{}
	reg.Range(func(id uint64, sub Subscriber) bool {
		seen[id] = sub
		return true
	})
	require.Equal(t, map[uint64]Subscriber{idA: a, idB: b}, seen)

	require.Equal(t, 1, reg.RemoveSubscriber(a))
	require.False(t, reg.Has(idA))
	require.Equal(t, []uint64{idA}, removed)

	// Removing handles does not close them.
	require.False(t, a.closed.Load())
}
