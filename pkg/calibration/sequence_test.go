package calibration

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDefaultPoints(t *testing.T) {
	require.Equal(t, []FixationPoint{
		{X: 0.1, Y: 0.1},
		{X: 0.5, Y: 0.5},
		{X: 0.9, Y: 0.1},
		{X: 0.9, Y: 0.9},
		{X: 0.1, Y: 0.9},
	}, DefaultPoints())
}

func TestNewFixationPoint(t *testing.T) {
	_, err := NewFixationPoint(0, 1)
	require.NoError(t, err)

	_, err = NewFixationPoint(-0.1, 0.5)
	require.Error(t, err)

	_, err = NewFixationPoint(0.5, 1.01)
	require.Error(t, err)
}

func TestSequence_Defaults(t *testing.T) {
	s := NewSequence()
	require.Equal(t, 5, s.Len())

	p, ok := s.Next()
	require.True(t, ok)
	require.Equal(t, FixationPoint{X: 0.1, Y: 0.1}, p)
	require.Equal(t, 4, s.Len())

	s.Clear()
	require.Equal(t, 0, s.Len())
	_, ok = s.Next()
	require.False(t, ok)
}

func TestSequence_DoesNotAliasInput(t *testing.T) {
	in := []FixationPoint{{X: 0.2, Y: 0.2}, {X: 0.4, Y: 0.4}}
	s := NewSequence(in...)
	in[0] = FixationPoint{X: 1, Y: 1}

	p, _ := s.Next()
	require.Equal(t, FixationPoint{X: 0.2, Y: 0.2}, p)
}

func TestSequence_EachPointOnceInOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 20).Draw(t, "n")
		points := make([]FixationPoint, n)
		for i := range points {
			points[i] = FixationPoint{
				X: rapid.Float64Range(0, 1).Draw(t, "x"),
				Y: rapid.Float64Range(0, 1).Draw(t, "y"),
			}
		}

		s := NewSequence(points...)
		var got []FixationPoint
		for {
			p, ok := s.Next()
			if !ok {
				break
			}
			got = append(got, p)
		}
		if len(got) != n {
			t.Fatalf("got %d points, want %d", len(got), n)
		}
		for i := range got {
			if got[i] != points[i] {
				t.Fatalf("point %d: got %v, want %v", i, got[i], points[i])
			}
		}
	})
}
