package calibration

import (
	"fmt"

	"github.com/charlie0129/gazeserver/pkg/tracker"
)

// FixationPoint is a normalized on-screen target. Both components are in
// [0,1], with (0,0) at the top-left corner.
type FixationPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewFixationPoint validates x and y.
func NewFixationPoint(x, y float64) (FixationPoint, error) {
	if x < 0 || x > 1 || y < 0 || y > 1 {
		return FixationPoint{}, fmt.Errorf("fixation point (%g, %g) out of range [0,1]", x, y)
	}
	return FixationPoint{X: x, Y: y}, nil
}

// Point2D converts p to the tracker's coordinate type.
func (p FixationPoint) Point2D() tracker.Point2D {
	return tracker.Point2D{X: p.X, Y: p.Y}
}

func (p FixationPoint) String() string {
	return fmt.Sprintf("(%.2f, %.2f)", p.X, p.Y)
}

// DefaultPoints returns the five targets in presentation order.
func DefaultPoints() []FixationPoint {
	return []FixationPoint{
		{X: 0.1, Y: 0.1},
		{X: 0.5, Y: 0.5},
		{X: 0.9, Y: 0.1},
		{X: 0.9, Y: 0.9},
		{X: 0.1, Y: 0.9},
	}
}

// Sequence is an ordered queue of fixation points. Each point is handed out
// exactly once. A Sequence is not safe for concurrent use.
type Sequence struct {
	points []FixationPoint
}

// NewSequence returns a fresh sequence over points, or the default points
// when none are given.
func NewSequence(points ...FixationPoint) *Sequence {
	if len(points) == 0 {
		points = DefaultPoints()
	}
	return &Sequence{points: append([]FixationPoint(nil), points...)}
}

// Len returns the number of pending points.
func (s *Sequence) Len() int {
	return len(s.points)
}

// Next removes and returns the next point. ok is false when the sequence is
// exhausted.
func (s *Sequence) Next() (p FixationPoint, ok bool) {
	if len(s.points) == 0 {
		return FixationPoint{}, false
	}
	p = s.points[0]
	s.points = s.points[1:]
	return p, true
}

// Clear discards all pending points.
func (s *Sequence) Clear() {
	s.points = nil
}
