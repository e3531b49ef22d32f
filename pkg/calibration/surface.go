package calibration

import "github.com/charlie0129/gazeserver/pkg/dispatch"

// Surface renders the current fixation point.
//
// A Surface owns a Dispatcher. Show, SetPoint, Point and Close must only be
// called from tasks running on that dispatcher; callers on other goroutines
// submit them through Dispatcher().Post.
type Surface interface {
	Dispatcher() *dispatch.Dispatcher
	// Show presents the surface and calls ready once, on the dispatcher,
	// after the surface has loaded.
	Show(ready func())
	SetPoint(p FixationPoint)
	Point() FixationPoint
	// Close hides the surface. Closing a closed surface is a no-op.
	Close()
}
