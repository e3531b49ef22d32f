package tracker

import "errors"

var (
	// ErrNotConnected is returned by operations on a closed or lost tracker.
	ErrNotConnected = errors.New("tracker not connected")
	// ErrNotCalibrating is returned when a calibration operation is issued
	// outside calibration mode.
	ErrNotCalibrating = errors.New("tracker not in calibration mode")
	// ErrNotFound is returned when a tracker id is not known to a Browser.
	ErrNotFound = errors.New("tracker not found")
)

// Tracker is the capability exposed by a gaze-tracking device.
//
// Async operations complete exactly once per invocation, on the device's own
// goroutine, by invoking the handlers registered through the On* methods.
// Handlers must not block.
type Tracker interface {
	ID() string

	StartCalibration() error
	StopCalibration() error
	// AddCalibrationPointAsync commits a calibration sample at p. Completion
	// is reported to OnAddCalibrationPointCompleted handlers.
	AddCalibrationPointAsync(p Point2D)
	// ComputeCalibrationAsync computes the calibration model. Completion is
	// reported to OnComputeCalibrationCompleted handlers.
	ComputeCalibrationAsync()
	GetCalibration() (*Calibration, error)

	StartTracking() error
	StopTracking() error

	OnAddCalibrationPointCompleted(fn func(err error)) Subscription
	OnComputeCalibrationCompleted(fn func(err error)) Subscription
	OnConnectionError(fn func(err error)) Subscription
	OnGazeData(fn func(s GazeSample)) Subscription

	Close() error
}

// Subscription is a registered notification handler.
type Subscription interface {
	// Unsubscribe removes the handler. It is safe to call more than once.
	Unsubscribe()
}

// Browser enumerates trackers and opens them.
type Browser interface {
	List() []Info
	Open(id string) (Tracker, error)
	// OnChanged registers fn to be called with found (true) or removed
	// (false) trackers.
	OnChanged(fn func(info Info, found bool)) Subscription
}
