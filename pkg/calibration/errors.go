package calibration

import "errors"

var (
	// ErrCalibrationInProgress is returned when a run is started while
	// another one is in flight.
	ErrCalibrationInProgress = errors.New("calibration already in progress")
	// ErrDeviceFault wraps errors reported by the tracker while committing a
	// point or computing the model.
	ErrDeviceFault = errors.New("tracker reported a calibration fault")
	// ErrConnectionLost is returned when the tracker disconnects mid-run.
	ErrConnectionLost = errors.New("tracker connection lost during calibration")
	// ErrSurfaceClosed is returned when the surface can no longer accept work.
	ErrSurfaceClosed = errors.New("calibration surface closed")
)
