package client

import "errors"

var (
	// ErrDaemonNotRunning is returned when the daemon is not running
	ErrDaemonNotRunning = errors.New("daemon not running")

	// ErrNotFound is returned when 404 is returned from the daemon
	ErrNotFound = errors.New("404 not found")

	// ErrConflict is returned when the daemon is busy with a conflicting
	// operation, such as a calibration already in progress
	ErrConflict = errors.New("409 conflict")
)
