// Package tracker defines the gaze tracker capability consumed by the
// calibration runner and the tracking session:
//
//   - Tracker: calibration and tracking commands plus notification handlers
//   - GazeSample: one reading, serialized as-is to subscribers
//   - Browser: tracker discovery
//
// Mock and MockBrowser provide a simulated device that delivers its
// notifications on its own goroutine. The daemon uses them when no vendor
// backend is linked in, and tests use them to record call order.
package tracker
