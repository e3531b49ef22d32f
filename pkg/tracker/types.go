package tracker

import "encoding/json"

// DefaultValidityThreshold is the validity code below which an eye is
// considered tracked. Codes are ordinal: 0 is the most certain.
const DefaultValidityThreshold = 2

// Point2D is a normalized screen coordinate.
type Point2D struct {
	X float64 `json:"X"`
	Y float64 `json:"Y"`
}

// Point3D is a position in the tracker's coordinate system, in millimeters.
type Point3D struct {
	X float64 `json:"X"`
	Y float64 `json:"Y"`
	Z float64 `json:"Z"`
}

// GazeSample is one reading emitted by a tracker while tracking.
//
// Field names follow the vendor's gaze data item so that existing
// subscribers keep decoding the stream unchanged.
type GazeSample struct {
	Timestamp int64 `json:"Timestamp"`

	LeftGazePoint2D  *Point2D `json:"LeftGazePoint2D"`
	RightGazePoint2D *Point2D `json:"RightGazePoint2D"`
	LeftValidity     int      `json:"LeftValidity"`
	RightValidity    int      `json:"RightValidity"`

	LeftEyePosition3D  *Point3D `json:"LeftEyePosition3D,omitempty"`
	RightEyePosition3D *Point3D `json:"RightEyePosition3D,omitempty"`
	LeftGazePoint3D    *Point3D `json:"LeftGazePoint3D,omitempty"`
	RightGazePoint3D   *Point3D `json:"RightGazePoint3D,omitempty"`
	LeftPupilDiameter  float64  `json:"LeftPupilDiameter"`
	RightPupilDiameter float64  `json:"RightPupilDiameter"`

	// Extra carries device-specific fields verbatim.
	Extra json.RawMessage `json:"Extra,omitempty"`
}

// LeftValid reports whether the left eye validity is below threshold.
func (s GazeSample) LeftValid(threshold int) bool {
	return s.LeftValidity < threshold
}

// RightValid reports whether the right eye validity is below threshold.
func (s GazeSample) RightValid(threshold int) bool {
	return s.RightValidity < threshold
}

// Calibration is the opaque per-user model computed by a tracker after a
// successful calibration run.
type Calibration struct {
	TrackerID string `json:"trackerId"`
	Points    int    `json:"points"`
	Data      []byte `json:"data"`
}

// Info describes a discovered tracker.
type Info struct {
	ID       string `json:"id"`
	Model    string `json:"model"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Firmware string `json:"firmware,omitempty"`
}
