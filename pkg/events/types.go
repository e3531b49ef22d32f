package events

import "encoding/json"

// Event name constants
const (
	CalibrationPhase  = "calibration.phase"
	CalibrationShown  = "calibration.shown"
	CalibrationPoint  = "calibration.point"
	CalibrationClosed = "calibration.closed"
	TrackerStatus     = "tracker.status"
	TrackerChanged    = "tracker.changed"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// CalibrationPhaseEvent is the typed payload for calibration.phase.
type CalibrationPhaseEvent struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message,omitempty"`
	Ts      int64  `json:"ts"`
}

// CalibrationPointEvent is the typed payload for calibration.point. X and Y
// are normalized to [0,1] with the origin at the top-left corner.
type CalibrationPointEvent struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	Ts int64   `json:"ts"`
}

// SurfaceEvent is the payload for calibration.shown and calibration.closed.
type SurfaceEvent struct {
	Ts int64 `json:"ts"`
}

// TrackerStatusEvent is the typed payload for tracker.status. Left and
// Right report whether each eye's latest sample was valid.
type TrackerStatusEvent struct {
	TrackerID string `json:"trackerId"`
	Left      bool   `json:"left"`
	Right     bool   `json:"right"`
	Ts        int64  `json:"ts"`
}

// TrackerChangedEvent is the typed payload for tracker.changed.
type TrackerChangedEvent struct {
	TrackerID string `json:"trackerId"`
	Found     bool   `json:"found"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.CalibrationPhaseEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.From, payload.To)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
