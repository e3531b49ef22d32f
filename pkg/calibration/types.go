package calibration

import (
	"time"

	"github.com/charlie0129/gazeserver/pkg/tracker"
)

// Phase defines phases of a calibration run.
type Phase string

const (
	PhaseIdle       Phase = "Idle"
	PhasePresenting Phase = "PresentingPoint"
	PhaseDwelling   Phase = "Dwelling"
	PhaseCommitting Phase = "CommittingPoint"
	PhaseComputing  Phase = "ComputingModel"
	PhaseDone       Phase = "Done"
	PhaseAborted    Phase = "Aborted"
)

// Terminal reports whether p ends a run.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseAborted
}

// Transition describes one phase change of a run.
type Transition struct {
	From  Phase          `json:"from"`
	To    Phase          `json:"to"`
	Point *FixationPoint `json:"point,omitempty"`
	// Err is set on the terminal transition of a failed run.
	Err error     `json:"-"`
	At  time.Time `json:"at"`
}

// Status is a synthesized view model exposed via HTTP and used by the CLI.
type Status struct {
	Phase           Phase          `json:"phase"`
	TrackerID       string         `json:"trackerId,omitempty"`
	Point           *FixationPoint `json:"point,omitempty"`
	PointsRemaining int            `json:"pointsRemaining"`
	PointsCommitted int            `json:"pointsCommitted"`
	StartedAt       time.Time      `json:"startedAt"`
	FinishedAt      time.Time      `json:"finishedAt"`
	Running         bool           `json:"running"`
	LastError       string         `json:"lastError,omitempty"`
	HasModel        bool           `json:"hasModel"`
}

// Result is returned by the calibration HTTP API once a run concludes.
type Result struct {
	Success     bool                 `json:"success"`
	Error       string               `json:"error,omitempty"`
	Calibration *tracker.Calibration `json:"calibration,omitempty"`
	Duration    time.Duration        `json:"duration"`
}
