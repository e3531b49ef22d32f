package calibration

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/charlie0129/gazeserver/pkg/dispatch"
	"github.com/charlie0129/gazeserver/pkg/tracker"
)

// DefaultDwell is how long each point is shown before its sample is committed.
const DefaultDwell = 1000 * time.Millisecond

// Runner walks a tracker through the calibration sequence on a Surface. Only
// one run can be in flight at a time.
type Runner struct {
	surface  Surface
	points   []FixationPoint
	observer func(Transition)

	mu      sync.Mutex
	dwell   time.Duration
	current *run
	last    Status
	model   *tracker.Calibration
}

// Option configures a Runner.
type Option func(r *Runner)

// WithDwell sets the dwell time per point.
func WithDwell(d time.Duration) Option {
	return func(r *Runner) {
		r.dwell = d
	}
}

// WithPoints replaces the default fixation points.
func WithPoints(points ...FixationPoint) Option {
	return func(r *Runner) {
		r.points = points
	}
}

// WithObserver calls fn on every phase transition. fn must not block.
// Transitions normally arrive on the surface's dispatcher, but the terminal
// transition of a run that never reached it (a failed StartCalibration or a
// closed dispatcher) is delivered from Run's or the device's goroutine.
func WithObserver(fn func(Transition)) Option {
	return func(r *Runner) {
		r.observer = fn
	}
}

// NewRunner returns a Runner presenting points on surface.
func NewRunner(surface Surface, opts ...Option) *Runner {
	r := &Runner{
		surface: surface,
		dwell:   DefaultDwell,
		last:    Status{Phase: PhaseIdle},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetDwell changes the dwell time used by subsequent runs.
func (r *Runner) SetDwell(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dwell = d
}

// Run calibrates t and blocks until the run has been torn down. It returns
// the computed model, or an error wrapping ErrDeviceFault or
// ErrConnectionLost. A failed run is not retried.
func (r *Runner) Run(t tracker.Tracker) (*tracker.Calibration, error) {
	r.mu.Lock()
	if r.current != nil {
		r.mu.Unlock()
		return nil, ErrCalibrationInProgress
	}
	rn := r.newRun(t)
	r.current = rn
	r.mu.Unlock()

	defer func() {
		st := rn.status()
		r.mu.Lock()
		defer r.mu.Unlock()
		r.current = nil
		if rn.model != nil {
			r.model = rn.model
		}
		st.HasModel = r.model != nil
		r.last = st
	}()

	rn.log.WithField("dwell", rn.dwell).Info("calibration starting")

	subs := rn.acquire()
	defer rn.release(subs)

	if err := t.StartCalibration(); err != nil {
		err = fmt.Errorf("%w: start calibration: %v", ErrDeviceFault, err)
		rn.conclude(PhaseAborted, nil, err)
		return nil, err
	}

	show := func() {
		// A connection error may have finished the run while this task
		// was queued; the surface must stay hidden then.
		if !rn.active() {
			return
		}
		r.surface.Show(rn.next)
	}
	if !r.surface.Dispatcher().Post(show) {
		rn.conclude(PhaseAborted, nil, ErrSurfaceClosed)
		return nil, ErrSurfaceClosed
	}

	<-rn.done

	if rn.err != nil {
		rn.log.WithError(rn.err).Warn("calibration failed")
		return nil, rn.err
	}
	rn.log.WithField("duration", rn.finishedAt.Sub(rn.startedAt)).Info("calibration finished")
	return rn.model, nil
}

// Status returns the current run's status, or the last run's if idle.
func (r *Runner) Status() Status {
	r.mu.Lock()
	rn := r.current
	last := r.last
	hasModel := r.model != nil
	r.mu.Unlock()

	if rn == nil {
		return last
	}
	st := rn.status()
	st.HasModel = hasModel
	return st
}

// Model returns the model of the last successful run, if any.
func (r *Runner) Model() *tracker.Calibration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.model
}

// run is the state of one calibration attempt.
//
// Phase transitions happen on the surface's dispatcher. Device notifications
// are marshalled onto it, except for the abort flag which is raised as soon
// as a connection error is observed so that no device command can slip in
// between the error and the abort task.
type run struct {
	r       *Runner
	log     *logrus.Entry
	dwell   time.Duration
	timer   *dispatch.Timer
	aborted atomic.Bool
	done    chan struct{}

	// mu serializes device commands with the abort flag and guards the
	// fields below.
	mu         sync.Mutex
	seq        *Sequence
	tracker    tracker.Tracker
	trackerID  string
	phase      Phase
	point      *FixationPoint
	committed  int
	finished   bool
	startedAt  time.Time
	finishedAt time.Time
	model      *tracker.Calibration
	err        error
}

// newRun must be called with r.mu held.
func (r *Runner) newRun(t tracker.Tracker) *run {
	rn := &run{
		r:         r,
		dwell:     r.dwell,
		seq:       NewSequence(r.points...),
		done:      make(chan struct{}),
		tracker:   t,
		trackerID: t.ID(),
		phase:     PhaseIdle,
		startedAt: time.Now(),
		log: logrus.WithFields(logrus.Fields{
			"tracker":   t.ID(),
			"operation": "calibration",
		}),
	}
	rn.timer = r.surface.Dispatcher().NewTimer(rn.dwell, rn.tick)
	return rn
}

// acquire registers the three notification handlers for the run.
func (rn *run) acquire() []tracker.Subscription {
	t := rn.tracker
	return []tracker.Subscription{
		t.OnAddCalibrationPointCompleted(func(err error) {
			rn.post(func() { rn.pointCompleted(err) })
		}),
		t.OnComputeCalibrationCompleted(func(err error) {
			rn.post(func() { rn.computeCompleted(err) })
		}),
		t.OnConnectionError(rn.connectionError),
	}
}

// release stops calibration mode, drops the handlers and forgets the
// tracker. It runs exactly once per run, on Run's goroutine.
func (rn *run) release(subs []tracker.Subscription) {
	rn.mu.Lock()
	t := rn.tracker
	rn.tracker = nil
	rn.mu.Unlock()

	if err := t.StopCalibration(); err != nil {
		rn.log.WithError(err).Warn("failed to stop calibration mode")
	}
	for _, s := range subs {
		s.Unsubscribe()
	}
	rn.log.Debug("calibration torn down")
}

func (rn *run) post(fn func()) {
	if !rn.r.surface.Dispatcher().Post(fn) {
		rn.conclude(PhaseAborted, nil, ErrSurfaceClosed)
	}
}

// command issues a device command unless the run was aborted or finished.
func (rn *run) command(fn func(t tracker.Tracker)) bool {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	if rn.finished || rn.aborted.Load() || rn.tracker == nil {
		return false
	}
	fn(rn.tracker)
	return true
}

func (rn *run) active() bool {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return !rn.finished && !rn.aborted.Load()
}

func (rn *run) currentPhase() Phase {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	return rn.phase
}

// next presents the next point, or requests the model once the sequence is
// exhausted. Runs on the dispatcher.
func (rn *run) next() {
	if !rn.active() {
		return
	}

	rn.mu.Lock()
	p, ok := rn.seq.Next()
	rn.mu.Unlock()
	if !ok {
		rn.setPhase(PhaseComputing, nil)
		rn.command(func(t tracker.Tracker) { t.ComputeCalibrationAsync() })
		return
	}

	rn.setPhase(PhasePresenting, &p)
	rn.r.surface.SetPoint(p)
	rn.timer.Start()
	rn.setPhase(PhaseDwelling, &p)
}

// tick ends the dwell and commits the presented point. Runs on the dispatcher.
func (rn *run) tick() {
	rn.timer.Stop()
	if !rn.active() || rn.currentPhase() != PhaseDwelling {
		return
	}

	p := rn.r.surface.Point()
	rn.setPhase(PhaseCommitting, &p)
	rn.command(func(t tracker.Tracker) { t.AddCalibrationPointAsync(p.Point2D()) })
}

func (rn *run) pointCompleted(err error) {
	if !rn.active() || rn.currentPhase() != PhaseCommitting {
		return
	}

	if err != nil {
		rn.mu.Lock()
		p := rn.point
		rn.mu.Unlock()
		rn.finish(PhaseAborted, nil, fmt.Errorf("%w: commit point %v: %v", ErrDeviceFault, p, err))
		return
	}

	rn.mu.Lock()
	rn.committed++
	rn.mu.Unlock()

	rn.next()
}

func (rn *run) computeCompleted(err error) {
	if !rn.active() || rn.currentPhase() != PhaseComputing {
		return
	}

	if err != nil {
		rn.finish(PhaseDone, nil, fmt.Errorf("%w: compute calibration: %v", ErrDeviceFault, err))
		return
	}

	var model *tracker.Calibration
	var getErr error
	if !rn.command(func(t tracker.Tracker) { model, getErr = t.GetCalibration() }) {
		return
	}
	if getErr != nil {
		rn.finish(PhaseDone, nil, fmt.Errorf("%w: get calibration: %v", ErrDeviceFault, getErr))
		return
	}
	rn.finish(PhaseDone, model, nil)
}

// connectionError runs on the device goroutine.
func (rn *run) connectionError(err error) {
	rn.mu.Lock()
	rn.aborted.Store(true)
	rn.mu.Unlock()

	rn.log.WithError(err).Warn("tracker connection lost, aborting calibration")
	rn.post(func() {
		rn.finish(PhaseAborted, nil, fmt.Errorf("%w: %v", ErrConnectionLost, err))
	})
}

// finish tears down the surface side of the run. Runs on the dispatcher.
func (rn *run) finish(phase Phase, model *tracker.Calibration, err error) {
	rn.mu.Lock()
	finished := rn.finished
	rn.mu.Unlock()
	if finished {
		// The surface may already belong to the next run.
		return
	}

	rn.timer.Stop()
	rn.mu.Lock()
	rn.seq.Clear()
	rn.mu.Unlock()
	rn.r.surface.Close()
	rn.conclude(phase, model, err)
}

// conclude records the outcome and releases Run. Only the first call has
// an effect.
func (rn *run) conclude(phase Phase, model *tracker.Calibration, err error) {
	rn.mu.Lock()
	if rn.finished {
		rn.mu.Unlock()
		return
	}
	rn.finished = true
	rn.finishedAt = time.Now()
	rn.model = model
	rn.err = err
	rn.mu.Unlock()

	rn.setPhase(phase, nil)
	close(rn.done)
}

func (rn *run) setPhase(to Phase, p *FixationPoint) {
	rn.mu.Lock()
	from := rn.phase
	rn.phase = to
	if p != nil {
		rn.point = p
	}
	err := rn.err
	rn.mu.Unlock()

	tr := Transition{From: from, To: to, Point: p, At: time.Now()}
	if to == PhaseAborted || (to == PhaseDone && err != nil) {
		tr.Err = err
	}

	rn.log.WithFields(logrus.Fields{
		"from":  from,
		"to":    to,
		"point": p,
	}).Debug("calibration phase")

	if rn.r.observer != nil {
		rn.r.observer(tr)
	}
}

func (rn *run) status() Status {
	rn.mu.Lock()
	defer rn.mu.Unlock()

	st := Status{
		Phase:           rn.phase,
		Point:           rn.point,
		PointsCommitted: rn.committed,
		StartedAt:       rn.startedAt,
		FinishedAt:      rn.finishedAt,
		Running:         !rn.finished,
		TrackerID:       rn.trackerID,
	}
	if !rn.finished {
		st.PointsRemaining = rn.seq.Len()
	}
	if rn.err != nil {
		st.LastError = rn.err.Error()
	}
	return st
}
