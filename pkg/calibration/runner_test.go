package calibration

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/charlie0129/gazeserver/pkg/dispatch"
	"github.com/charlie0129/gazeserver/pkg/tracker"
)

const testDwell = 10 * time.Millisecond

type fakeSurface struct {
	d *dispatch.Dispatcher

	mu      sync.Mutex
	shown   int
	closed  int
	visible bool
	point   FixationPoint
	history []FixationPoint
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{d: dispatch.New("surface")}
}

func (s *fakeSurface) Dispatcher() *dispatch.Dispatcher { return s.d }

func (s *fakeSurface) Show(ready func()) {
	s.mu.Lock()
	s.shown++
	s.visible = true
	s.mu.Unlock()
	ready()
}

func (s *fakeSurface) SetPoint(p FixationPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.point = p
	s.history = append(s.history, p)
}

func (s *fakeSurface) Point() FixationPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.point
}

func (s *fakeSurface) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visible {
		s.closed++
	}
	s.visible = false
}

func (s *fakeSurface) isVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

func (s *fakeSurface) counts() (shown, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shown, s.closed
}

type transitions struct {
	mu  sync.Mutex
	all []Transition
}

func (ts *transitions) observe(tr Transition) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.all = append(ts.all, tr)
}

func (ts *transitions) phases() []Phase {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	var out []Phase
	for _, tr := range ts.all {
		out = append(out, tr.To)
	}
	return out
}

func (ts *transitions) list() []Transition {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]Transition(nil), ts.all...)
}

func requireTornDown(t require.TestingT, m *tracker.Mock) {
	require.Equal(t, 1, m.CallCount(tracker.CallStopCalibration), "StopCalibration must be called exactly once")
	require.Equal(t, 0, m.HandlerCount(), "all calibration handlers must be released")
}

func TestRunner_Success(t *testing.T) {
	m := tracker.NewMock("mock-1")
	defer m.Close()
	s := newFakeSurface()
	defer s.d.Close()

	var ts transitions
	r := NewRunner(s, WithDwell(testDwell), WithObserver(ts.observe))

	model, err := r.Run(m)
	require.NoError(t, err)
	require.NotNil(t, model)
	require.Equal(t, "mock-1", model.TrackerID)
	require.Equal(t, 5, model.Points)

	// Points reach the device in order.
	var want []tracker.Point2D
	for _, p := range DefaultPoints() {
		want = append(want, p.Point2D())
	}
	require.Equal(t, want, m.Points())
	require.Equal(t, 5, m.CallCount(tracker.CallAddCalibrationPoint))
	require.Equal(t, 1, m.CallCount(tracker.CallComputeCalibration))
	requireTornDown(t, m)

	calls := m.Calls()
	require.Equal(t, tracker.CallStartCalibration, calls[0])
	require.Equal(t, tracker.CallStopCalibration, calls[len(calls)-1])

	shown, closed := s.counts()
	require.Equal(t, 1, shown)
	require.Equal(t, 1, closed)

	var wantPhases []Phase
	for range DefaultPoints() {
		wantPhases = append(wantPhases, PhasePresenting, PhaseDwelling, PhaseCommitting)
	}
	wantPhases = append(wantPhases, PhaseComputing, PhaseDone)
	require.Equal(t, wantPhases, ts.phases())

	// Every commit is preceded by a full dwell.
	all := ts.list()
	for i, tr := range all {
		if tr.To != PhaseCommitting {
			continue
		}
		require.Equal(t, PhaseDwelling, all[i-1].To)
		require.GreaterOrEqual(t, tr.At.Sub(all[i-1].At), testDwell/2)
	}

	st := r.Status()
	require.Equal(t, PhaseDone, st.Phase)
	require.False(t, st.Running)
	require.True(t, st.HasModel)
	require.Equal(t, 5, st.PointsCommitted)
	require.Equal(t, "mock-1", st.TrackerID)
	require.Empty(t, st.LastError)
	require.Equal(t, model, r.Model())
}

func TestRunner_CustomPoints(t *testing.T) {
	m := tracker.NewMock("mock-1")
	defer m.Close()
	s := newFakeSurface()
	defer s.d.Close()

	points := []FixationPoint{{X: 0.3, Y: 0.7}, {X: 0.7, Y: 0.3}}
	r := NewRunner(s, WithDwell(testDwell), WithPoints(points...))

	model, err := r.Run(m)
	require.NoError(t, err)
	require.Equal(t, 2, model.Points)
	require.Equal(t, points, s.history)
}

func TestRunner_PointFailure(t *testing.T) {
	m := tracker.NewMock("mock-1", tracker.WithPointFailure(3))
	defer m.Close()
	s := newFakeSurface()
	defer s.d.Close()

	var ts transitions
	r := NewRunner(s, WithDwell(testDwell), WithObserver(ts.observe))

	model, err := r.Run(m)
	require.Nil(t, model)
	require.ErrorIs(t, err, ErrDeviceFault)

	require.Equal(t, 3, m.CallCount(tracker.CallAddCalibrationPoint))
	require.Equal(t, 0, m.CallCount(tracker.CallComputeCalibration))
	requireTornDown(t, m)

	_, closed := s.counts()
	require.Equal(t, 1, closed)

	phases := ts.phases()
	require.Equal(t, PhaseAborted, phases[len(phases)-1])

	st := r.Status()
	require.Equal(t, PhaseAborted, st.Phase)
	require.Equal(t, 2, st.PointsCommitted)
	require.NotEmpty(t, st.LastError)
	require.False(t, st.HasModel)
}

func TestRunner_ComputeFailure(t *testing.T) {
	m := tracker.NewMock("mock-1", tracker.WithComputeFailure())
	defer m.Close()
	s := newFakeSurface()
	defer s.d.Close()

	r := NewRunner(s, WithDwell(testDwell))

	model, err := r.Run(m)
	require.Nil(t, model)
	require.ErrorIs(t, err, ErrDeviceFault)
	require.Equal(t, 5, m.CallCount(tracker.CallAddCalibrationPoint))
	require.Equal(t, 1, m.CallCount(tracker.CallComputeCalibration))
	require.Equal(t, 0, m.CallCount(tracker.CallGetCalibration))
	requireTornDown(t, m)

	_, closed := s.counts()
	require.Equal(t, 1, closed)
	require.Equal(t, PhaseDone, r.Status().Phase)
}

func TestRunner_StartCalibrationError(t *testing.T) {
	m := tracker.NewMock("mock-1", tracker.WithStartCalibrationError(errors.New("license expired")))
	defer m.Close()
	s := newFakeSurface()
	defer s.d.Close()

	var ts transitions
	r := NewRunner(s, WithDwell(testDwell), WithObserver(ts.observe))

	_, err := r.Run(m)
	require.ErrorIs(t, err, ErrDeviceFault)
	require.Contains(t, err.Error(), "license expired")

	// The terminal transition is still observed although the dispatcher
	// was never involved.
	all := ts.list()
	require.Len(t, all, 1)
	require.Equal(t, PhaseAborted, all[0].To)
	require.ErrorIs(t, all[0].Err, ErrDeviceFault)
	require.Equal(t, 0, m.CallCount(tracker.CallAddCalibrationPoint))
	requireTornDown(t, m)

	shown, _ := s.counts()
	require.Equal(t, 0, shown)
	require.Equal(t, PhaseAborted, r.Status().Phase)
}

func TestRunner_RejectsConcurrentRun(t *testing.T) {
	m := tracker.NewMock("mock-1", tracker.WithCompletionDelay(20*time.Millisecond))
	defer m.Close()
	s := newFakeSurface()
	defer s.d.Close()

	r := NewRunner(s, WithDwell(testDwell))

	errCh := make(chan error, 1)
	go func() {
		_, err := r.Run(m)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return r.Status().Running }, time.Second, time.Millisecond)

	other := tracker.NewMock("mock-2")
	defer other.Close()
	_, err := r.Run(other)
	require.ErrorIs(t, err, ErrCalibrationInProgress)
	require.Empty(t, other.Calls())

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		require.Fail(t, "first run did not finish")
	}

	// The runner is reusable once idle.
	_, err = r.Run(other)
	require.NoError(t, err)
}

func TestRunner_DisconnectStopsCommands(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 5).Draw(t, "points")
		// Calls are StartCalibration, n adds, compute, get.
		k := rapid.IntRange(1, n+3).Draw(t, "disconnectAt")

		calls := 0
		cutoff := -1
		m := tracker.NewMock("mock-1", tracker.WithCallHook(func(m *tracker.Mock, call string) {
			calls++
			if calls == k {
				cutoff = calls
				m.Disconnect(errors.New("usb unplugged"))
			}
		}))
		defer m.Close()
		s := newFakeSurface()
		defer s.d.Close()

		r := NewRunner(s, WithDwell(time.Millisecond), WithPoints(DefaultPoints()[:n]...))
		_, err := r.Run(m)

		switch {
		case k == 1:
			require.ErrorIs(t, err, ErrDeviceFault)
		case k <= n+2:
			require.ErrorIs(t, err, ErrConnectionLost)
		default:
			// Disconnected while fetching the model, which already succeeded.
			require.NoError(t, err)
		}

		require.Equal(t, k, cutoff)
		after := m.Calls()[cutoff:]
		for _, c := range after {
			require.Equal(t, tracker.CallStopCalibration, c, "no device command may follow a disconnect")
		}
		requireTornDown(t, m)
	})
}

// droppingTracker loses its connection right after entering calibration
// mode, before the surface has been shown.
type droppingTracker struct {
	*tracker.Mock
}

func (t droppingTracker) StartCalibration() error {
	if err := t.Mock.StartCalibration(); err != nil {
		return err
	}
	t.Disconnect(errors.New("usb unplugged"))
	// Let the abort reach the dispatcher ahead of the show task.
	time.Sleep(50 * time.Millisecond)
	return nil
}

func TestRunner_DisconnectBeforeShow(t *testing.T) {
	m := tracker.NewMock("mock-1")
	defer m.Close()
	s := newFakeSurface()
	defer s.d.Close()

	r := NewRunner(s, WithDwell(testDwell))

	_, err := r.Run(droppingTracker{Mock: m})
	require.ErrorIs(t, err, ErrConnectionLost)

	// Drain anything still queued on the dispatcher.
	require.NoError(t, s.d.Invoke(func() {}))

	shown, closed := s.counts()
	require.Equal(t, shown, closed, "every show must be matched by a close")
	require.False(t, s.isVisible())
	require.Empty(t, s.history)
	require.Equal(t, 0, m.CallCount(tracker.CallAddCalibrationPoint))
	requireTornDown(t, m)
	require.Equal(t, PhaseAborted, r.Status().Phase)
}
