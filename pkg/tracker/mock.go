package tracker

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNoCalibration is returned by GetCalibration before a model was computed.
var ErrNoCalibration = errors.New("no calibration computed")

// Mock is a simulated tracker. It runs its own goroutine, which is where all
// notifications are delivered, like a vendor SDK's background event thread.
// Every command is recorded so tests can assert on call order.
type Mock struct {
	id         string
	sampleRate int
	delay      time.Duration

	failPointAt int
	failCompute bool
	startErr    error
	onCall      func(m *Mock, call string)

	pointCompleted   Handlers[error]
	computeCompleted Handlers[error]
	connectionError  Handlers[error]
	gazeData         Handlers[GazeSample]

	ops  chan func()
	quit chan struct{}
	wg   sync.WaitGroup

	mu          sync.Mutex
	calls       []string
	connected   bool
	calibrating bool
	tracking    bool
	points      []Point2D
	pointCalls  int
	model       *Calibration
	stopTrack   chan struct{}
}

// MockOption configures a Mock.
type MockOption func(m *Mock)

// WithSampleRate sets how many samples per second are emitted while tracking.
func WithSampleRate(hz int) MockOption {
	return func(m *Mock) {
		m.sampleRate = hz
	}
}

// WithCompletionDelay delays every async completion by d.
func WithCompletionDelay(d time.Duration) MockOption {
	return func(m *Mock) {
		m.delay = d
	}
}

// WithPointFailure makes the n-th (1-based) AddCalibrationPointAsync
// complete with an error.
func WithPointFailure(n int) MockOption {
	return func(m *Mock) {
		m.failPointAt = n
	}
}

// WithComputeFailure makes ComputeCalibrationAsync complete with an error.
func WithComputeFailure() MockOption {
	return func(m *Mock) {
		m.failCompute = true
	}
}

// WithStartCalibrationError makes StartCalibration return err.
func WithStartCalibrationError(err error) MockOption {
	return func(m *Mock) {
		m.startErr = err
	}
}

// WithCallHook calls fn after each command is recorded, on the caller's
// goroutine. Tests use it to inject a disconnect at a precise point.
func WithCallHook(fn func(m *Mock, call string)) MockOption {
	return func(m *Mock) {
		m.onCall = fn
	}
}

// NewMock returns a connected simulated tracker.
func NewMock(id string, opts ...MockOption) *Mock {
	m := &Mock{
		id:         id,
		sampleRate: 60,
		ops:        make(chan func(), 256),
		quit:       make(chan struct{}),
		connected:  true,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.wg.Add(1)
	go m.loop()

	return m
}

func (m *Mock) loop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.quit:
			return
		case op := <-m.ops:
			op()
		}
	}
}

// post runs fn on the device goroutine after the configured delay. Without
// a delay, posts are delivered in call order.
func (m *Mock) post(fn func()) {
	send := func() {
		select {
		case <-m.quit:
		case m.ops <- fn:
		}
	}
	if m.delay > 0 {
		time.AfterFunc(m.delay, send)
		return
	}
	send()
}

// deliver runs fn on the device goroutine, in call order, ignoring the
// completion delay.
func (m *Mock) deliver(fn func()) {
	select {
	case <-m.quit:
	case m.ops <- fn:
	}
}

func (m *Mock) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"tracker": m.id,
		"call":    call,
	}).Trace("tracker command")

	if m.onCall != nil {
		m.onCall(m, call)
	}
}

// Calls returns the recorded commands in order.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallCount returns how many times call was recorded.
func (m *Mock) CallCount(call string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == call {
			n++
		}
	}
	return n
}

// Points returns the points committed so far in the current calibration.
func (m *Mock) Points() []Point2D {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Point2D(nil), m.points...)
}

// HandlerCount returns the number of registered calibration related handlers.
func (m *Mock) HandlerCount() int {
	return m.pointCompleted.Len() + m.computeCompleted.Len() + m.connectionError.Len()
}

func (m *Mock) ID() string { return m.id }

func (m *Mock) StartCalibration() error {
	m.record(CallStartCalibration)

	if m.startErr != nil {
		return m.startErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.calibrating = true
	m.points = nil
	m.pointCalls = 0
	return nil
}

func (m *Mock) StopCalibration() error {
	m.record(CallStopCalibration)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calibrating = false
	return nil
}

func (m *Mock) AddCalibrationPointAsync(p Point2D) {
	m.record(CallAddCalibrationPoint)

	m.mu.Lock()
	m.pointCalls++
	n := m.pointCalls
	var err error
	switch {
	case !m.connected:
		err = ErrNotConnected
	case !m.calibrating:
		err = ErrNotCalibrating
	case n == m.failPointAt:
		err = fmt.Errorf("failed to collect data at point (%.2f, %.2f)", p.X, p.Y)
	default:
		m.points = append(m.points, p)
	}
	m.mu.Unlock()

	m.post(func() { m.pointCompleted.Emit(err) })
}

func (m *Mock) ComputeCalibrationAsync() {
	m.record(CallComputeCalibration)

	m.mu.Lock()
	var err error
	switch {
	case !m.connected:
		err = ErrNotConnected
	case !m.calibrating:
		err = ErrNotCalibrating
	case m.failCompute || len(m.points) == 0:
		err = errors.New("calibration compute failed: insufficient data")
	default:
		data := make([]byte, 0, len(m.points)*16)
		for _, p := range m.points {
			data = append(data, []byte(fmt.Sprintf("%.3f,%.3f;", p.X, p.Y))...)
		}
		m.model = &Calibration{TrackerID: m.id, Points: len(m.points), Data: data}
	}
	m.mu.Unlock()

	m.post(func() { m.computeCompleted.Emit(err) })
}

func (m *Mock) GetCalibration() (*Calibration, error) {
	m.record(CallGetCalibration)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.model == nil {
		return nil, ErrNoCalibration
	}
	c := *m.model
	return &c, nil
}

func (m *Mock) StartTracking() error {
	m.record(CallStartTracking)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	if m.tracking {
		return nil
	}
	m.tracking = true
	m.stopTrack = make(chan struct{})

	if m.sampleRate > 0 {
		m.wg.Add(1)
		go m.produce(m.stopTrack)
	}
	return nil
}

func (m *Mock) StopTracking() error {
	m.record(CallStopTracking)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.tracking {
		return nil
	}
	m.tracking = false
	close(m.stopTrack)
	return nil
}

// produce emits synthetic samples tracing a slow circle around the screen
// center until stop is closed.
func (m *Mock) produce(stop <-chan struct{}) {
	defer m.wg.Done()

	interval := time.Second / time.Duration(m.sampleRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	var seq int64
	for {
		select {
		case <-stop:
			return
		case <-m.quit:
			return
		case now := <-ticker.C:
			seq++
			s := SyntheticSample(seq, now.Sub(start))
			m.deliver(func() { m.gazeData.Emit(s) })
		}
	}
}

// EmitSample delivers s to gaze data handlers on the device goroutine.
func (m *Mock) EmitSample(s GazeSample) {
	m.deliver(func() { m.gazeData.Emit(s) })
}

// Disconnect simulates an abrupt connection loss.
func (m *Mock) Disconnect(cause error) {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return
	}
	m.connected = false
	m.mu.Unlock()

	if cause == nil {
		cause = ErrNotConnected
	}
	m.post(func() { m.connectionError.Emit(cause) })
}

func (m *Mock) OnAddCalibrationPointCompleted(fn func(err error)) Subscription {
	return m.pointCompleted.Add(fn)
}

func (m *Mock) OnComputeCalibrationCompleted(fn func(err error)) Subscription {
	return m.computeCompleted.Add(fn)
}

func (m *Mock) OnConnectionError(fn func(err error)) Subscription {
	return m.connectionError.Add(fn)
}

func (m *Mock) OnGazeData(fn func(s GazeSample)) Subscription {
	return m.gazeData.Add(fn)
}

// Close stops the device goroutine. Pending completions are dropped.
func (m *Mock) Close() error {
	m.mu.Lock()
	select {
	case <-m.quit:
		m.mu.Unlock()
		return nil
	default:
	}
	m.connected = false
	if m.tracking {
		m.tracking = false
		close(m.stopTrack)
	}
	close(m.quit)
	m.mu.Unlock()

	m.wg.Wait()
	return nil
}

// SyntheticSample builds the seq-th simulated sample at elapsed time t.
func SyntheticSample(seq int64, t time.Duration) GazeSample {
	phase := t.Seconds() * 0.5 * math.Pi
	x := 0.5 + 0.3*math.Cos(phase)
	y := 0.5 + 0.3*math.Sin(phase)

	left, right := 0, 0
	// Simulate an occasional blink.
	if seq%90 < 6 {
		left, right = 4, 4
	}

	return GazeSample{
		Timestamp:          t.Microseconds(),
		LeftGazePoint2D:    &Point2D{X: x - 0.005, Y: y},
		RightGazePoint2D:   &Point2D{X: x + 0.005, Y: y},
		LeftValidity:       left,
		RightValidity:      right,
		LeftEyePosition3D:  &Point3D{X: -31, Y: 5, Z: 600},
		RightEyePosition3D: &Point3D{X: 31, Y: 5, Z: 600},
		LeftPupilDiameter:  3.2,
		RightPupilDiameter: 3.3,
	}
}

// Command names recorded by Mock.
const (
	CallStartCalibration    = "StartCalibration"
	CallStopCalibration     = "StopCalibration"
	CallAddCalibrationPoint = "AddCalibrationPoint"
	CallComputeCalibration  = "ComputeCalibration"
	CallGetCalibration      = "GetCalibration"
	CallStartTracking       = "StartTracking"
	CallStopTracking        = "StopTracking"
)
