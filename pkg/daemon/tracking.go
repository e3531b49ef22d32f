package daemon

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/charlie0129/gazeserver/pkg/events"
	"github.com/charlie0129/gazeserver/pkg/tracker"
)

var (
	errAlreadyTracking = errors.New("tracking already started")
	errNotTracking     = errors.New("tracking not started")
)

const rateWindow = 2 * time.Second

// TrackingStatus is returned by GET /tracking.
type TrackingStatus struct {
	Tracking   bool      `json:"tracking"`
	TrackerID  string    `json:"trackerId,omitempty"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
	Samples    uint64    `json:"samples"`
	RateHz     float64   `json:"rateHz"`
	LeftValid  bool      `json:"leftValid"`
	RightValid bool      `json:"rightValid"`
}

// trackingSession forwards real-time gaze data from one tracker to the
// broadcaster and to the status indicator.
type trackingSession struct {
	mu        sync.Mutex
	tracker   tracker.Tracker
	subs      []tracker.Subscription
	startedAt time.Time

	samples  atomic.Uint64
	left     atomic.Bool
	right    atomic.Bool
	recorder *SampleRecorder
}

// openTracker resolves id, or the configured tracker when id is empty.
func openTracker(id string) (tracker.Tracker, error) {
	if id == "" {
		id = conf.Tracker()
	}
	return browser.Open(id)
}

func (s *trackingSession) start(id string) (TrackingStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tracker != nil {
		return s.statusLocked(), errAlreadyTracking
	}

	t, err := openTracker(id)
	if err != nil {
		return TrackingStatus{}, err
	}

	s.samples.Store(0)
	rec := NewSampleRecorder(1024)
	s.recorder = rec
	s.subs = []tracker.Subscription{
		t.OnGazeData(func(sample tracker.GazeSample) { s.onSample(t.ID(), rec, sample) }),
		t.OnConnectionError(func(err error) { s.onConnectionError(t, err) }),
	}

	if err := t.StartTracking(); err != nil {
		s.releaseLocked()
		return TrackingStatus{}, err
	}

	s.tracker = t
	s.startedAt = time.Now()
	logrus.WithField("tracker", t.ID()).Info("tracking started")

	return s.statusLocked(), nil
}

func (s *trackingSession) stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tracker == nil {
		return errNotTracking
	}

	t := s.tracker
	err := t.StopTracking()
	s.releaseLocked()
	logrus.WithFields(logrus.Fields{
		"tracker": t.ID(),
		"samples": s.samples.Load(),
	}).Info("tracking stopped")
	return err
}

// current returns the tracker being tracked, if any.
func (s *trackingSession) current() tracker.Tracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker
}

func (s *trackingSession) status() TrackingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *trackingSession) statusLocked() TrackingStatus {
	st := TrackingStatus{
		Tracking: s.tracker != nil,
		Samples:  s.samples.Load(),
	}
	if s.tracker == nil {
		return st
	}
	st.TrackerID = s.tracker.ID()
	st.StartedAt = s.startedAt
	st.LeftValid = s.left.Load()
	st.RightValid = s.right.Load()
	if s.recorder != nil {
		st.RateHz = s.recorder.Rate(rateWindow)
	}
	return st
}

func (s *trackingSession) releaseLocked() {
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
	s.tracker = nil
}

// onSample runs on the tracker's goroutine and must not block.
func (s *trackingSession) onSample(trackerID string, rec *SampleRecorder, sample tracker.GazeSample) {
	s.samples.Inc()
	rec.AddRecordNow()

	if err := broadcaster.Publish(sample); err != nil {
		logrus.WithError(err).Error("failed to publish gaze sample")
	}

	threshold := conf.ValidityThreshold()
	left, right := sample.LeftValid(threshold), sample.RightValid(threshold)
	s.left.Store(left)
	s.right.Store(right)
	sseHub.Publish(events.TrackerStatus, events.TrackerStatusEvent{
		TrackerID: trackerID,
		Left:      left,
		Right:     right,
		Ts:        sample.Timestamp,
	})
}

func (s *trackingSession) onConnectionError(t tracker.Tracker, err error) {
	logrus.WithError(err).WithField("tracker", t.ID()).Error("tracker connection lost, tracking stopped")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracker == t {
		s.releaseLocked()
	}
}
