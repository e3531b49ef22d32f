package daemon

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/gazeserver/pkg/calibration"
	"github.com/charlie0129/gazeserver/pkg/dispatch"
	"github.com/charlie0129/gazeserver/pkg/events"
)

// remoteSurface is a calibration surface drawn by an external renderer. It
// publishes every change on the event hub; renderers follow /events.
type remoteSurface struct {
	dispatcher *dispatch.Dispatcher
	hub        *events.EventHub

	// Owned by dispatcher.
	visible bool
	point   calibration.FixationPoint
}

var _ calibration.Surface = &remoteSurface{}

func newRemoteSurface(hub *events.EventHub) *remoteSurface {
	return &remoteSurface{
		dispatcher: dispatch.New("calibration-surface"),
		hub:        hub,
	}
}

func (s *remoteSurface) Dispatcher() *dispatch.Dispatcher {
	return s.dispatcher
}

// Show announces the surface. Renderers attach asynchronously, so the
// surface is ready as soon as it has been announced.
func (s *remoteSurface) Show(ready func()) {
	s.visible = true
	s.hub.Publish(events.CalibrationShown, events.SurfaceEvent{Ts: time.Now().Unix()})
	logrus.Debug("calibration surface shown")
	ready()
}

func (s *remoteSurface) SetPoint(p calibration.FixationPoint) {
	s.point = p
	s.hub.Publish(events.CalibrationPoint, events.CalibrationPointEvent{
		X:  p.X,
		Y:  p.Y,
		Ts: time.Now().Unix(),
	})
}

func (s *remoteSurface) Point() calibration.FixationPoint {
	return s.point
}

func (s *remoteSurface) Close() {
	if !s.visible {
		return
	}
	s.visible = false
	s.hub.Publish(events.CalibrationClosed, events.SurfaceEvent{Ts: time.Now().Unix()})
	logrus.Debug("calibration surface closed")
}

// publishTransition forwards runner phase changes to the event hub.
func publishTransition(tr calibration.Transition) {
	ev := events.CalibrationPhaseEvent{
		From: string(tr.From),
		To:   string(tr.To),
		Ts:   tr.At.Unix(),
	}
	if tr.Err != nil {
		ev.Message = tr.Err.Error()
	} else if tr.Point != nil {
		ev.Message = tr.Point.String()
	}
	sseHub.Publish(events.CalibrationPhase, ev)
}
