package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/gazeserver/pkg/calibration"
	"github.com/charlie0129/gazeserver/pkg/events"
)

func NewCalibrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "calibrate",
		Short:   "Run a calibration or show the last one",
		GroupID: gBasic,
	}

	cmd.AddCommand(newCalibrateRunCommand(), newCalibrateStatusCommand())

	return cmd
}

func newCalibrateRunCommand() *cobra.Command {
	var (
		trackerID string
		follow    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a calibration and wait for it to finish",
		Long: `Run a calibration and wait for it to finish.

Each fixation point is announced to the clients following the daemon's
event stream, which are expected to draw it. The point is committed
after the configured dwell time. Use --follow to print the points as
they are shown.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var wg sync.WaitGroup
			if follow {
				ctx, cancel := context.WithCancel(cmd.Context())
				defer func() {
					cancel()
					wg.Wait()
				}()

				ch, err := apiClient.SubscribeEvents(ctx)
				if err != nil {
					return err
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					for ev := range ch {
						printCalibrationEvent(cmd, ev)
					}
				}()
			}

			res, err := apiClient.RunCalibration(trackerID)
			if err != nil {
				return err
			}

			if !res.Success {
				return fmt.Errorf("calibration failed after %s: %s", res.Duration.Round(time.Millisecond), res.Error)
			}
			logrus.WithFields(logrus.Fields{
				"tracker":  res.Calibration.TrackerID,
				"points":   res.Calibration.Points,
				"duration": res.Duration.Round(time.Millisecond),
			}).Info("calibration finished")
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&trackerID, "tracker", "t", "", "tracker id, defaults to the tracker being tracked or the configured one")
	f.BoolVarP(&follow, "follow", "f", false, "print calibration events while running")

	return cmd
}

func newCalibrateStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of the current or last calibration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.GetCalibration()
			if err != nil {
				return err
			}
			printCalibrationStatus(cmd, st)
			return nil
		},
	}
}

func phaseText(p calibration.Phase) string {
	switch p {
	case calibration.PhaseDone:
		return color.GreenString(string(p))
	case calibration.PhaseAborted:
		return color.RedString(string(p))
	case calibration.PhaseIdle:
		return string(p)
	default:
		return color.YellowString(string(p))
	}
}

func printCalibrationStatus(cmd *cobra.Command, st *calibration.Status) {
	cmd.Printf("Phase:     %s\n", phaseText(st.Phase))
	cmd.Printf("Running:   %s\n", bool2Text(st.Running))
	cmd.Printf("Tracker:   %s\n", orNone(st.TrackerID))
	cmd.Printf("Committed: %d (%d remaining)\n", st.PointsCommitted, st.PointsRemaining)
	if st.Point != nil {
		cmd.Printf("Point:     (%.2f, %.2f)\n", st.Point.X, st.Point.Y)
	}
	if !st.StartedAt.IsZero() {
		cmd.Printf("Started:   %s\n", st.StartedAt.Format(time.Kitchen))
	}
	if !st.FinishedAt.IsZero() {
		cmd.Printf("Finished:  %s\n", st.FinishedAt.Format(time.Kitchen))
	}
	cmd.Printf("Model:     %s\n", bool2Text(st.HasModel))
	if st.LastError != "" {
		cmd.Printf("Error:     %s\n", color.RedString(st.LastError))
	}
}

func printCalibrationEvent(cmd *cobra.Command, ev events.Event) {
	switch ev.Name {
	case events.CalibrationPhase:
		p, err := events.DecodeAs[events.CalibrationPhaseEvent](ev)
		if err != nil {
			logrus.WithError(err).Debugf("failed to decode %s event", ev.Name)
			return
		}
		line := fmt.Sprintf("%s -> %s", p.From, phaseText(calibration.Phase(p.To)))
		if p.Message != "" {
			line += ": " + p.Message
		}
		cmd.Println(line)
	case events.CalibrationPoint:
		p, err := events.DecodeAs[events.CalibrationPointEvent](ev)
		if err != nil {
			logrus.WithError(err).Debugf("failed to decode %s event", ev.Name)
			return
		}
		cmd.Printf("  point (%.2f, %.2f)\n", p.X, p.Y)
	case events.CalibrationShown:
		cmd.Println("surface shown")
	case events.CalibrationClosed:
		cmd.Println("surface closed")
	}
}
