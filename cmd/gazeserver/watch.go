package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/gazeserver/pkg/tracker"
)

func NewWatchCommand() *cobra.Command {
	var (
		count     int
		threshold int
	)

	cmd := &cobra.Command{
		Use:     "watch",
		Short:   "Print gaze samples as they are streamed",
		GroupID: gBasic,
		Long: `Print gaze samples as they are streamed.

Samples only flow while tracking is started. Press Ctrl-C to stop.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			n := 0
			return apiClient.WatchSamples(ctx, func(s tracker.GazeSample) error {
				cmd.Println(formatSample(s, threshold))
				n++
				if count > 0 && n >= count {
					stop()
				}
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.IntVarP(&count, "count", "n", 0, "stop after this many samples, 0 means no limit")
	f.IntVar(&threshold, "threshold", tracker.DefaultValidityThreshold, "validity codes below this mark an eye as valid")

	return cmd
}

func formatSample(s tracker.GazeSample, threshold int) string {
	ts := (time.Duration(s.Timestamp) * time.Microsecond).Round(time.Millisecond)
	return fmt.Sprintf("%12s", ts) + "  L " + eyeText(s.LeftGazePoint2D, s.LeftValid(threshold)) +
		"  R " + eyeText(s.RightGazePoint2D, s.RightValid(threshold))
}

func eyeText(p *tracker.Point2D, valid bool) string {
	if p == nil {
		return color.HiBlackString("      --      ")
	}
	c := color.New(color.FgGreen)
	if !valid {
		c = color.New(color.FgRed)
	}
	return c.Sprintf("(%.3f, %.3f)", p.X, p.Y)
}
