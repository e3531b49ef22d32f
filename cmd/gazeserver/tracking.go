package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/gazeserver/pkg/client"
)

func NewTrackingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tracking",
		Short:   "Start or stop streaming gaze samples",
		GroupID: gBasic,
		Long: `Start or stop streaming gaze samples.

While tracking, every sample the tracker produces is sent to all
websocket clients connected to the daemon. Use 'gazeserver watch' to
follow them from a terminal.`,
	}

	var trackerID string
	start := &cobra.Command{
		Use:   "start",
		Short: "Start tracking",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.StartTracking(trackerID)
			if err != nil {
				return err
			}
			logrus.Infof("started tracking with %s", st.TrackerID)
			return nil
		},
	}
	start.Flags().StringVarP(&trackerID, "tracker", "t", "", "tracker id, defaults to the configured tracker")

	cmd.AddCommand(
		start,
		&cobra.Command{
			Use:   "stop",
			Short: "Stop tracking",
			RunE: func(_ *cobra.Command, _ []string) error {
				if err := apiClient.StopTracking(); err != nil {
					return err
				}
				logrus.Info("stopped tracking")
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show tracking status",
			RunE: func(cmd *cobra.Command, _ []string) error {
				st, err := apiClient.GetTracking()
				if err != nil {
					return err
				}
				printTrackingStatus(cmd, st)
				return nil
			},
		},
	)

	return cmd
}

func printTrackingStatus(cmd *cobra.Command, st *client.TrackingStatus) {
	cmd.Printf("Tracking: %s\n", bool2Text(st.Tracking))
	if !st.Tracking {
		return
	}
	cmd.Printf("  Tracker:  %s\n", bold("%s", st.TrackerID))
	cmd.Printf("  Since:    %s\n", st.StartedAt.Format(time.Kitchen))
	cmd.Printf("  Samples:  %d\n", st.Samples)
	cmd.Printf("  Rate:     %s\n", fmt.Sprintf("%.1f Hz", st.RateHz))
	cmd.Printf("  Left eye: %s  Right eye: %s\n", bool2Text(st.LeftValid), bool2Text(st.RightValid))
}
