package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/gazeserver/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewTrackersCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "trackers",
		Short:   "List the trackers the daemon can see",
		GroupID: gBasic,
		RunE: func(cmd *cobra.Command, _ []string) error {
			infos, err := apiClient.ListTrackers()
			if err != nil {
				return fmt.Errorf("failed to list trackers: %w", err)
			}
			if len(infos) == 0 {
				cmd.Println("No trackers found.")
				return nil
			}

			for _, info := range infos {
				cmd.Printf("%s  %s (%s)  %s\n", bold("%s", info.ID), info.Name, info.Model, info.Status)
				if info.Firmware != "" {
					cmd.Printf("  firmware: %s\n", info.Firmware)
				}
			}
			return nil
		},
	}
}

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Short:   "Show or change the daemon config",
		GroupID: gBasic,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := apiClient.GetConfig()
			if err != nil {
				return fmt.Errorf("failed to get config: %w", err)
			}

			b, err := json.MarshalIndent(conf, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(b))
			return nil
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set-dwell [milliseconds]",
			Short: "Set how long each calibration point is shown before it is committed",
			RunE: func(_ *cobra.Command, args []string) error {
				ms, err := parseIntArg(args, "dwell")
				if err != nil {
					return err
				}

				d := time.Duration(ms) * time.Millisecond
				ret, err := apiClient.SetDwell(d)
				if err != nil {
					return fmt.Errorf("failed to set dwell: %w", err)
				}
				if ret != "" {
					logrus.Infof("daemon responded: %s", ret)
				}

				logrus.Infof("successfully set dwell time to %s", d)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set-tracker [id]",
			Short: "Set the tracker to use when none is given. Omit id to use the first one found",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				id := ""
				if len(args) == 1 {
					id = args[0]
				}

				ret, err := apiClient.SetTracker(id)
				if err != nil {
					return fmt.Errorf("failed to set tracker: %w", err)
				}
				if ret != "" {
					logrus.Infof("daemon responded: %s", ret)
				}

				logrus.Infof("successfully set tracker to %q", id)
				return nil
			},
		},
	)

	return cmd
}

func NewSubscribersCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "subscribers",
		Short:   "Show sample stream subscribers and their delivery counters",
		GroupID: gAdvanced,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := apiClient.GetSubscribers()
			if err != nil {
				return fmt.Errorf("failed to get subscribers: %w", err)
			}

			cmd.Printf("Subscribers: %s\n", bold("%d", st.Subscribers))
			cmd.Printf("Published:   %d\n", st.Published)
			cmd.Printf("Evicted:     %d\n", st.Evicted)
			for _, e := range st.Entries {
				cmd.Printf("  #%d  sent %d  failed %d  pending %d\n", e.ID, e.Sent, e.Failed, e.Pending)
			}
			return nil
		},
	}
}
