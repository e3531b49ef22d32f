package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/charlie0129/gazeserver/pkg/client"
)

var (
	logLevel   = "info"
	daemonAddr = client.DefaultAddr
	configPath = "/etc/gazeserver.json"
)

var (
	gBasic        = "Basic:"
	gAdvanced     = "Advanced:"
	commandGroups = []string{
		gBasic,
		gAdvanced,
	}
)

var apiClient *client.Client

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func handleCmdError(err error) {
	switch {
	case errors.Is(err, client.ErrDaemonNotRunning):
		fmt.Fprintln(os.Stderr, "\nError: gazeserver daemon is not running")
		fmt.Fprintf(os.Stderr, "Is the daemon listening on %s? Start it with 'gazeserver daemon'.\n", daemonAddr)
	case errors.Is(err, client.ErrConflict):
		fmt.Fprintln(os.Stderr, "\nError: the daemon is busy")
		fmt.Fprintln(os.Stderr, "  - A calibration may already be running, check 'gazeserver calibrate status'")
		fmt.Fprintln(os.Stderr, "  - Or tracking is already in the requested state, check 'gazeserver tracking status'")
	case errors.Is(err, client.ErrNotFound):
		fmt.Fprintln(os.Stderr, "\nError: not found")
		fmt.Fprintln(os.Stderr, "Use 'gazeserver trackers' to list the trackers the daemon can see.")
	}
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gazeserver",
		Short: "gazeserver runs eye tracker calibrations and streams gaze samples",
		Long: `gazeserver runs eye tracker calibrations and streams gaze samples.

The daemon owns the trackers. It walks a tracker through a calibration
sequence and broadcasts every gaze sample to the websocket clients
connected to it. The other commands talk to a running daemon.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			err := setupLogger()
			if err != nil {
				return err
			}

			apiClient = client.NewClient(daemonAddr)

			// The daemon cannot be asked for its own version before it runs.
			if cmd.Name() == "daemon" || cmd.Name() == "version" {
				return nil
			}

			if clientVersion, daemonVersion, err := getVersion(); err == nil {
				if daemonVersion != clientVersion {
					logrus.WithFields(logrus.Fields{
						"clientVersion": clientVersion,
						"daemonVersion": daemonVersion,
					}).Warn("Version mismatch between client and daemon. gazeserver may not work as expected.")
				}
			} else if errors.Is(err, client.ErrNotFound) {
				logrus.Error("gazeserver daemon is too old to report its version.")
			}

			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.StringVar(&daemonAddr, "addr", daemonAddr, "gazeserver daemon address (host:port)")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewDaemonCommand(),
		NewVersionCommand(),
		NewTrackersCommand(),
		NewConfigCommand(),
		NewTrackingCommand(),
		NewCalibrateCommand(),
		NewWatchCommand(),
		NewSubscribersCommand(),
	)

	return cmd
}
