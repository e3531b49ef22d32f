package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/gazeserver/pkg/daemon"
	"github.com/charlie0129/gazeserver/pkg/version"
)

// NewDaemonCommand .
func NewDaemonCommand() *cobra.Command {
	opts := daemon.Options{}

	cmd := &cobra.Command{
		Use:     "daemon",
		Short:   "Run gazeserver daemon in the foreground",
		GroupID: gAdvanced,
		Long: `Run gazeserver daemon in the foreground.

The listening port and bind address come from the config file unless
overridden here. An invalid port falls back to 10811. Send SIGHUP or
edit the config file to reload it.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			logrus.WithFields(logrus.Fields{
				"version": version.Version,
				"commit":  version.GitCommit,
			}).Info("gazeserver daemon starting")
			opts.ConfigPath = configPath
			return daemon.Run(opts)
		},
	}

	f := cmd.Flags()

	f.StringVarP(&opts.Port, "port", "p", "", "port to listen on, overrides the config file")
	f.StringVar(&opts.BindAddress, "bind", "", "address to bind to, overrides the config file")
	f.StringSliceVar(&opts.Trackers, "tracker", nil, "ids of the simulated trackers to expose (repeatable)")

	return cmd
}
