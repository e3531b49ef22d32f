package config

import "time"

type Config interface {
	Port() int
	BindAddress() string
	Dwell() time.Duration
	Tracker() string
	SampleRateHz() int
	SendBacklog() int
	ValidityThreshold() int

	SetPort(int) error
	SetBindAddress(string) error
	SetDwell(time.Duration) error
	SetTracker(string)
	SetSampleRateHz(int) error
	SetSendBacklog(int) error
	SetValidityThreshold(int) error

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
