package config

import (
	"encoding/json"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/gazeserver/pkg/broadcast"
	"github.com/charlie0129/gazeserver/pkg/calibration"
	"github.com/charlie0129/gazeserver/pkg/tracker"
	"github.com/charlie0129/gazeserver/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		Port:              ptr.To(DefaultPort),
		BindAddress:       ptr.To("0.0.0.0"),
		DwellMillis:       ptr.To(int(calibration.DefaultDwell / time.Millisecond)),
		Tracker:           ptr.To(""),
		SampleRateHz:      ptr.To(60),
		SendBacklog:       ptr.To(broadcast.DefaultBacklog),
		ValidityThreshold: ptr.To(tracker.DefaultValidityThreshold),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	Port              *int    `json:"port,omitempty"`
	BindAddress       *string `json:"bindAddress,omitempty"`
	DwellMillis       *int    `json:"dwellMillis,omitempty"`
	// Tracker is the id of the tracker to open. Empty means the first one found.
	Tracker           *string `json:"tracker,omitempty"`
	SampleRateHz      *int    `json:"sampleRateHz,omitempty"`
	SendBacklog       *int    `json:"sendBacklog,omitempty"`
	ValidityThreshold *int    `json:"validityThreshold,omitempty"`
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		Port:              ptr.To(c.Port()),
		BindAddress:       ptr.To(c.BindAddress()),
		DwellMillis:       ptr.To(int(c.Dwell() / time.Millisecond)),
		Tracker:           ptr.To(c.Tracker()),
		SampleRateHz:      ptr.To(c.SampleRateHz()),
		SendBacklog:       ptr.To(c.SendBacklog()),
		ValidityThreshold: ptr.To(c.ValidityThreshold()),
	}

	return rawConfig, nil
}

// intOr returns *v if it is set and valid, otherwise def. An invalid stored
// value is reported once per read.
func intOr(key string, v *int, def int, valid func(int) bool) int {
	if v == nil {
		return def
	}
	if !valid(*v) {
		logrus.WithFields(logrus.Fields{
			"key":     key,
			"value":   *v,
			"default": def,
		}).Warn("invalid config value, using default")
		return def
	}
	return *v
}

func positive(i int) bool { return i > 0 }

func (f *File) Port() int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return intOr("port", f.c.Port, *defaultFileConfig.Port, validPort)
}

func (f *File) BindAddress() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c.BindAddress == nil || net.ParseIP(*f.c.BindAddress) == nil {
		return *defaultFileConfig.BindAddress
	}
	return *f.c.BindAddress
}

func (f *File) Dwell() time.Duration {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	ms := intOr("dwellMillis", f.c.DwellMillis, *defaultFileConfig.DwellMillis, positive)
	return time.Duration(ms) * time.Millisecond
}

func (f *File) Tracker() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.Tracker, *defaultFileConfig.Tracker)
}

func (f *File) SampleRateHz() int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return intOr("sampleRateHz", f.c.SampleRateHz, *defaultFileConfig.SampleRateHz, positive)
}

func (f *File) SendBacklog() int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return intOr("sendBacklog", f.c.SendBacklog, *defaultFileConfig.SendBacklog, func(i int) bool {
		return i >= 0
	})
}

func (f *File) ValidityThreshold() int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return intOr("validityThreshold", f.c.ValidityThreshold, *defaultFileConfig.ValidityThreshold, func(i int) bool {
		return i >= 0 && i <= 4
	})
}

func (f *File) SetPort(i int) error {
	if !validPort(i) {
		return pkgerrors.Errorf("port %d out of range 1-65535", i)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.Port = &i
	return nil
}

func (f *File) SetBindAddress(s string) error {
	if net.ParseIP(s) == nil {
		return pkgerrors.Errorf("bind address %q is not an IP address", s)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.BindAddress = &s
	return nil
}

func (f *File) SetDwell(d time.Duration) error {
	ms := int(d / time.Millisecond)
	if ms <= 0 {
		return pkgerrors.Errorf("dwell %s must be at least 1ms", d)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.DwellMillis = &ms
	return nil
}

func (f *File) SetTracker(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.Tracker = &id
}

func (f *File) SetSampleRateHz(i int) error {
	if i <= 0 {
		return pkgerrors.Errorf("sample rate %d must be positive", i)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.SampleRateHz = &i
	return nil
}

func (f *File) SetSendBacklog(i int) error {
	if i < 0 {
		return pkgerrors.Errorf("send backlog %d must not be negative", i)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.SendBacklog = &i
	return nil
}

func (f *File) SetValidityThreshold(i int) error {
	if i < 0 || i > 4 {
		return pkgerrors.Errorf("validity threshold %d out of range 0-4", i)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.ValidityThreshold = &i
	return nil
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.filepath
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"port":              f.Port(),
		"bindAddress":       f.BindAddress(),
		"dwell":             f.Dwell(),
		"tracker":           f.Tracker(),
		"sampleRateHz":      f.SampleRateHz(),
		"sendBacklog":       f.SendBacklog(),
		"validityThreshold": f.ValidityThreshold(),
	}
}
