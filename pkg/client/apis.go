package client

import (
	"encoding/json"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/gazeserver/pkg/broadcast"
	"github.com/charlie0129/gazeserver/pkg/calibration"
	"github.com/charlie0129/gazeserver/pkg/config"
	"github.com/charlie0129/gazeserver/pkg/tracker"
)

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	var v string
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal version")
	}
	return v, nil
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}

	return &conf, nil
}

func (c *Client) SetDwell(d time.Duration) (string, error) {
	return c.Put("/config/dwell", strconv.Itoa(int(d/time.Millisecond)))
}

func (c *Client) SetTracker(id string) (string, error) {
	payload, err := json.Marshal(id)
	if err != nil {
		return "", err
	}
	return c.Put("/config/tracker", string(payload))
}

func (c *Client) ListTrackers() ([]tracker.Info, error) {
	ret, err := c.Get("/trackers")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to list trackers")
	}

	var infos []tracker.Info
	if err := json.Unmarshal([]byte(ret), &infos); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal trackers")
	}
	return infos, nil
}

// ===== Tracking APIs =====

// TrackingStatus mirrors the daemon's GET /tracking response.
type TrackingStatus struct {
	Tracking   bool      `json:"tracking"`
	TrackerID  string    `json:"trackerId,omitempty"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
	Samples    uint64    `json:"samples"`
	RateHz     float64   `json:"rateHz"`
	LeftValid  bool      `json:"leftValid"`
	RightValid bool      `json:"rightValid"`
}

func trackerRequest(id string) string {
	if id == "" {
		return ""
	}
	b, _ := json.Marshal(map[string]string{"tracker": id})
	return string(b)
}

func (c *Client) StartTracking(id string) (*TrackingStatus, error) {
	ret, err := c.Post("/tracking/start", trackerRequest(id))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to start tracking")
	}
	return parseTrackingStatus(ret)
}

func (c *Client) StopTracking() error {
	_, err := c.Post("/tracking/stop", "")
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to stop tracking")
	}
	return nil
}

func (c *Client) GetTracking() (*TrackingStatus, error) {
	ret, err := c.Get("/tracking")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get tracking status")
	}
	return parseTrackingStatus(ret)
}

func parseTrackingStatus(ret string) (*TrackingStatus, error) {
	var st TrackingStatus
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal tracking status")
	}
	return &st, nil
}

// ===== Calibration APIs =====

// RunCalibration blocks until the daemon has finished a calibration run on
// tracker id, or on the current tracker if id is empty.
func (c *Client) RunCalibration(id string) (*calibration.Result, error) {
	ret, err := c.Post("/calibration", trackerRequest(id))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to run calibration")
	}

	var res calibration.Result
	if err := json.Unmarshal([]byte(ret), &res); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal calibration result")
	}
	return &res, nil
}

func (c *Client) GetCalibration() (*calibration.Status, error) {
	ret, err := c.Get("/calibration")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get calibration status")
	}

	var st calibration.Status
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal calibration status")
	}
	return &st, nil
}

func (c *Client) GetSubscribers() (*broadcast.Stats, error) {
	ret, err := c.Get("/subscribers")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get subscribers")
	}

	var st broadcast.Stats
	if err := json.Unmarshal([]byte(ret), &st); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal subscribers")
	}
	return &st, nil
}
