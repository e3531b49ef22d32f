package daemon

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/gazeserver/pkg/calibration"
	"github.com/charlie0129/gazeserver/pkg/config"
	"github.com/charlie0129/gazeserver/pkg/tracker"
	"github.com/charlie0129/gazeserver/pkg/version"
)

// TrackerRequest selects a tracker. An empty id selects the configured one.
type TrackerRequest struct {
	Tracker string `json:"tracker"`
}

func abortWithError(c *gin.Context, code int, err error) {
	c.IndentedJSON(code, err.Error())
	_ = c.AbortWithError(code, err)
}

// bindTrackerRequest accepts an empty body as the zero request.
func bindTrackerRequest(c *gin.Context) (TrackerRequest, bool) {
	var req TrackerRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return req, false
	}
	return req, true
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}

func getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func setDwell(c *gin.Context) {
	var ms int
	if err := c.BindJSON(&ms); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	d := time.Duration(ms) * time.Millisecond
	if err := conf.SetDwell(d); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	runner.SetDwell(d)

	logrus.Infof("set dwell time to %s", d)

	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("set dwell time to %s", d))
}

func setTracker(c *gin.Context) {
	var id string
	if err := c.BindJSON(&id); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if id != "" {
		if _, err := browser.Open(id); err != nil {
			abortWithError(c, http.StatusNotFound, err)
			return
		}
	}

	conf.SetTracker(id)
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("set tracker to %q", id)

	c.IndentedJSON(http.StatusCreated, "ok")
}

func getTrackers(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, browser.List())
}

func getTracking(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, session.status())
}

func startTracking(c *gin.Context) {
	req, ok := bindTrackerRequest(c)
	if !ok {
		return
	}

	st, err := session.start(req.Tracker)
	switch {
	case errors.Is(err, tracker.ErrNotFound):
		abortWithError(c, http.StatusNotFound, err)
		return
	case errors.Is(err, errAlreadyTracking):
		abortWithError(c, http.StatusConflict, err)
		return
	case err != nil:
		logrus.WithError(err).Error("failed to start tracking")
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	c.IndentedJSON(http.StatusCreated, st)
}

func stopTracking(c *gin.Context) {
	err := session.stop()
	switch {
	case errors.Is(err, errNotTracking):
		abortWithError(c, http.StatusConflict, err)
		return
	case err != nil:
		logrus.WithError(err).Error("failed to stop tracking")
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	c.IndentedJSON(http.StatusOK, "ok")
}

func getCalibration(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, runner.Status())
}

// runCalibration runs a calibration on the tracker being tracked, or on the
// requested one, and replies once the run has been torn down.
func runCalibration(c *gin.Context) {
	req, ok := bindTrackerRequest(c)
	if !ok {
		return
	}

	t := session.current()
	if t == nil || (req.Tracker != "" && req.Tracker != t.ID()) {
		var err error
		t, err = openTracker(req.Tracker)
		if err != nil {
			abortWithError(c, http.StatusNotFound, err)
			return
		}
	}

	start := time.Now()
	model, err := runner.Run(t)
	if errors.Is(err, calibration.ErrCalibrationInProgress) {
		abortWithError(c, http.StatusConflict, err)
		return
	}

	res := calibration.Result{
		Success:     err == nil,
		Calibration: model,
		Duration:    time.Since(start),
	}
	if err != nil {
		res.Error = err.Error()
	}

	c.IndentedJSON(http.StatusOK, res)
}

func getSubscribers(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, broadcaster.Stats())
}
