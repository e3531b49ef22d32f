package daemon

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// streamingPaths serve connections that stay open for a session.
var streamingPaths = map[string]bool{
	"/events": true,
	"/ws":     true,
}

// ginLogger writes one access log entry per request once it completes.
// Streaming sessions are reported with their duration at info level, since
// they end when a client goes away rather than when a reply is sent.
func ginLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Handlers may rewrite the URL.
		path := c.Request.URL.Path
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		status := c.Writer.Status()
		fields := logrus.Fields{
			"status": status,
			"method": c.Request.Method,
			"path":   path,
			"remote": c.ClientIP(),
			"bytes":  max(c.Writer.Size(), 0),
		}

		if streamingPaths[path] {
			fields["duration"] = elapsed.Round(time.Millisecond).String()
			logger.WithFields(fields).Info("session ended")
			return
		}
		fields["latencyMs"] = elapsed.Milliseconds()
		entry := logger.WithFields(fields)

		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			entry.Error(errs.String())
			return
		}

		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Debug("request served")
		}
	}
}
