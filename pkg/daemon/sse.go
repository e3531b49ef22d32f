package daemon

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// streamEvents streams hub events as server-sent events until the client
// goes away or the daemon shuts down.
func streamEvents(c *gin.Context) {
	ch := sseHub.Subscribe()
	defer func() {
		if missed := sseHub.Unsubscribe(ch); missed > 0 {
			logrus.WithField("missed", missed).Warn("event listener fell behind and missed events")
		}
	}()

	logrus.WithField("listeners", sseHub.Len()).Debug("event listener attached")

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	// Send headers right away so clients see the stream before the first event.
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		case <-c.Request.Context().Done():
			return false
		case <-quit:
			return false
		}
	})
}
