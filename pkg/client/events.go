package client

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/gazeserver/pkg/events"
)

// SubscribeEvents follows the daemon's event stream. The returned channel
// is closed when ctx is done or the stream ends.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan events.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/events"), nil)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to events: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, pkgerrors.Errorf("failed to subscribe to events: got %d", resp.StatusCode)
	}

	ch := make(chan events.Event, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		var ev events.Event
		var data strings.Builder
		for sc.Scan() {
			line := sc.Text()
			switch {
			case line == "":
				if ev.Name != "" || data.Len() > 0 {
					ev.Data = []byte(data.String())
					select {
					case ch <- ev:
					case <-ctx.Done():
						return
					}
				}
				ev = events.Event{}
				data.Reset()
			case strings.HasPrefix(line, "event:"):
				ev.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				if data.Len() > 0 {
					data.WriteByte('\n')
				}
				data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			}
		}
		if err := sc.Err(); err != nil && ctx.Err() == nil {
			logrus.WithError(err).Debug("event stream ended")
		}
	}()

	return ch, nil
}
