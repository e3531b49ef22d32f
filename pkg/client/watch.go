package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/gazeserver/pkg/tracker"
)

// WatchSamples connects to the sample stream and calls fn for each gaze
// sample until ctx is done, fn returns an error, or the daemon closes the
// connection.
func (c *Client) WatchSamples(ctx context.Context, fn func(s tracker.GazeSample) error) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, "ws://"+c.addr+"/ws", nil)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return ErrDaemonNotRunning
		}
		return fmt.Errorf("failed to connect to sample stream: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-done:
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return pkgerrors.Wrap(err, "sample stream failed")
		}

		var s tracker.GazeSample
		if err := json.Unmarshal(msg, &s); err != nil {
			return pkgerrors.Wrap(err, "failed to unmarshal gaze sample")
		}
		if err := fn(s); err != nil {
			return err
		}
	}
}
