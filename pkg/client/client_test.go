package client

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/gazeserver/pkg/events"
	"github.com/charlie0129/gazeserver/pkg/tracker"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(strings.TrimPrefix(srv.URL, "http://"))
}

func TestClient_DaemonNotRunning(t *testing.T) {
	// Grab a free port and release it so nothing is listening there.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	c := NewClient(addr)
	_, err = c.GetVersion()
	require.ErrorIs(t, err, ErrDaemonNotRunning)

	err = c.WatchSamples(context.Background(), func(tracker.GazeSample) error { return nil })
	require.ErrorIs(t, err, ErrDaemonNotRunning)
}

func TestClient_StatusMapping(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`"v1.2.3"`))
	})
	mux.HandleFunc("/tracking/start", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["tracker"] == "missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`"tracker not found"`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"tracking": true, "trackerId": "sim-1"}`))
	})
	mux.HandleFunc("/calibration", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`"calibration already in progress"`))
	})

	c := newTestClient(t, mux)

	v, err := c.GetVersion()
	require.NoError(t, err)
	require.Equal(t, "v1.2.3", v)

	st, err := c.StartTracking("")
	require.NoError(t, err)
	require.True(t, st.Tracking)
	require.Equal(t, "sim-1", st.TrackerID)

	_, err = c.StartTracking("missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = c.RunCalibration("")
	require.ErrorIs(t, err, ErrConflict)
}

func TestClient_SubscribeEvents(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		f := w.(http.Flusher)
		_, _ = w.Write([]byte("event:calibration.point\ndata:{\"x\":0.1,\"y\":0.9,\"ts\":1}\n\n"))
		_, _ = w.Write([]byte("event:tracker.status\ndata:{\"left\":true}\n\n"))
		f.Flush()
	})
	c := newTestClient(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ch, err := c.SubscribeEvents(ctx)
	require.NoError(t, err)

	ev := <-ch
	require.Equal(t, events.CalibrationPoint, ev.Name)
	p, err := events.DecodeAs[events.CalibrationPointEvent](ev)
	require.NoError(t, err)
	require.Equal(t, 0.1, p.X)
	require.Equal(t, 0.9, p.Y)

	ev = <-ch
	require.Equal(t, events.TrackerStatus, ev.Name)

	_, ok := <-ch
	require.False(t, ok)
}

func TestClient_WatchSamples(t *testing.T) {
	upgrader := websocket.Upgrader{}
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := int64(1); i <= 3; i++ {
			b, _ := json.Marshal(tracker.GazeSample{Timestamp: i})
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})
	c := newTestClient(t, h)

	var got []int64
	err := c.WatchSamples(context.Background(), func(s tracker.GazeSample) error {
		got = append(got, s.Timestamp)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, got)
}
