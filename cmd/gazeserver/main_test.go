package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/gazeserver/pkg/tracker"
	"github.com/charlie0129/gazeserver/pkg/version"
)

func runCommand(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()

	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	if srv != nil {
		args = append(args, "--addr", strings.TrimPrefix(srv.URL, "http://"))
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, nil, "version")
	require.NoError(t, err)
	require.Contains(t, out, version.Version)
}

func TestTrackersCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/version":
			_, _ = w.Write([]byte(`"` + version.Version + `"`))
		case "/trackers":
			_, _ = w.Write([]byte(`[{"id":"sim-1","model":"Simulated","name":"Sim","status":"connected"}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	out, err := runCommand(t, srv, "trackers")
	require.NoError(t, err)
	require.Contains(t, out, "sim-1")
	require.Contains(t, out, "Simulated")
}

func TestConfigSetDwellRejectsBadArgs(t *testing.T) {
	_, err := runCommand(t, nil, "config", "set-dwell", "abc", "--addr", "127.0.0.1:1")
	require.ErrorContains(t, err, "invalid dwell")
}

func TestFormatSample(t *testing.T) {
	color.NoColor = true

	s := tracker.GazeSample{
		Timestamp:       1_500_000,
		LeftGazePoint2D: &tracker.Point2D{X: 0.25, Y: 0.5},
		LeftValidity:    0,
		RightValidity:   4,
	}
	line := formatSample(s, tracker.DefaultValidityThreshold)
	require.Contains(t, line, "1.5s")
	require.Contains(t, line, "(0.250, 0.500)")
	require.Contains(t, line, "--")
}
