package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultAddr is where the daemon listens by default.
const DefaultAddr = "127.0.0.1:10811"

// Client is a struct for communicating with the gazeserver daemon
type Client struct {
	addr       string
	httpClient *http.Client
}

// NewClient is a constructor for creating a new Client. addr is host:port.
func NewClient(addr string) *Client {
	if addr == "" {
		addr = DefaultAddr
	}
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	return &Client{
		addr: addr,
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, address string) (net.Conn, error) {
					conn, err := dialer.DialContext(ctx, network, address)
					if err != nil {
						if errors.Is(err, syscall.ECONNREFUSED) {
							return nil, ErrDaemonNotRunning
						}
						logrus.Errorf("failed to connect to daemon: %v", err)
						return nil, err
					}
					return conn, nil
				},
			},
		},
	}
}

// Addr returns the daemon address.
func (c *Client) Addr() string {
	return c.addr
}

func (c *Client) url(path string) string {
	return "http://" + c.addr + path
}

// Send is a method for sending a request to the daemon
func (c *Client) Send(method string, path string, data string) (string, error) {
	logrus.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"data":   data,
		"addr":   c.addr,
	}).Debug("sending request")

	var body io.Reader
	if data != "" {
		body = strings.NewReader(data)
	}
	req, err := http.NewRequest(method, c.url(path), body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if data != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.Errorf("failed to close response body: %v", err)
		}
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	ret := string(b)

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s", ErrNotFound, ret)
	}
	if resp.StatusCode == http.StatusConflict {
		return "", fmt.Errorf("%w: %s", ErrConflict, ret)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("got %d: %s", resp.StatusCode, ret)
	}

	return ret, nil
}

// Get is a method for sending a GET request to the daemon
func (c *Client) Get(path string) (string, error) {
	return c.Send(http.MethodGet, path, "")
}

// Put is a method for sending a PUT request to the daemon
func (c *Client) Put(path string, data string) (string, error) {
	return c.Send(http.MethodPut, path, data)
}

// Post is a method for sending a POST request to the daemon
func (c *Client) Post(path string, data string) (string, error) {
	return c.Send(http.MethodPost, path, data)
}
