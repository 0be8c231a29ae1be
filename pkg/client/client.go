package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/acuitylab/acuity/pkg/events"
)

// Client is a struct for communicating with the acuity daemon
type Client struct {
	socketPath string
	httpClient *http.Client
}

// NewClient is a constructor for creating a new Client
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					conn, err := d.DialContext(ctx, "unix", socketPath)
					if err != nil {
						if os.IsNotExist(err) || errors.Is(err, os.ErrNotExist) {
							return nil, ErrDaemonNotRunning
						}
						if os.IsPermission(err) || errors.Is(err, os.ErrPermission) {
							return nil, ErrPermissionDenied
						}
						logrus.Errorf("failed to connect to unix socket: %v", err)
						return nil, err
					}
					return conn, err
				},
			},
		},
	}
}

func (c *Client) do(ctx context.Context, method string, path string, data string) (*http.Response, error) {
	logrus.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"data":   data,
		"unix":   c.socketPath,
	}).Debug("sending request")

	var body io.Reader
	if data != "" {
		body = strings.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, "http://unix"+path, body)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to create request")
	}
	if data != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The transport wraps dial errors; keep the sentinels matchable.
		for _, sentinel := range []error{ErrDaemonNotRunning, ErrPermissionDenied} {
			if errors.Is(err, sentinel) {
				return nil, sentinel
			}
		}
		return nil, pkgerrors.Wrapf(err, "failed to send request")
	}
	return resp, nil
}

// Send is a method for sending a request to the acuity daemon
func (c *Client) Send(method string, path string, data string) (string, error) {
	resp, err := c.do(context.Background(), method, path, data)
	if err != nil {
		return "", err
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.Errorf("failed to close response body: %v", err)
		}
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to read response body")
	}
	body := string(b)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Errors come back as a JSON string.
		var msg string
		if json.Unmarshal(b, &msg) != nil {
			msg = body
		}
		switch resp.StatusCode {
		case http.StatusNotFound:
			return "", pkgerrors.Wrapf(ErrNotFound, "%s", msg)
		case http.StatusConflict:
			return "", pkgerrors.Wrapf(ErrConflict, "%s", msg)
		case http.StatusBadRequest:
			return "", pkgerrors.Wrapf(ErrBadRequest, "%s", msg)
		}
		return "", pkgerrors.Errorf("got %d: %s", resp.StatusCode, msg)
	}

	return body, nil
}

// Get is a method for sending a GET request to the acuity daemon
func (c *Client) Get(path string) (string, error) {
	return c.Send(http.MethodGet, path, "")
}

// Put is a method for sending a PUT request to the acuity daemon
func (c *Client) Put(path string, data string) (string, error) {
	return c.Send(http.MethodPut, path, data)
}

// Post is a method for sending a POST request to the acuity daemon
func (c *Client) Post(path string, data string) (string, error) {
	return c.Send(http.MethodPost, path, data)
}

// Delete is a method for sending a DELETE request to the acuity daemon
func (c *Client) Delete(path string) (string, error) {
	return c.Send(http.MethodDelete, path, "")
}

// SubscribeEvents streams daemon events until ctx is cancelled or the
// daemon closes the stream. The returned channel is closed when streaming
// stops.
func (c *Client) SubscribeEvents(ctx context.Context) <-chan events.Event {
	out := make(chan events.Event, 16)

	go func() {
		defer close(out)

		resp, err := c.do(ctx, http.MethodGet, "/events", "")
		if err != nil {
			logrus.WithError(err).Warn("failed to subscribe to daemon events")
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			logrus.WithField("status", resp.StatusCode).Warn("daemon refused event subscription")
			return
		}

		var name string
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			line := sc.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
				select {
				case out <- events.Event{Name: name, Data: json.RawMessage(data)}:
				case <-ctx.Done():
					return
				}
				name = ""
			}
		}
		if err := sc.Err(); err != nil && ctx.Err() == nil {
			logrus.WithError(err).Warn("event stream ended")
		}
	}()

	return out
}
