package distance

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultBackendURL is where the backend listens by default.
const DefaultBackendURL = "ws://localhost:8000/ws"

var (
	// ErrBackend is returned when the backend reports an error.
	ErrBackend = errors.New("distance backend error")
	// ErrConnectionLost is returned once a request has gone unanswered or the
	// connection has failed. Responses carry no request ID, so a late reply
	// cannot be told apart from the next one; the connection must be
	// re-established with Reconnect.
	ErrConnectionLost = errors.New("distance backend connection lost")
)

// Client is a connection to the backend. Calls are serialized: each request
// waits for its response before the next one is sent.
type Client struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	url    string
	broken error
}

func dial(ctx context.Context, url string) (*websocket.Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, http.Header{})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to connect to distance backend at %s", url)
	}
	logrus.WithField("url", url).Debug("connected to distance backend")
	return conn, nil
}

// Dial connects to the backend at url.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, err := dial(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, url: url}, nil
}

// Reconnect replaces the connection with a fresh one to the same backend.
// The caller should switch the backend back into the mode it needs.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := dial(ctx, c.url)
	if err != nil {
		return err
	}
	_ = c.conn.Close()
	c.conn = conn
	c.broken = nil
	return nil
}

// Broken reports whether the connection needs Reconnect.
func (c *Client) Broken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broken != nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.conn.Close()
}

// roundTrip sends req and waits for one response.
func (c *Client) roundTrip(ctx context.Context, req Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken != nil {
		return nil, pkgerrors.Wrapf(ErrConnectionLost, "not sending %q: %v", req.Command, c.broken)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to set write deadline")
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to set read deadline")
	}

	// Unblock the read when ctx is cancelled without a deadline.
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	// A failed write or read leaves the websocket unusable.
	if err := c.conn.WriteJSON(req); err != nil {
		c.broken = err
		return nil, pkgerrors.Wrapf(ErrConnectionLost, "failed to send %q: %v", req.Command, err)
	}

	var resp Response
	if err := c.conn.ReadJSON(&resp); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		c.broken = err
		return nil, pkgerrors.Wrapf(ErrConnectionLost, "no response to %q: %v", req.Command, err)
	}

	logrus.WithFields(logrus.Fields{
		"command": req.Command,
		"message": resp.Message,
		"faces":   len(resp.Faces),
	}).Trace("distance backend response")

	if resp.Error != "" {
		return &resp, pkgerrors.Wrap(ErrBackend, resp.Error)
	}
	return &resp, nil
}

// BeginCalibration asks the backend to calibrate its focal length on the
// next captured frame.
func (c *Client) BeginCalibration(ctx context.Context) (*Response, error) {
	return c.roundTrip(ctx, Request{Command: CommandBeginCalibration})
}

// CaptureCalibrationFrame sends the frame the focal length is derived from.
// The patient should stand at arm's length.
func (c *Client) CaptureCalibrationFrame(ctx context.Context, image string) (*Response, error) {
	return c.roundTrip(ctx, Request{Command: CommandCapture, Image: image})
}

// BeginDistanceMeasurement switches the backend to distance mode.
func (c *Client) BeginDistanceMeasurement(ctx context.Context) (*Response, error) {
	return c.roundTrip(ctx, Request{Command: CommandBeginDistance})
}

// SendFrame submits one camera frame for distance measurement. The backend
// silently drops frames sent less than 50ms apart, so ctx should carry a
// deadline. A dropped frame fails with ErrConnectionLost.
func (c *Client) SendFrame(ctx context.Context, image string) (*Response, error) {
	return c.roundTrip(ctx, Request{Image: image})
}

// Stop ends calibration and distance measurement.
func (c *Client) Stop(ctx context.Context) (*Response, error) {
	return c.roundTrip(ctx, Request{Command: CommandStop})
}

// JPEGDataURL wraps raw JPEG bytes the way the backend expects frames.
func JPEGDataURL(b []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(b)
}
