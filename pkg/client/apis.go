package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"github.com/acuitylab/acuity/pkg/calibration"
	"github.com/acuitylab/acuity/pkg/chart"
	"github.com/acuitylab/acuity/pkg/config"
	"github.com/acuitylab/acuity/pkg/staircase"
	"github.com/acuitylab/acuity/pkg/types"
)

// decode unmarshals a successful response into T.
func decode[T any](ret string, err error, what string) (*T, error) {
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to %s", what)
	}
	var v T
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal response to %s", what)
	}
	return &v, nil
}

func sessionPath(id string, suffix string) string {
	return "/sessions/" + url.PathEscape(id) + suffix
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	var v string
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return "", pkgerrors.Wrapf(err, "failed to unmarshal version")
	}
	return v, nil
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	return decode[config.RawFileConfig](ret, err, "get config")
}

func (c *Client) GetLadder() (*types.LadderInfo, error) {
	ret, err := c.Get("/ladder")
	return decode[types.LadderInfo](ret, err, "get ladder")
}

func (c *Client) GetReferenceObjects() ([]calibration.ReferenceObject, error) {
	ret, err := c.Get("/reference-objects")
	objs, err := decode[[]calibration.ReferenceObject](ret, err, "get reference objects")
	if err != nil {
		return nil, err
	}
	return *objs, nil
}

func (c *Client) CreateSession() (*types.SessionView, error) {
	ret, err := c.Post("/sessions", "")
	return decode[types.SessionView](ret, err, "create session")
}

func (c *Client) ListSessions() ([]string, error) {
	ret, err := c.Get("/sessions")
	ids, err := decode[[]string](ret, err, "list sessions")
	if err != nil {
		return nil, err
	}
	return *ids, nil
}

func (c *Client) GetSession(id string) (*types.SessionView, error) {
	ret, err := c.Get(sessionPath(id, ""))
	return decode[types.SessionView](ret, err, "get session")
}

func (c *Client) DeleteSession(id string) error {
	_, err := c.Delete(sessionPath(id, ""))
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to delete session")
	}
	return nil
}

func (c *Client) SetPixelsPerMm(id string, v float64) (*calibration.Settings, error) {
	ret, err := c.Put(sessionPath(id, "/calibration"), formatFloat(v))
	return decode[calibration.Settings](ret, err, "set calibration")
}

func (c *Client) CalibrateFromPixels(id string, px float64) (*types.CalibrationResult, error) {
	ret, err := c.Put(sessionPath(id, "/calibration/pixels"), formatFloat(px))
	return decode[types.CalibrationResult](ret, err, "calibrate from pixels")
}

func (c *Client) SaveCalibration(id string) (*calibration.Settings, error) {
	ret, err := c.Post(sessionPath(id, "/calibration/save"), "")
	return decode[calibration.Settings](ret, err, "save calibration")
}

func (c *Client) SetReferenceObject(id string, key string, widthMm float64) (*calibration.Settings, error) {
	payload, err := json.Marshal(types.ReferenceObjectRequest{Key: key, WidthMm: widthMm})
	if err != nil {
		return nil, err
	}
	ret, err := c.Put(sessionPath(id, "/reference-object"), string(payload))
	return decode[calibration.Settings](ret, err, "set reference object")
}

func (c *Client) SetViewingDistance(id string, cm float64) (*calibration.Settings, error) {
	ret, err := c.Put(sessionPath(id, "/viewing-distance"), formatFloat(cm))
	return decode[calibration.Settings](ret, err, "set viewing distance")
}

func (c *Client) StartTest(id string) (*types.SessionView, error) {
	ret, err := c.Post(sessionPath(id, "/start"), "")
	return decode[types.SessionView](ret, err, "start test")
}

func (c *Client) Recalibrate(id string) (*types.SessionView, error) {
	ret, err := c.Post(sessionPath(id, "/recalibrate"), "")
	return decode[types.SessionView](ret, err, "return to calibration")
}

func (c *Client) GetPresentation(id string) (*chart.Row, error) {
	ret, err := c.Get(sessionPath(id, "/presentation"))
	return decode[chart.Row](ret, err, "get presentation")
}

func (c *Client) SubmitResponse(id string, couldSee bool) (*staircase.Snapshot, error) {
	ret, err := c.Post(sessionPath(id, "/response"), strconv.FormatBool(couldSee))
	return decode[staircase.Snapshot](ret, err, "submit response")
}

func (c *Client) Restart(id string) (*staircase.Snapshot, error) {
	ret, err := c.Post(sessionPath(id, "/restart"), "")
	return decode[staircase.Snapshot](ret, err, "restart test")
}

func (c *Client) GetView(id string) (*chart.View, error) {
	ret, err := c.Get(sessionPath(id, "/view"))
	return decode[chart.View](ret, err, "get view")
}

// GetChartPNG returns the current screen of a session as a PNG image.
func (c *Client) GetChartPNG(id string, width, height int) ([]byte, error) {
	ret, err := c.Get(sessionPath(id, fmt.Sprintf("/chart.png?width=%d&height=%d", width, height)))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get chart")
	}
	return []byte(ret), nil
}
