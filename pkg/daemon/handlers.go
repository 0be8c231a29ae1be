package daemon

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/acuitylab/acuity/pkg/calibration"
	"github.com/acuitylab/acuity/pkg/chart"
	"github.com/acuitylab/acuity/pkg/config"
	"github.com/acuitylab/acuity/pkg/events"
	"github.com/acuitylab/acuity/pkg/staircase"
	"github.com/acuitylab/acuity/pkg/types"
	"github.com/acuitylab/acuity/pkg/version"
)

const (
	sessionKey = "session"
	// maxChartSide bounds the requested PNG size.
	maxChartSide = 4096
)

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}

func (d *Daemon) getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(d.conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func (d *Daemon) getLadder(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, types.LadderInfo{
		Levels:   d.conf.Ladder().Levels(),
		Standard: d.conf.StandardLevels().Levels(),
		Start:    d.conf.StartLevel(),
	})
}

func getReferenceObjects(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, calibration.ReferenceObjects())
}

// streamEvents relays hub events as Server-Sent Events until the client
// goes away.
func (d *Daemon) streamEvents(c *gin.Context) {
	if d.hub == nil {
		abort(c, http.StatusServiceUnavailable, pkgerrors.New("events are not available"))
		return
	}

	ch := d.hub.Subscribe()
	defer d.hub.Unsubscribe(ch)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(ev.Name, string(ev.Data))
			return true
		}
	})
}

func (d *Daemon) createSession(c *gin.Context) {
	s, err := newSession(d.conf, d.generator(), time.Now())
	if err != nil {
		abortErr(c, err)
		return
	}
	d.sessions.Add(s)

	view := s.View()
	logrus.WithFields(logrus.Fields{
		"session": s.ID,
		"level":   view.State.Level,
	}).Info("session created")
	d.hub.Publish(events.SessionCreated, events.SessionCreatedEvent{
		ID:    s.ID,
		Level: string(view.State.Level),
		Ts:    time.Now().Unix(),
	})

	c.IndentedJSON(http.StatusCreated, view)
}

func (d *Daemon) listSessions(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, d.sessions.IDs())
}

// loadSession resolves the :id path parameter for the session routes.
func (d *Daemon) loadSession(c *gin.Context) {
	s, err := d.sessions.Get(c.Param("id"))
	if err != nil {
		abortErr(c, err)
		return
	}
	c.Set(sessionKey, s)
	c.Next()
}

func session(c *gin.Context) *Session {
	return c.MustGet(sessionKey).(*Session)
}

func (d *Daemon) getSession(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, session(c).View())
}

func (d *Daemon) deleteSession(c *gin.Context) {
	s := session(c)
	if err := d.sessions.Delete(s.ID); err != nil {
		abortErr(c, err)
		return
	}
	logrus.WithField("session", s.ID).Info("session deleted")
	d.hub.Publish(events.SessionDeleted, events.SessionDeletedEvent{
		ID:     s.ID,
		Reason: "deleted",
		Ts:     time.Now().Unix(),
	})
	c.IndentedJSON(http.StatusOK, "ok")
}

func (d *Daemon) publishCalibration(id string, st calibration.Settings) {
	d.hub.Publish(events.SessionCalibration, events.SessionCalibrationEvent{
		ID:                id,
		PixelsPerMm:       st.PixelsPerMm,
		ReferenceObject:   st.ReferenceObject,
		ViewingDistanceCm: st.ViewingDistanceCm,
		Frozen:            st.Frozen,
		Ts:                time.Now().Unix(),
	})
}

func (d *Daemon) setCalibration(c *gin.Context) {
	var v float64
	if err := c.ShouldBindJSON(&v); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	s := session(c)
	st, err := s.SetPixelsPerMm(v)
	if err != nil {
		abortErr(c, err)
		return
	}
	logrus.WithFields(logrus.Fields{"session": s.ID, "pixelsPerMm": v}).Info("set calibration")
	d.publishCalibration(s.ID, st)

	c.IndentedJSON(http.StatusCreated, st)
}

func (d *Daemon) calibrateFromPixels(c *gin.Context) {
	var px float64
	if err := c.ShouldBindJSON(&px); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	s := session(c)
	scale, st, err := s.CalibrateFromPixels(px)
	if err != nil {
		abortErr(c, err)
		return
	}
	d.publishCalibration(s.ID, st)

	c.IndentedJSON(http.StatusCreated, types.CalibrationResult{PixelsPerMm: scale, Settings: st})
}

// saveCalibration remembers a session's calibration as the default for new
// sessions.
func (d *Daemon) saveCalibration(c *gin.Context) {
	s := session(c)
	st := s.Calibration()
	if !st.Calibrated() {
		abortErr(c, ErrNotCalibrated)
		return
	}

	for _, set := range []func() error{
		func() error { return d.conf.SetPixelsPerMm(st.PixelsPerMm) },
		func() error { return d.conf.SetViewingDistanceCm(st.ViewingDistanceCm) },
		func() error { return d.conf.SetReferenceObject(st.ReferenceObject) },
		func() error {
			if st.ReferenceObject != calibration.ObjectCustom {
				return nil
			}
			return d.conf.SetCustomReferenceWidthMm(st.ReferenceWidthMm)
		},
	} {
		if err := set(); err != nil {
			abortErr(c, err)
			return
		}
	}
	if err := d.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abort(c, http.StatusInternalServerError, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"session":           s.ID,
		"pixelsPerMm":       st.PixelsPerMm,
		"viewingDistanceCm": st.ViewingDistanceCm,
	}).Info("saved calibration as default")

	c.IndentedJSON(http.StatusCreated, st)
}

func (d *Daemon) setReferenceObject(c *gin.Context) {
	var req types.ReferenceObjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	s := session(c)
	st, err := s.SetReferenceObject(req.Key, req.WidthMm)
	if err != nil {
		abortErr(c, err)
		return
	}
	d.publishCalibration(s.ID, st)

	c.IndentedJSON(http.StatusCreated, st)
}

func (d *Daemon) setViewingDistance(c *gin.Context) {
	var cm float64
	if err := c.ShouldBindJSON(&cm); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	s := session(c)
	st, err := s.SetViewingDistance(cm)
	if err != nil {
		abortErr(c, err)
		return
	}
	logrus.WithFields(logrus.Fields{"session": s.ID, "viewingDistanceCm": cm}).Info("set viewing distance")
	d.publishCalibration(s.ID, st)

	c.IndentedJSON(http.StatusCreated, st)
}

func (d *Daemon) startTest(c *gin.Context) {
	s := session(c)
	view, err := s.Start()
	if err != nil {
		abortErr(c, err)
		return
	}
	d.publishCalibration(s.ID, view.Calibration)
	d.publishLevel(s.ID, view.State, view.Calibration)

	c.IndentedJSON(http.StatusOK, view)
}

func (d *Daemon) recalibrate(c *gin.Context) {
	s := session(c)
	view := s.Recalibrate()
	d.publishCalibration(s.ID, view.Calibration)

	c.IndentedJSON(http.StatusOK, view)
}

func (d *Daemon) getPresentation(c *gin.Context) {
	row, err := session(c).Presentation()
	if err != nil {
		abortErr(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, row)
}

func (d *Daemon) publishLevel(id string, snap staircase.Snapshot, st calibration.Settings) {
	d.hub.Publish(events.SessionLevel, events.SessionLevelEvent{
		ID:       id,
		Phase:    string(snap.Phase),
		Level:    string(snap.Level),
		SizePx:   st.SizeInPixels(snap.Level),
		Refining: snap.Refining(),
		Trials:   len(snap.History),
		Ts:       time.Now().Unix(),
	})
}

func (d *Daemon) submitResponse(c *gin.Context) {
	var couldSee bool
	if err := c.ShouldBindJSON(&couldSee); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	s := session(c)
	out, err := s.Respond(couldSee)
	if err != nil {
		abortErr(c, err)
		return
	}

	snap := out.Snapshot
	switch {
	case out.Presented:
		d.publishLevel(s.ID, snap, s.Calibration())
	case out.Completed:
		logrus.WithFields(logrus.Fields{
			"session":        s.ID,
			"finalAcuity":    snap.FinalAcuity,
			"classification": snap.Classification,
			"trials":         len(snap.History),
		}).Info("test complete")
		d.hub.Publish(events.SessionComplete, events.SessionCompleteEvent{
			ID:             s.ID,
			FinalAcuity:    string(snap.FinalAcuity),
			Classification: string(snap.Classification),
			Trials:         len(snap.History),
			Ts:             time.Now().Unix(),
		})
	}

	c.IndentedJSON(http.StatusOK, snap)
}

func (d *Daemon) restart(c *gin.Context) {
	s := session(c)
	snap := s.Restart()
	logrus.WithField("session", s.ID).Info("test restarted")
	d.publishLevel(s.ID, snap, s.Calibration())

	c.IndentedJSON(http.StatusOK, snap)
}

func (d *Daemon) getView(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, session(c).ChartView())
}

func chartDimension(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 || v > maxChartSide {
		return 0, pkgerrors.Errorf("%s must be between 1 and %d, got %q", key, maxChartSide, raw)
	}
	return v, nil
}

func (d *Daemon) getChartPNG(c *gin.Context) {
	w, err := chartDimension(c, "width", chart.DefaultWidth)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	h, err := chartDimension(c, "height", chart.DefaultHeight)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	var buf bytes.Buffer
	if err := chart.RenderPNG(&buf, session(c).ChartView(), w, h); err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}
