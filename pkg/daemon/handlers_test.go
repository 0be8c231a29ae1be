package daemon

import (
	"bufio"
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/acuitylab/acuity/pkg/acuity"
	"github.com/acuitylab/acuity/pkg/calibration"
	"github.com/acuitylab/acuity/pkg/chart"
	"github.com/acuitylab/acuity/pkg/config"
	"github.com/acuitylab/acuity/pkg/events"
	"github.com/acuitylab/acuity/pkg/optotype"
	"github.com/acuitylab/acuity/pkg/staircase"
	"github.com/acuitylab/acuity/pkg/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	t      *testing.T
	d      *Daemon
	conf   *config.File
	path   string
	router *gin.Engine
}

func newHarness(t *testing.T, raw *config.RawFileConfig) *harness {
	t.Helper()
	path := filepath.Join(t.TempDir(), "acuity.json")
	conf := config.NewFileFromConfig(raw, path)
	d := New(conf, events.NewEventHub())
	d.newGenerator = func() optotype.Generator { return optotype.NewSeededGenerator(7) }
	return &harness{t: t, d: d, conf: conf, path: path, router: d.Router()}
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	h.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) expect(method, path, body string, status int, out any) {
	h.t.Helper()
	w := h.do(method, path, body)
	if w.Code != status {
		h.t.Fatalf("%s %s: status %d, want %d, body %s", method, path, w.Code, status, w.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			h.t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
}

func (h *harness) create() types.SessionView {
	var v types.SessionView
	h.expect(http.MethodPost, "/sessions", "", http.StatusCreated, &v)
	return v
}

func TestSessionFlow(t *testing.T) {
	h := newHarness(t, nil)
	v := h.create()
	base := "/sessions/" + v.ID

	if !v.Setup || v.State.Phase != staircase.PhaseAwaitingFirstResponse || v.State.Level != "6/6" {
		t.Fatalf("unexpected new session %+v", v)
	}
	if v.Calibration.Calibrated() {
		t.Fatalf("new session should not be calibrated")
	}

	h.expect(http.MethodPost, base+"/response", "true", http.StatusConflict, nil)
	h.expect(http.MethodPost, base+"/start", "", http.StatusConflict, nil)

	// Invalid calibration is rejected and the old value kept.
	h.expect(http.MethodPut, base+"/calibration", "0", http.StatusBadRequest, nil)
	h.expect(http.MethodPut, base+"/viewing-distance", "-1", http.StatusBadRequest, nil)
	h.expect(http.MethodPut, base+"/calibration", `"abc"`, http.StatusBadRequest, nil)

	var res types.CalibrationResult
	h.expect(http.MethodPut, base+"/calibration/pixels", "342.4", http.StatusCreated, &res)
	if res.PixelsPerMm != 4 || res.Settings.ReferenceObject != calibration.ObjectCreditCard {
		t.Fatalf("unexpected calibration %+v", res)
	}

	var st calibration.Settings
	h.expect(http.MethodPut, base+"/viewing-distance", "300", http.StatusCreated, &st)
	if st.ViewingDistanceCm != 300 || st.PixelsPerMm != 4 {
		t.Fatalf("unexpected settings %+v", st)
	}

	h.expect(http.MethodPost, base+"/start", "", http.StatusOK, &v)
	if v.Setup || !v.Calibration.Frozen {
		t.Fatalf("expected frozen calibration after start, got %+v", v)
	}
	h.expect(http.MethodPut, base+"/calibration", "5", http.StatusConflict, nil)
	h.expect(http.MethodPut, base+"/viewing-distance", "200", http.StatusConflict, nil)

	// Reading the presentation never redraws the row.
	var p1, p2 chart.Row
	h.expect(http.MethodGet, base+"/presentation", "", http.StatusOK, &p1)
	h.expect(http.MethodGet, base+"/presentation", "", http.StatusOK, &p2)
	if p1.Level != "6/6" || len(p1.Orientations) != optotype.DefaultSymbolsPerRow {
		t.Fatalf("unexpected presentation %+v", p1)
	}
	for i := range p1.Orientations {
		if p1.Orientations[i] != p2.Orientations[i] {
			t.Fatalf("row changed between reads: %v vs %v", p1.Orientations, p2.Orientations)
		}
	}
	want, _ := calibration.SizeInMillimeters("6/6", acuity.Reference, 300)
	if d := p1.SizePx - want*4; d > 1e-9 || d < -1e-9 {
		t.Fatalf("size = %v, want %v", p1.SizePx, want*4)
	}

	var snap staircase.Snapshot
	for _, seen := range []string{"true", "true", "false"} {
		h.expect(http.MethodPost, base+"/response", seen, http.StatusOK, &snap)
	}
	if !snap.Terminal || snap.FinalAcuity != "6/5" || len(snap.History) != 3 {
		t.Fatalf("unexpected final snapshot %+v", snap)
	}
	if snap.Classification != acuity.ClassBetter {
		t.Fatalf("classification = %s", snap.Classification)
	}

	h.expect(http.MethodGet, base+"/presentation", "", http.StatusConflict, nil)

	// Responses after completion are accepted and change nothing.
	h.expect(http.MethodPost, base+"/response", "false", http.StatusOK, &snap)
	if snap.FinalAcuity != "6/5" || len(snap.History) != 3 {
		t.Fatalf("response after completion changed state: %+v", snap)
	}

	var view chart.View
	h.expect(http.MethodGet, base+"/view", "", http.StatusOK, &view)
	if view.Mode != chart.ModeSummary || view.Summary == nil || view.Summary.FinalAcuity != "6/5" {
		t.Fatalf("unexpected view %+v", view)
	}

	w := h.do(http.MethodGet, base+"/chart.png?width=200&height=100", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("chart.png: %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("decode chart: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 100 {
		t.Fatalf("chart bounds %v", b)
	}
	h.expect(http.MethodGet, base+"/chart.png?width=0", "", http.StatusBadRequest, nil)

	snap = staircase.Snapshot{}
	h.expect(http.MethodPost, base+"/restart", "", http.StatusOK, &snap)
	if snap.Phase != staircase.PhaseAwaitingFirstResponse || len(snap.History) != 0 || snap.Terminal || snap.FinalAcuity != "" {
		t.Fatalf("restart did not reset: %+v", snap)
	}

	// Recalibrating leaves the staircase alone and unfreezes calibration.
	h.expect(http.MethodPost, base+"/response", "false", http.StatusOK, &snap)
	h.expect(http.MethodPost, base+"/recalibrate", "", http.StatusOK, &v)
	if !v.Setup || v.Calibration.Frozen || len(v.State.History) != 1 {
		t.Fatalf("unexpected state after recalibrate %+v", v)
	}
	h.expect(http.MethodGet, base+"/view", "", http.StatusOK, &view)
	if view.Mode != chart.ModeCalibration {
		t.Fatalf("expected calibration view during setup, got %s", view.Mode)
	}
	h.expect(http.MethodPut, base+"/calibration", "5", http.StatusCreated, nil)
}

func TestReferenceObject(t *testing.T) {
	h := newHarness(t, nil)
	base := "/sessions/" + h.create().ID

	var st calibration.Settings
	h.expect(http.MethodPut, base+"/reference-object", `{"key":"a4-paper"}`, http.StatusCreated, &st)
	if st.ReferenceObject != calibration.ObjectA4Paper || st.ReferenceWidthMm != 210 {
		t.Fatalf("unexpected settings %+v", st)
	}
	h.expect(http.MethodPut, base+"/reference-object", `{"key":"custom","widthMm":120}`, http.StatusCreated, &st)
	if st.ReferenceWidthMm != 120 {
		t.Fatalf("custom width = %v", st.ReferenceWidthMm)
	}
	h.expect(http.MethodPut, base+"/reference-object", `{"key":"custom","widthMm":-5}`, http.StatusBadRequest, nil)
	h.expect(http.MethodPut, base+"/reference-object", `{"key":"banana"}`, http.StatusBadRequest, nil)

	var v types.SessionView
	h.expect(http.MethodGet, base, "", http.StatusOK, &v)
	if v.Calibration.ReferenceObject != calibration.ObjectCustom || v.Calibration.ReferenceWidthMm != 120 {
		t.Fatalf("rejected update changed settings: %+v", v.Calibration)
	}

	var objects []calibration.ReferenceObject
	h.expect(http.MethodGet, "/reference-objects", "", http.StatusOK, &objects)
	if len(objects) != 4 {
		t.Fatalf("got %d reference objects", len(objects))
	}
}

func TestUnknownSession(t *testing.T) {
	h := newHarness(t, nil)
	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/sessions/nope"},
		{http.MethodDelete, "/sessions/nope"},
		{http.MethodPost, "/sessions/nope/response"},
		{http.MethodGet, "/sessions/nope/chart.png"},
	} {
		h.expect(r.method, r.path, "true", http.StatusNotFound, nil)
	}
}

func TestListAndDelete(t *testing.T) {
	h := newHarness(t, nil)
	a, b := h.create(), h.create()

	var ids []string
	h.expect(http.MethodGet, "/sessions", "", http.StatusOK, &ids)
	if len(ids) != 2 || ids[0] != a.ID || ids[1] != b.ID {
		t.Fatalf("unexpected ids %v", ids)
	}

	h.expect(http.MethodDelete, "/sessions/"+a.ID, "", http.StatusOK, nil)
	h.expect(http.MethodGet, "/sessions/"+a.ID, "", http.StatusNotFound, nil)
	h.expect(http.MethodGet, "/sessions", "", http.StatusOK, &ids)
	if len(ids) != 1 || ids[0] != b.ID {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestLadderAndConfig(t *testing.T) {
	h := newHarness(t, &config.RawFileConfig{
		Ladder:         []string{"6/3", "6/6", "6/12", "6/24", "6/60"},
		StandardLevels: []string{"6/3", "6/4", "6/5", "6/6", "6/8", "6/10", "6/12", "6/16", "6/18", "6/20", "6/24", "6/36", "6/60"},
		StartLevel:     ptrString("6/12"),
	})

	var info types.LadderInfo
	h.expect(http.MethodGet, "/ladder", "", http.StatusOK, &info)
	if len(info.Levels) != 5 || len(info.Standard) != 13 || info.Start != "6/12" {
		t.Fatalf("unexpected ladder info %+v", info)
	}

	var raw config.RawFileConfig
	h.expect(http.MethodGet, "/config", "", http.StatusOK, &raw)
	if raw.StartLevel == nil || *raw.StartLevel != "6/12" {
		t.Fatalf("unexpected config %+v", raw)
	}

	// A coarse ladder refines between the last seen and first unseen step.
	v := h.create()
	base := "/sessions/" + v.ID
	h.expect(http.MethodPut, base+"/calibration", "4", http.StatusCreated, nil)
	h.expect(http.MethodPost, base+"/start", "", http.StatusOK, nil)

	var snap staircase.Snapshot
	h.expect(http.MethodPost, base+"/response", "true", http.StatusOK, &snap)
	h.expect(http.MethodPost, base+"/response", "false", http.StatusOK, &snap)
	if snap.Phase != staircase.PhaseRefining || snap.Level != "6/8" {
		t.Fatalf("expected refinement at 6/8, got %+v", snap)
	}
	var p chart.Row
	h.expect(http.MethodGet, base+"/presentation", "", http.StatusOK, &p)
	if !p.Refining {
		t.Fatalf("presentation should be marked as refining")
	}
}

func ptrString(s string) *string { return &s }

func TestSaveCalibration(t *testing.T) {
	h := newHarness(t, nil)
	base := "/sessions/" + h.create().ID

	h.expect(http.MethodPost, base+"/calibration/save", "", http.StatusConflict, nil)
	h.expect(http.MethodPut, base+"/calibration", "3.5", http.StatusCreated, nil)
	h.expect(http.MethodPut, base+"/viewing-distance", "250", http.StatusCreated, nil)
	h.expect(http.MethodPost, base+"/calibration/save", "", http.StatusCreated, nil)

	reloaded, err := config.NewFile(h.path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.PixelsPerMm() != 3.5 || reloaded.ViewingDistanceCm() != 250 {
		t.Fatalf("calibration not saved: %v", reloaded.LogrusFields())
	}

	// New sessions start from the saved calibration and can start at once.
	v := h.create()
	if v.Calibration.PixelsPerMm != 3.5 || v.Calibration.ViewingDistanceCm != 250 || !v.Setup {
		t.Fatalf("unexpected new session %+v", v)
	}
	h.expect(http.MethodPost, "/sessions/"+v.ID+"/start", "", http.StatusOK, nil)
}

func TestSweep(t *testing.T) {
	h := newHarness(t, &config.RawFileConfig{SessionTTLMinutes: ptrInt(10)})
	v := h.create()
	ch := h.d.hub.Subscribe()
	defer h.d.hub.Unsubscribe(ch)

	h.d.Sweep(time.Now().Add(5 * time.Minute))
	h.expect(http.MethodGet, "/sessions/"+v.ID, "", http.StatusOK, nil)

	h.d.Sweep(time.Now().Add(11 * time.Minute))
	h.expect(http.MethodGet, "/sessions/"+v.ID, "", http.StatusNotFound, nil)

	select {
	case ev := <-ch:
		p, err := events.DecodeAs[events.SessionDeletedEvent](ev)
		if err != nil || ev.Name != events.SessionDeleted || p.ID != v.ID || p.Reason != "idle" {
			t.Fatalf("unexpected event %s %+v %v", ev.Name, p, err)
		}
	default:
		t.Fatalf("expected a session.deleted event")
	}
}

func ptrInt(i int) *int { return &i }

func TestEventStream(t *testing.T) {
	h := newHarness(t, nil)
	srv := httptest.NewServer(h.router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/events")
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	defer resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.d.hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("stream never subscribed")
		}
		time.Sleep(time.Millisecond)
	}

	v := h.create()

	lines := make(chan string, 64)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	var gotEvent, gotData bool
	timeout := time.After(2 * time.Second)
	for !gotEvent || !gotData {
		select {
		case l, ok := <-lines:
			if !ok {
				t.Fatalf("stream closed early")
			}
			switch {
			case l == "event:"+events.SessionCreated:
				gotEvent = true
			case gotEvent && strings.HasPrefix(l, "data:"):
				if !strings.Contains(l, v.ID) {
					t.Fatalf("unexpected data line %q", l)
				}
				gotData = true
			}
		case <-timeout:
			t.Fatalf("no session.created event on the stream")
		}
	}
}
