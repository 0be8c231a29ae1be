package chart

import (
	"bytes"
	"image"
	"image/png"
	"math"
	"testing"
	"time"

	"github.com/acuitylab/acuity/pkg/acuity"
	"github.com/acuitylab/acuity/pkg/calibration"
	"github.com/acuitylab/acuity/pkg/optotype"
	"github.com/acuitylab/acuity/pkg/staircase"
)

func calibrated() calibration.Settings {
	return calibration.Settings{
		PixelsPerMm:       4,
		ReferenceObject:   calibration.ObjectCreditCard,
		ReferenceWidthMm:  85.6,
		ViewingDistanceCm: 400,
	}
}

func TestDescribeCalibration(t *testing.T) {
	v := Describe(staircase.Snapshot{}, calibrated(), true)
	if v.Mode != ModeCalibration || v.Calibration == nil {
		t.Fatalf("expected calibration view, got %+v", v)
	}
	if v.Calibration.ObjectName != "Credit Card" {
		t.Errorf("object name = %q", v.Calibration.ObjectName)
	}
	if math.Abs(v.Calibration.WidthPx-342.4) > 1e-9 || math.Abs(v.Calibration.HeightPx-342.4*CardAspect) > 1e-9 {
		t.Errorf("unexpected rectangle %+v", v.Calibration)
	}
}

func TestDescribeRow(t *testing.T) {
	snap := staircase.Snapshot{
		Phase:     staircase.PhaseRefining,
		Direction: staircase.DirectionImproving,
		Level:     "6/8",
		Row:       []optotype.Orientation{optotype.Left, optotype.Top},
		History:   staircase.History{{Level: "6/12", CouldSee: true}},
	}
	cal := calibrated()
	v := Describe(snap, cal, false)
	if v.Mode != ModeRow || v.Row == nil {
		t.Fatalf("expected row view, got %+v", v)
	}
	if want := cal.SizeInPixels("6/8"); v.Row.SizePx != want {
		t.Errorf("size = %v, want %v", v.Row.SizePx, want)
	}
	if v.Row.SpacingPx != Spacing(v.Row.SizePx) {
		t.Errorf("spacing = %v", v.Row.SpacingPx)
	}
	if !v.Row.Refining || v.Row.ViewingDistanceCm != 400 {
		t.Errorf("unexpected row %+v", v.Row)
	}

	// The view owns its orientations.
	v.Row.Orientations[0] = optotype.Right
	if snap.Row[0] != optotype.Left {
		t.Fatalf("Describe aliased the snapshot row")
	}
}

func TestDescribeUncalibratedUsesFallback(t *testing.T) {
	snap := staircase.Snapshot{Phase: staircase.PhaseAwaitingFirstResponse, Level: "6/6", Row: []optotype.Orientation{optotype.Right}}
	v := Describe(snap, calibration.Settings{ViewingDistanceCm: 400}, false)
	if v.Row.SizePx != calibration.FallbackSizePx {
		t.Fatalf("size = %v, want fallback", v.Row.SizePx)
	}
	if v.Row.SpacingPx != 90 {
		t.Fatalf("spacing = %v, want 90", v.Row.SpacingPx)
	}
}

func TestDescribeSummary(t *testing.T) {
	snap := staircase.Snapshot{
		Phase:    staircase.PhaseComplete,
		Terminal: true,
		History: staircase.History{
			{Level: "6/6", CouldSee: true},
			{Level: "6/5", CouldSee: true},
			{Level: "6/4", CouldSee: false},
		},
		FinalAcuity:    "6/5",
		Classification: acuity.ClassBetter,
	}
	v := Describe(snap, calibrated(), false)
	if v.Mode != ModeSummary || v.Summary == nil {
		t.Fatalf("expected summary view, got %+v", v)
	}
	want := []acuity.Level{"6/4", "6/5", "6/6"}
	for i, l := range v.Summary.Lines {
		if l.Level != want[i] {
			t.Fatalf("line %d = %s, want %s", i, l.Level, want[i])
		}
	}
	if v.Summary.Message != acuity.ClassBetter.Description() {
		t.Errorf("message = %q", v.Summary.Message)
	}
}

func TestSpacing(t *testing.T) {
	if Spacing(10) != MinSpacingPx {
		t.Errorf("small rings should use the minimum spacing")
	}
	if Spacing(100) != 150 {
		t.Errorf("Spacing(100) = %v", Spacing(100))
	}
}

func TestRenderRingGap(t *testing.T) {
	v := View{Mode: ModeRow, Row: &Row{
		Level:        "6/6",
		SizePx:       100,
		SpacingPx:    150,
		Orientations: []optotype.Orientation{optotype.Right},
	}}
	img, err := Render(v, DefaultWidth, DefaultHeight)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	cx, cy := DefaultWidth/2, DefaultHeight/2
	dark := func(x, y int) bool {
		r, g, b, _ := img.At(x, y).RGBA()
		return r < 0x4000 && g < 0x4000 && b < 0x4000
	}
	if !dark(cx-40, cy) {
		t.Errorf("expected ring stroke on the left")
	}
	if !dark(cx, cy-40) || !dark(cx, cy+40) {
		t.Errorf("expected ring stroke on top and bottom")
	}
	if dark(cx+40, cy) {
		t.Errorf("expected the gap on the right")
	}
	if dark(cx, cy) {
		t.Errorf("expected the ring center to be empty")
	}
}

func TestRenderPNG(t *testing.T) {
	views := []View{
		Describe(staircase.Snapshot{}, calibrated(), true),
		{Mode: ModeRow, Row: &Row{Level: "6/60", SizePx: 600, SpacingPx: 900, Orientations: []optotype.Orientation{optotype.Top, optotype.Bottom}}},
		{Mode: ModeSummary, Summary: &Summary{FinalAcuity: "6/6", Lines: []SummaryLine{{Level: "6/6", SizePx: 40, CouldSee: true}}}},
	}
	for _, v := range views {
		var buf bytes.Buffer
		if err := RenderPNG(&buf, v, 320, 200); err != nil {
			t.Fatalf("RenderPNG(%s) failed: %v", v.Mode, err)
		}
		img, err := png.Decode(&buf)
		if err != nil {
			t.Fatalf("decode %s: %v", v.Mode, err)
		}
		if b := img.Bounds(); b.Dx() != 320 || b.Dy() != 200 {
			t.Fatalf("unexpected bounds %v", b)
		}
	}
}

func TestRenderRejectsBadInput(t *testing.T) {
	if _, err := Render(View{Mode: ModeRow}, 10, 10); err == nil {
		t.Errorf("expected error for row view without row")
	}
	if _, err := Render(View{Mode: "bogus"}, 10, 10); err == nil {
		t.Errorf("expected error for unknown mode")
	}
	if _, err := Render(View{Mode: ModeSummary, Summary: &Summary{}}, 0, 10); err == nil {
		t.Errorf("expected error for empty canvas")
	}
}

func TestFitRing(t *testing.T) {
	canvas := image.Pt(300, 400) // diagonal 500
	tests := []struct {
		name        string
		cx, cy      float64
		size        float64
		wantSize    float64
		wantVisible bool
	}{
		{"small", 150, 200, 40, 40, true},
		{"at bound", 150, 200, 2000, 2000, true},
		{"clamped", 150, 200, 1e10, 2000, true},
		{"partly off canvas", -10, 200, 40, 40, true},
		{"off to the left", -21, 200, 40, 40, false},
		{"off below", 150, 421, 40, 40, false},
		{"far away after clamping", 1e9, 200, 1e10, 2000, false},
		{"empty", 150, 200, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, visible := fitRing(tt.cx, tt.cy, tt.size, canvas)
			if size != tt.wantSize || visible != tt.wantVisible {
				t.Errorf("fitRing = %v, %v, want %v, %v", size, visible, tt.wantSize, tt.wantVisible)
			}
		})
	}
}

func TestRenderHugeRings(t *testing.T) {
	start := time.Now()
	row := &Row{Level: "6/6", SizePx: 1e10, SpacingPx: Spacing(1e10), Orientations: []optotype.Orientation{optotype.Left, optotype.Right}}
	if _, err := Render(View{Mode: ModeRow, Row: row}, DefaultWidth, DefaultHeight); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	summary := &Summary{FinalAcuity: "6/60", Lines: []SummaryLine{{Level: "6/60", SizePx: 1e10}}}
	if _, err := Render(View{Mode: ModeSummary, Summary: summary}, DefaultWidth, DefaultHeight); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if d := time.Since(start); d > 5*time.Second {
		t.Fatalf("rendering huge rings took %v", d)
	}
}
