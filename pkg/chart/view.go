// Package chart turns a staircase snapshot and calibration settings into a
// description of what the screen should show, and rasterizes it.
package chart

import (
	"math"

	"github.com/acuitylab/acuity/pkg/acuity"
	"github.com/acuitylab/acuity/pkg/calibration"
	"github.com/acuitylab/acuity/pkg/optotype"
	"github.com/acuitylab/acuity/pkg/staircase"
)

// Mode selects which screen is shown.
type Mode string

const (
	ModeCalibration Mode = "calibration"
	ModeRow         Mode = "row"
	ModeSummary     Mode = "summary"
)

const (
	// MinSpacingPx is the smallest distance between ring centers.
	MinSpacingPx = 40.0
	// CardAspect is height/width of the calibration rectangle.
	CardAspect = 0.63
)

// Calibration is the rectangle the user resizes to match a reference object.
type Calibration struct {
	ObjectName string  `json:"objectName"`
	WidthPx    float64 `json:"widthPx"`
	HeightPx   float64 `json:"heightPx"`
}

// Row is one line of rings at the current level.
type Row struct {
	Level             acuity.Level           `json:"level"`
	SizePx            float64                `json:"sizePx"`
	SpacingPx         float64                `json:"spacingPx"`
	Orientations      []optotype.Orientation `json:"orientations"`
	Refining          bool                   `json:"refining"`
	ViewingDistanceCm float64                `json:"viewingDistanceCm"`
}

// SummaryLine is one tested level in the final chart.
type SummaryLine struct {
	Level    acuity.Level `json:"level"`
	SizePx   float64      `json:"sizePx"`
	CouldSee bool         `json:"couldSee"`
}

// Summary is shown once the test is complete.
type Summary struct {
	Lines          []SummaryLine         `json:"lines"`
	FinalAcuity    acuity.Level          `json:"finalAcuity"`
	Classification acuity.Classification `json:"classification"`
	Message        string                `json:"message"`
}

// View is everything needed to draw one screen. Exactly one of Calibration,
// Row and Summary is set, according to Mode.
type View struct {
	Mode        Mode         `json:"mode"`
	Calibration *Calibration `json:"calibration,omitempty"`
	Row         *Row         `json:"row,omitempty"`
	Summary     *Summary     `json:"summary,omitempty"`
}

// Spacing is the distance between ring centers for rings of the given size.
func Spacing(sizePx float64) float64 {
	return math.Max(sizePx*1.5, MinSpacingPx)
}

// Describe builds the view. It has no side effects: the row orientations come
// from the snapshot and are never redrawn here.
func Describe(snap staircase.Snapshot, cal calibration.Settings, setup bool) View {
	if setup {
		name := cal.ReferenceObject
		if o, err := calibration.LookupReferenceObject(cal.ReferenceObject); err == nil {
			name = o.Name
		}
		w := cal.ReferencePixelWidth()
		return View{
			Mode: ModeCalibration,
			Calibration: &Calibration{
				ObjectName: name,
				WidthPx:    w,
				HeightPx:   w * CardAspect,
			},
		}
	}

	if snap.Terminal {
		sorted := snap.History.Sorted()
		lines := make([]SummaryLine, 0, len(sorted))
		for _, tr := range sorted {
			lines = append(lines, SummaryLine{
				Level:    tr.Level,
				SizePx:   cal.SizeInPixels(tr.Level),
				CouldSee: tr.CouldSee,
			})
		}
		return View{
			Mode: ModeSummary,
			Summary: &Summary{
				Lines:          lines,
				FinalAcuity:    snap.FinalAcuity,
				Classification: snap.Classification,
				Message:        snap.Classification.Description(),
			},
		}
	}

	size := cal.SizeInPixels(snap.Level)
	orientations := make([]optotype.Orientation, len(snap.Row))
	copy(orientations, snap.Row)
	return View{
		Mode: ModeRow,
		Row: &Row{
			Level:             snap.Level,
			SizePx:            size,
			SpacingPx:         Spacing(size),
			Orientations:      orientations,
			Refining:          snap.Refining(),
			ViewingDistanceCm: cal.ViewingDistanceCm,
		},
	}
}
