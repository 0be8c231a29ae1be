package types

import (
	"time"

	"github.com/acuitylab/acuity/pkg/acuity"
	"github.com/acuitylab/acuity/pkg/calibration"
	"github.com/acuitylab/acuity/pkg/staircase"
)

// These types are shared between the daemon and client packages.

// SessionView is the full state of one test session.
type SessionView struct {
	ID          string               `json:"id"`
	CreatedAt   time.Time            `json:"createdAt"`
	LastActive  time.Time            `json:"lastActive"`
	Setup       bool                 `json:"setup"`
	Calibration calibration.Settings `json:"calibration"`
	State       staircase.Snapshot   `json:"state"`
}

// LadderInfo describes the ladders new sessions use.
type LadderInfo struct {
	Levels   []acuity.Level `json:"levels"`
	Standard []acuity.Level `json:"standard"`
	Start    acuity.Level   `json:"start,omitempty"`
}

// ReferenceObjectRequest selects the object used for screen calibration.
// WidthMm is only read for the custom object.
type ReferenceObjectRequest struct {
	Key     string  `json:"key"`
	WidthMm float64 `json:"widthMm,omitempty"`
}

// CalibrationResult is returned after calibrating from an on-screen width.
type CalibrationResult struct {
	PixelsPerMm float64              `json:"pixelsPerMm"`
	Settings    calibration.Settings `json:"settings"`
}
