package calibration

import (
	"errors"
	"math"

	pkgerrors "github.com/pkg/errors"

	"github.com/acuitylab/acuity/pkg/acuity"
)

const (
	// ReferenceAngleArcmin is the angle subtended at the eye by the reference
	// level's optotype.
	ReferenceAngleArcmin = 5.0

	// FallbackSizePx is the optotype diameter used before a pixels-per-mm
	// scale is known.
	FallbackSizePx = 60.0

	// UncalibratedPixelsPerMm is the scale used to draw the calibration
	// rectangle before the user has adjusted it.
	UncalibratedPixelsPerMm = 3.0
)

var (
	// ErrInvalidCalibration is returned for non-positive widths, scales or
	// viewing distances.
	ErrInvalidCalibration = errors.New("invalid calibration")
	// ErrCalibrationFrozen is returned when parameters are changed while a
	// test is running.
	ErrCalibrationFrozen = errors.New("calibration cannot change while a test is running")
)

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// ComputeScale returns the pixels-per-millimeter scale given the on-screen
// width of a reference object and its physical width.
func ComputeScale(onscreenPixelWidth, referenceWidthMm float64) (float64, error) {
	if !positive(referenceWidthMm) {
		return 0, pkgerrors.Wrapf(ErrInvalidCalibration, "reference width must be positive, got %g mm", referenceWidthMm)
	}
	if !positive(onscreenPixelWidth) {
		return 0, pkgerrors.Wrapf(ErrInvalidCalibration, "on-screen width must be positive, got %g px", onscreenPixelWidth)
	}
	return onscreenPixelWidth / referenceWidthMm, nil
}

// SizeInMillimeters returns the physical diameter of the optotype for level
// when viewed from viewingDistanceCm:
//
//	2 * d * tan(5') * denominator(level) / denominator(reference)
func SizeInMillimeters(level, reference acuity.Level, viewingDistanceCm float64) (float64, error) {
	if !positive(viewingDistanceCm) {
		return 0, pkgerrors.Wrapf(ErrInvalidCalibration, "viewing distance must be positive, got %g cm", viewingDistanceCm)
	}
	v, r := level.Denominator(), reference.Denominator()
	if !positive(v) || !positive(r) {
		return 0, pkgerrors.Wrapf(acuity.ErrInvalidLevel, "%q relative to %q", level, reference)
	}

	theta := ReferenceAngleArcmin / 60 * math.Pi / 180
	distanceMm := viewingDistanceCm * 10
	return 2 * distanceMm * math.Tan(theta) * (v / r), nil
}

// SizeInPixels converts SizeInMillimeters to pixels. An unset scale
// (pixelsPerMm <= 0) yields FallbackSizePx; so does any input that
// SizeInMillimeters rejects, so that a caller never draws a non-positive size.
func SizeInPixels(level, reference acuity.Level, viewingDistanceCm, pixelsPerMm float64) float64 {
	if !positive(pixelsPerMm) {
		return FallbackSizePx
	}
	mm, err := SizeInMillimeters(level, reference, viewingDistanceCm)
	if err != nil {
		return FallbackSizePx
	}
	return mm * pixelsPerMm
}
