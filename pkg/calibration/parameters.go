package calibration

import (
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/acuitylab/acuity/pkg/acuity"
)

// DefaultViewingDistanceCm is the chart distance used when none is configured.
const DefaultViewingDistanceCm = 400.0

// Settings is a value snapshot of Parameters.
type Settings struct {
	// PixelsPerMm is 0 until calibration completes.
	PixelsPerMm       float64 `json:"pixelsPerMm"`
	ReferenceObject   string  `json:"referenceObject"`
	ReferenceWidthMm  float64 `json:"referenceWidthMm"`
	ViewingDistanceCm float64 `json:"viewingDistanceCm"`
	Frozen            bool    `json:"frozen"`
}

// Calibrated reports whether a pixels-per-mm scale has been set.
func (s Settings) Calibrated() bool { return positive(s.PixelsPerMm) }

// SizeInPixels returns the optotype diameter for level under these settings.
func (s Settings) SizeInPixels(level acuity.Level) float64 {
	return SizeInPixels(level, acuity.Reference, s.ViewingDistanceCm, s.PixelsPerMm)
}

// ReferencePixelWidth is the on-screen width the calibration rectangle is
// drawn at: the reference object width at the current (or provisional)
// scale.
func (s Settings) ReferencePixelWidth() float64 {
	scale := s.PixelsPerMm
	if !positive(scale) {
		scale = UncalibratedPixelsPerMm
	}
	return s.ReferenceWidthMm * scale
}

// Parameters holds the calibration of one test session. It may only be
// changed while not frozen. Invalid updates are rejected and leave the
// previous value in place.
type Parameters struct {
	mu          sync.RWMutex
	pixelsPerMm float64
	object      string
	customWidth float64
	distanceCm  float64
	frozen      bool
}

// NewParameters creates unfrozen, uncalibrated parameters.
func NewParameters(object string, customWidthMm, viewingDistanceCm float64) (*Parameters, error) {
	p := &Parameters{
		object:      ObjectCreditCard,
		customWidth: DefaultCustomWidthMm,
		distanceCm:  DefaultViewingDistanceCm,
	}
	if object != "" {
		if err := p.SetReferenceObject(object); err != nil {
			return nil, err
		}
	}
	if customWidthMm != 0 {
		if err := p.SetCustomWidth(customWidthMm); err != nil {
			return nil, err
		}
	}
	if viewingDistanceCm != 0 {
		if err := p.SetViewingDistance(viewingDistanceCm); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Parameters) referenceWidthLocked() float64 {
	if p.object == ObjectCustom {
		return p.customWidth
	}
	return referenceObjects[p.object].WidthMm
}

func (p *Parameters) checkMutableLocked() error {
	if p.frozen {
		return ErrCalibrationFrozen
	}
	return nil
}

// SetPixelsPerMillimeter sets the scale directly.
func (p *Parameters) SetPixelsPerMillimeter(v float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkMutableLocked(); err != nil {
		return err
	}
	if !positive(v) {
		return pkgerrors.Wrapf(ErrInvalidCalibration, "pixels per mm must be positive, got %g", v)
	}
	p.pixelsPerMm = v
	return nil
}

// CalibrateFromPixels derives the scale from the on-screen width the
// reference object was matched to.
func (p *Parameters) CalibrateFromPixels(onscreenPixelWidth float64) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkMutableLocked(); err != nil {
		return 0, err
	}
	scale, err := ComputeScale(onscreenPixelWidth, p.referenceWidthLocked())
	if err != nil {
		return 0, err
	}
	p.pixelsPerMm = scale

	logrus.WithFields(logrus.Fields{
		"object":      p.object,
		"pixelWidth":  onscreenPixelWidth,
		"pixelsPerMm": scale,
	}).Debug("calibrated from reference object")

	return scale, nil
}

// SetReferenceObject selects one of the known reference objects.
func (p *Parameters) SetReferenceObject(key string) error {
	if _, err := LookupReferenceObject(key); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkMutableLocked(); err != nil {
		return err
	}
	p.object = key
	return nil
}

// SetCustomWidth sets the physical width of the custom reference object.
func (p *Parameters) SetCustomWidth(mm float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkMutableLocked(); err != nil {
		return err
	}
	if !positive(mm) {
		return pkgerrors.Wrapf(ErrInvalidCalibration, "reference width must be positive, got %g mm", mm)
	}
	p.customWidth = mm
	return nil
}

// SetViewingDistance sets the distance between the eye and the screen.
func (p *Parameters) SetViewingDistance(cm float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkMutableLocked(); err != nil {
		return err
	}
	if !positive(cm) {
		return pkgerrors.Wrapf(ErrInvalidCalibration, "viewing distance must be positive, got %g cm", cm)
	}
	p.distanceCm = cm
	return nil
}

// Freeze prevents further changes until Unfreeze is called.
func (p *Parameters) Freeze() {
	p.mu.Lock()
	p.frozen = true
	p.mu.Unlock()
}

// Unfreeze re-opens the parameters for calibration.
func (p *Parameters) Unfreeze() {
	p.mu.Lock()
	p.frozen = false
	p.mu.Unlock()
}

func (p *Parameters) Frozen() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.frozen
}

// Settings returns a copy of the current values.
func (p *Parameters) Settings() Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return Settings{
		PixelsPerMm:       p.pixelsPerMm,
		ReferenceObject:   p.object,
		ReferenceWidthMm:  p.referenceWidthLocked(),
		ViewingDistanceCm: p.distanceCm,
		Frozen:            p.frozen,
	}
}

// SizeInPixels reads the live distance and scale.
func (p *Parameters) SizeInPixels(level acuity.Level) float64 {
	return p.Settings().SizeInPixels(level)
}
