package config

import (
	"time"

	"github.com/acuitylab/acuity/pkg/acuity"
)

// Config holds the daemon-wide defaults new sessions start from, plus the
// daemon's own settings.
type Config interface {
	ViewingDistanceCm() float64
	ReferenceObject() string
	CustomReferenceWidthMm() float64
	// PixelsPerMm is the remembered screen scale, or 0 if the screen has
	// never been calibrated.
	PixelsPerMm() float64
	Ladder() *acuity.Ladder
	StandardLevels() *acuity.Ladder
	StartLevel() acuity.Level
	SymbolsPerRow() int
	AllowNonRootAccess() bool
	ListenAddr() string
	DistanceBackend() string
	MQTTBroker() string
	MQTTTopicPrefix() string
	SessionTTL() time.Duration

	SetViewingDistanceCm(float64) error
	SetReferenceObject(string) error
	SetCustomReferenceWidthMm(float64) error
	SetPixelsPerMm(float64) error
	SetAllowNonRootAccess(bool)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
