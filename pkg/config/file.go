package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/acuitylab/acuity/pkg/acuity"
	"github.com/acuitylab/acuity/pkg/calibration"
	"github.com/acuitylab/acuity/pkg/distance"
	"github.com/acuitylab/acuity/pkg/optotype"
	"github.com/acuitylab/acuity/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		ViewingDistanceCm:      ptr.To(calibration.DefaultViewingDistanceCm),
		ReferenceObject:        ptr.To(calibration.ObjectCreditCard),
		CustomReferenceWidthMm: ptr.To(calibration.DefaultCustomWidthMm),
		StartLevel:             ptr.To(string(acuity.Reference)),
		SymbolsPerRow:          ptr.To(optotype.DefaultSymbolsPerRow),
		AllowNonRootAccess:     ptr.To(false),
		DistanceBackend:        ptr.To(distance.DefaultBackendURL),
		MQTTTopicPrefix:        ptr.To("acuity"),
		SessionTTLMinutes:      ptr.To(120),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

// RawFileConfig is the on-disk form. Unset fields take their defaults.
type RawFileConfig struct {
	ViewingDistanceCm      *float64 `json:"viewingDistanceCm,omitempty"`
	ReferenceObject        *string  `json:"referenceObject,omitempty"`
	CustomReferenceWidthMm *float64 `json:"customReferenceWidthMm,omitempty"`
	PixelsPerMm            *float64 `json:"pixelsPerMm,omitempty"`
	Ladder                 []string `json:"ladder,omitempty"`
	StandardLevels         []string `json:"standardLevels,omitempty"`
	StartLevel             *string  `json:"startLevel,omitempty"`
	SymbolsPerRow          *int     `json:"symbolsPerRow,omitempty"`
	AllowNonRootAccess     *bool    `json:"allowNonRootAccess,omitempty"`
	ListenAddr             *string  `json:"listenAddr,omitempty"`
	DistanceBackend        *string  `json:"distanceBackend,omitempty"`
	MQTTBroker             *string  `json:"mqttBroker,omitempty"`
	MQTTTopicPrefix        *string  `json:"mqttTopicPrefix,omitempty"`
	SessionTTLMinutes      *int     `json:"sessionTTLMinutes,omitempty"`
}

// NewRawFileConfigFromConfig captures the effective values of c.
func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		ViewingDistanceCm:      ptr.To(c.ViewingDistanceCm()),
		ReferenceObject:        ptr.To(c.ReferenceObject()),
		CustomReferenceWidthMm: ptr.To(c.CustomReferenceWidthMm()),
		Ladder:                 notations(c.Ladder()),
		StandardLevels:         notations(c.StandardLevels()),
		StartLevel:             ptr.To(string(c.StartLevel())),
		SymbolsPerRow:          ptr.To(c.SymbolsPerRow()),
		AllowNonRootAccess:     ptr.To(c.AllowNonRootAccess()),
		ListenAddr:             ptr.To(c.ListenAddr()),
		DistanceBackend:        ptr.To(c.DistanceBackend()),
		MQTTBroker:             ptr.To(c.MQTTBroker()),
		MQTTTopicPrefix:        ptr.To(c.MQTTTopicPrefix()),
		SessionTTLMinutes:      ptr.To(int(c.SessionTTL() / time.Minute)),
	}
	if v := c.PixelsPerMm(); v > 0 {
		rawConfig.PixelsPerMm = ptr.To(v)
	}

	return rawConfig, nil
}

func notations(l *acuity.Ladder) []string {
	levels := l.Levels()
	out := make([]string, len(levels))
	for i, lv := range levels {
		out[i] = string(lv)
	}
	return out
}

// Validate checks the values that would otherwise only fail when a session
// is created.
func (c *RawFileConfig) Validate() error {
	ladder := acuity.Standard()
	if len(c.Ladder) > 0 {
		l, err := acuity.ParseLadder(c.Ladder)
		if err != nil {
			return pkgerrors.Wrapf(err, "invalid ladder")
		}
		ladder = l
	}
	if len(c.StandardLevels) > 0 {
		if _, err := acuity.ParseLadder(c.StandardLevels); err != nil {
			return pkgerrors.Wrapf(err, "invalid standardLevels")
		}
	}
	if c.StartLevel != nil {
		if _, ok := ladder.Index(acuity.Level(*c.StartLevel)); !ok {
			return pkgerrors.Errorf("startLevel %s is not on the ladder", *c.StartLevel)
		}
	}
	if c.ReferenceObject != nil {
		if _, err := calibration.LookupReferenceObject(*c.ReferenceObject); err != nil {
			return err
		}
	}
	for name, v := range map[string]*float64{
		"viewingDistanceCm":      c.ViewingDistanceCm,
		"customReferenceWidthMm": c.CustomReferenceWidthMm,
		"pixelsPerMm":            c.PixelsPerMm,
	} {
		if v != nil && *v <= 0 {
			return pkgerrors.Wrapf(calibration.ErrInvalidCalibration, "%s must be positive, got %v", name, *v)
		}
	}
	if c.SymbolsPerRow != nil && *c.SymbolsPerRow <= 0 {
		return pkgerrors.Errorf("symbolsPerRow must be positive, got %d", *c.SymbolsPerRow)
	}
	if c.SessionTTLMinutes != nil && *c.SessionTTLMinutes <= 0 {
		return pkgerrors.Errorf("sessionTTLMinutes must be positive, got %d", *c.SessionTTLMinutes)
	}
	return nil
}

func (f *File) raw() *RawFileConfig {
	if f.c == nil {
		panic("config is nil")
	}
	return f.c
}

func (f *File) ViewingDistanceCm() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.raw().ViewingDistanceCm, *defaultFileConfig.ViewingDistanceCm)
}

func (f *File) ReferenceObject() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.raw().ReferenceObject, *defaultFileConfig.ReferenceObject)
}

func (f *File) CustomReferenceWidthMm() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.raw().CustomReferenceWidthMm, *defaultFileConfig.CustomReferenceWidthMm)
}

func (f *File) PixelsPerMm() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.raw().PixelsPerMm, 0)
}

func (f *File) Ladder() *acuity.Ladder {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return parseLadderOrDefault("ladder", f.raw().Ladder, acuity.Standard())
}

// StandardLevels defaults to the coarse ladder, which disables refinement.
func (f *File) StandardLevels() *acuity.Ladder {
	ladder := f.Ladder()

	f.mu.RLock()
	defer f.mu.RUnlock()

	return parseLadderOrDefault("standardLevels", f.raw().StandardLevels, ladder)
}

func parseLadderOrDefault(key string, notations []string, def *acuity.Ladder) *acuity.Ladder {
	if len(notations) == 0 {
		return def
	}
	l, err := acuity.ParseLadder(notations)
	if err != nil {
		logrus.WithError(err).Warnf("ignoring invalid %s in config", key)
		return def
	}
	return l
}

// StartLevel is empty when unset and 6/6 is not on a custom ladder, which
// lets the engine pick the middle of the ladder.
func (f *File) StartLevel() acuity.Level {
	ladder := f.Ladder()

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.raw().StartLevel != nil {
		return acuity.Level(*f.raw().StartLevel)
	}
	def := acuity.Level(*defaultFileConfig.StartLevel)
	if _, ok := ladder.Index(def); !ok {
		return ""
	}
	return def
}

func (f *File) SymbolsPerRow() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.raw().SymbolsPerRow, *defaultFileConfig.SymbolsPerRow)
}

func (f *File) AllowNonRootAccess() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.raw().AllowNonRootAccess, *defaultFileConfig.AllowNonRootAccess)
}

// ListenAddr is an optional TCP address served in addition to the unix
// socket. Empty disables it.
func (f *File) ListenAddr() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.raw().ListenAddr, "")
}

func (f *File) DistanceBackend() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.raw().DistanceBackend, *defaultFileConfig.DistanceBackend)
}

// MQTTBroker is the broker URL events are mirrored to. Empty disables it.
func (f *File) MQTTBroker() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.raw().MQTTBroker, "")
}

func (f *File) MQTTTopicPrefix() string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.raw().MQTTTopicPrefix, *defaultFileConfig.MQTTTopicPrefix)
}

func (f *File) SessionTTL() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return time.Duration(ptr.Deref(f.raw().SessionTTLMinutes, *defaultFileConfig.SessionTTLMinutes)) * time.Minute
}

func (f *File) SetViewingDistanceCm(cm float64) error {
	if cm <= 0 {
		return pkgerrors.Wrapf(calibration.ErrInvalidCalibration, "viewing distance must be positive, got %v", cm)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw().ViewingDistanceCm = &cm
	return nil
}

func (f *File) SetReferenceObject(key string) error {
	if _, err := calibration.LookupReferenceObject(key); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw().ReferenceObject = &key
	return nil
}

func (f *File) SetCustomReferenceWidthMm(mm float64) error {
	if mm <= 0 {
		return pkgerrors.Wrapf(calibration.ErrInvalidCalibration, "reference width must be positive, got %v", mm)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw().CustomReferenceWidthMm = &mm
	return nil
}

func (f *File) SetPixelsPerMm(v float64) error {
	if v <= 0 {
		return pkgerrors.Wrapf(calibration.ErrInvalidCalibration, "scale must be positive, got %v", v)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw().PixelsPerMm = &v
	return nil
}

func (f *File) SetAllowNonRootAccess(b bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw().AllowNonRootAccess = &b
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// An empty file is a valid config, which json.Decoder would reject.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	if err := conf.Validate(); err != nil {
		return pkgerrors.Wrapf(err, "invalid config in file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	return logrus.Fields{
		"viewingDistanceCm":      f.ViewingDistanceCm(),
		"referenceObject":        f.ReferenceObject(),
		"customReferenceWidthMm": f.CustomReferenceWidthMm(),
		"pixelsPerMm":            f.PixelsPerMm(),
		"ladderLevels":           f.Ladder().Len(),
		"standardLevels":         f.StandardLevels().Len(),
		"startLevel":             f.StartLevel(),
		"symbolsPerRow":          f.SymbolsPerRow(),
		"allowNonRootAccess":     f.AllowNonRootAccess(),
		"listenAddr":             f.ListenAddr(),
		"distanceBackend":        f.DistanceBackend(),
		"mqttBroker":             f.MQTTBroker(),
		"sessionTTL":             f.SessionTTL(),
	}
}
