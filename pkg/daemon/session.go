package daemon

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/acuitylab/acuity/pkg/calibration"
	"github.com/acuitylab/acuity/pkg/chart"
	"github.com/acuitylab/acuity/pkg/config"
	"github.com/acuitylab/acuity/pkg/optotype"
	"github.com/acuitylab/acuity/pkg/staircase"
	"github.com/acuitylab/acuity/pkg/types"
)

// Session is one patient's test: its calibration and its staircase. All
// methods are serialized by the session mutex, so each response is fully
// processed before the next one is looked at.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	lastActive time.Time
	setup      bool
	cal        *calibration.Parameters
	engine     *staircase.Engine
}

// newSession creates a session in setup from the configured defaults. A
// remembered screen scale is applied but the session still starts in setup.
func newSession(conf config.Config, gen optotype.Generator, now time.Time) (*Session, error) {
	cal, err := calibration.NewParameters(conf.ReferenceObject(), conf.CustomReferenceWidthMm(), conf.ViewingDistanceCm())
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "invalid calibration defaults")
	}
	if ppmm := conf.PixelsPerMm(); ppmm > 0 {
		if err := cal.SetPixelsPerMillimeter(ppmm); err != nil {
			return nil, pkgerrors.Wrapf(err, "invalid remembered scale")
		}
	}

	engine, err := staircase.New(staircase.Options{
		Ladder:        conf.Ladder(),
		Standard:      conf.StandardLevels(),
		Start:         conf.StartLevel(),
		SymbolsPerRow: conf.SymbolsPerRow(),
		Generator:     gen,
	})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to create staircase")
	}

	return &Session{
		ID:         uuid.NewString(),
		CreatedAt:  now,
		lastActive: now,
		setup:      true,
		cal:        cal,
		engine:     engine,
	}, nil
}

func (s *Session) touchLocked() {
	s.lastActive = time.Now()
}

func (s *Session) viewLocked() types.SessionView {
	return types.SessionView{
		ID:          s.ID,
		CreatedAt:   s.CreatedAt,
		LastActive:  s.lastActive,
		Setup:       s.setup,
		Calibration: s.cal.Settings(),
		State:       s.engine.Snapshot(),
	}
}

// View returns a copy of the session state.
func (s *Session) View() types.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// LastActive is when the session was last used.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) SetPixelsPerMm(v float64) (calibration.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	err := s.cal.SetPixelsPerMillimeter(v)
	return s.cal.Settings(), err
}

func (s *Session) CalibrateFromPixels(px float64) (float64, calibration.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	scale, err := s.cal.CalibrateFromPixels(px)
	return scale, s.cal.Settings(), err
}

// SetReferenceObject selects the calibration object. For the custom object
// a positive widthMm replaces the custom width.
func (s *Session) SetReferenceObject(key string, widthMm float64) (calibration.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	if key == calibration.ObjectCustom && widthMm != 0 {
		if err := s.cal.SetCustomWidth(widthMm); err != nil {
			return s.cal.Settings(), err
		}
	}
	err := s.cal.SetReferenceObject(key)
	return s.cal.Settings(), err
}

func (s *Session) SetViewingDistance(cm float64) (calibration.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	err := s.cal.SetViewingDistance(cm)
	return s.cal.Settings(), err
}

// Start ends setup and freezes the calibration for the rest of the test.
func (s *Session) Start() (types.SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	if !s.setup {
		return s.viewLocked(), nil
	}
	if !s.cal.Settings().Calibrated() {
		return s.viewLocked(), ErrNotCalibrated
	}
	s.cal.Freeze()
	s.setup = false

	logrus.WithFields(logrus.Fields{
		"session":  s.ID,
		"settings": s.cal.Settings(),
	}).Info("test started")

	return s.viewLocked(), nil
}

// Recalibrate returns to setup. The staircase keeps its progress.
func (s *Session) Recalibrate() types.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	s.cal.Unfreeze()
	s.setup = true
	return s.viewLocked()
}

// Presentation describes the row currently on screen. Reading it never
// draws a new row.
func (s *Session) Presentation() (chart.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	snap := s.engine.Snapshot()
	if snap.Terminal {
		return chart.Row{}, ErrTestComplete
	}
	return *chart.Describe(snap, s.cal.Settings(), false).Row, nil
}

// Outcome is the result of one response.
type Outcome struct {
	Snapshot staircase.Snapshot
	// Presented is set when a new row is now on screen.
	Presented bool
	// Completed is set when this response ended the test.
	Completed bool
}

// Respond records the patient's answer for the current row. Answers after
// the test ended change nothing.
func (s *Session) Respond(couldSee bool) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	if s.setup {
		return Outcome{Snapshot: s.engine.Snapshot()}, ErrInSetup
	}
	wasDone := s.engine.Done()
	snap := s.engine.Submit(couldSee)
	return Outcome{
		Snapshot:  snap,
		Presented: !wasDone && !snap.Terminal,
		Completed: !wasDone && snap.Terminal,
	}, nil
}

// Restart resets the staircase. Calibration is left alone.
func (s *Session) Restart() staircase.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	s.engine.Restart()
	return s.engine.Snapshot()
}

// ChartView is what the screen should currently show.
func (s *Session) ChartView() chart.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()

	return chart.Describe(s.engine.Snapshot(), s.cal.Settings(), s.setup)
}

// Calibration returns the current calibration settings.
func (s *Session) Calibration() calibration.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cal.Settings()
}

// Store holds the live sessions. Sessions are kept in memory only.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

func (st *Store) Add(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID] = s
}

func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[id]
	if !ok {
		return nil, pkgerrors.Wrapf(ErrSessionNotFound, "%s", id)
	}
	return s, nil
}

func (st *Store) Delete(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.sessions[id]; !ok {
		return pkgerrors.Wrapf(ErrSessionNotFound, "%s", id)
	}
	delete(st.sessions, id)
	return nil
}

// IDs returns the ids of all sessions, oldest first.
func (st *Store) IDs() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()

	list := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})

	ids := make([]string, len(list))
	for i, s := range list {
		ids[i] = s.ID
	}
	return ids
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep removes sessions idle for longer than ttl and returns their ids.
func (st *Store) Sweep(now time.Time, ttl time.Duration) []string {
	st.mu.Lock()
	defer st.mu.Unlock()

	var removed []string
	for id, s := range st.sessions {
		if now.Sub(s.LastActive()) > ttl {
			delete(st.sessions, id)
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	return removed
}
