// Package staircase runs the adaptive search over an acuity ladder: it walks
// toward better or worse acuity depending on the first answer, stops at the
// first reversal, and, when the reversal skips standard levels, tests those
// levels before settling on an estimate.
//
// An Engine is not safe for concurrent use; callers serialize Submit.
package staircase

import (
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/acuitylab/acuity/pkg/acuity"
	"github.com/acuitylab/acuity/pkg/optotype"
)

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	// Ladder is the coarse sequence the search steps along.
	Ladder *acuity.Ladder
	// Standard holds the candidates for refinement. Defaults to Ladder.
	Standard *acuity.Ladder
	// Start is the first level presented. Defaults to 6/6 if it is on the
	// ladder, otherwise the middle of the ladder.
	Start         acuity.Level
	SymbolsPerRow int
	Generator     optotype.Generator
}

// Engine is the staircase state machine of one test session.
type Engine struct {
	ladder   *acuity.Ladder
	standard *acuity.Ladder
	start    int
	symbols  int
	gen      optotype.Generator

	phase           Phase
	direction       Direction
	index           int
	refinement      []acuity.Level
	refinementIndex int
	history         History
	final           acuity.Level
	row             []optotype.Orientation
}

// New creates an engine waiting for its first response.
func New(opts Options) (*Engine, error) {
	e := &Engine{
		ladder:   opts.Ladder,
		standard: opts.Standard,
		symbols:  opts.SymbolsPerRow,
		gen:      opts.Generator,
	}
	if e.ladder == nil {
		e.ladder = acuity.Standard()
	}
	if e.standard == nil {
		e.standard = e.ladder
	}
	if e.symbols <= 0 {
		e.symbols = optotype.DefaultSymbolsPerRow
	}
	if e.gen == nil {
		e.gen = optotype.NewRandomGenerator(nil)
	}

	switch {
	case opts.Start != "":
		i, ok := e.ladder.Index(opts.Start)
		if !ok {
			return nil, pkgerrors.Wrapf(acuity.ErrInvalidLevel, "start level %s is not on the ladder", opts.Start)
		}
		e.start = i
	default:
		if i, ok := e.ladder.Index(acuity.Reference); ok {
			e.start = i
		} else {
			e.start = e.ladder.Len() / 2
		}
	}

	e.Restart()
	return e, nil
}

// Restart discards all progress and presents the start level again with a
// freshly drawn row.
func (e *Engine) Restart() {
	e.phase = PhaseAwaitingFirstResponse
	e.direction = DirectionUndetermined
	e.index = e.start
	e.refinement = nil
	e.refinementIndex = 0
	e.history = nil
	e.final = ""
	e.present()
}

// Current returns the level being presented, or false once complete.
func (e *Engine) Current() (acuity.Level, bool) {
	switch e.phase {
	case PhaseComplete:
		return "", false
	case PhaseRefining:
		return e.refinement[e.refinementIndex], true
	default:
		return e.ladder.At(e.index), true
	}
}

// Row returns the orientations of the current row. It is drawn once per
// presented level and never redrawn on reads.
func (e *Engine) Row() []optotype.Orientation {
	out := make([]optotype.Orientation, len(e.row))
	copy(out, e.row)
	return out
}

func (e *Engine) Done() bool { return e.phase == PhaseComplete }

// Final returns the estimate once the test is complete.
func (e *Engine) Final() (acuity.Level, bool) {
	return e.final, e.phase == PhaseComplete
}

// Submit records whether the patient could see the current row and moves to
// the next state. After completion it is a no-op.
//
//nolint:gocyclo
func (e *Engine) Submit(couldSee bool) Snapshot {
	level, ok := e.Current()
	if !ok {
		return e.Snapshot()
	}
	prev := e.phase
	e.history = append(e.history, Trial{Level: level, CouldSee: couldSee})

	switch e.phase {
	case PhaseAwaitingFirstResponse:
		if couldSee {
			e.direction = DirectionImproving
			e.phase = PhaseImproving
			e.stepBetter()
		} else {
			e.direction = DirectionWorsening
			e.phase = PhaseWorsening
			e.stepWorse()
		}
	case PhaseImproving:
		if couldSee {
			e.stepBetter()
			break
		}
		// The previous ladder step was the last one seen.
		visible := e.ladder.At(e.index + 1)
		refinement := e.standard.Between(visible, level)
		if len(refinement) == 0 {
			e.finalize(visible)
			break
		}
		e.phase = PhaseRefining
		e.refinement = refinement
		e.refinementIndex = 0
		e.present()
	case PhaseWorsening:
		// No refinement on this branch: the first visible step is the estimate.
		if couldSee {
			e.finalize(level)
			break
		}
		e.stepWorse()
	case PhaseRefining:
		if e.refinementIndex < len(e.refinement)-1 {
			e.refinementIndex++
			e.present()
			break
		}
		best, found := e.history.BestVisible()
		if !found {
			best = e.ladder.Worst()
		}
		e.finalize(best)
	}

	logrus.WithFields(logrus.Fields{
		"level":    level,
		"couldSee": couldSee,
		"from":     prev,
		"to":       e.phase,
	}).Debug("staircase response")

	return e.Snapshot()
}

func (e *Engine) stepBetter() {
	if e.index == 0 {
		e.finalize(e.ladder.At(0))
		return
	}
	e.index--
	e.present()
}

func (e *Engine) stepWorse() {
	if e.index == e.ladder.Len()-1 {
		e.finalize(e.ladder.Worst())
		return
	}
	e.index++
	e.present()
}

func (e *Engine) present() {
	e.row = e.gen.Row(e.symbols)
}

func (e *Engine) finalize(l acuity.Level) {
	e.final = l
	e.phase = PhaseComplete
	e.row = nil
}

// Snapshot copies the current state.
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Phase:           e.phase,
		Direction:       e.direction,
		Row:             e.Row(),
		LadderIndex:     e.index,
		RefinementIndex: e.refinementIndex,
		History:         make(History, len(e.history)),
		Terminal:        e.phase == PhaseComplete,
	}
	copy(s.History, e.history)
	if len(e.refinement) > 0 {
		s.Refinement = make([]acuity.Level, len(e.refinement))
		copy(s.Refinement, e.refinement)
	}
	if l, ok := e.Current(); ok {
		s.Level = l
	}
	if s.Terminal {
		s.Row = nil
		s.FinalAcuity = e.final
		s.Classification = acuity.Classify(e.final, acuity.Reference)
	}
	return s
}
