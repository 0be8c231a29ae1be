package staircase

import (
	"sort"

	"github.com/acuitylab/acuity/pkg/acuity"
	"github.com/acuitylab/acuity/pkg/optotype"
)

// Phase defines the phases of the staircase.
type Phase string

const (
	PhaseAwaitingFirstResponse Phase = "AwaitingFirstResponse"
	PhaseImproving             Phase = "CoarseImproving"
	PhaseWorsening             Phase = "CoarseWorsening"
	PhaseRefining              Phase = "Refining"
	PhaseComplete              Phase = "Complete"
)

// Direction is the way the coarse search moves along the ladder.
type Direction string

const (
	DirectionUndetermined Direction = "undetermined"
	DirectionImproving    Direction = "improving"
	DirectionWorsening    Direction = "worsening"
)

// Trial is one presented row and the patient's answer.
type Trial struct {
	Level    acuity.Level `json:"level"`
	CouldSee bool         `json:"couldSee"`
}

// History is the append-only list of trials in presentation order.
type History []Trial

// Sorted returns a copy ordered by denominator, best first. Trials with the
// same level keep their presentation order.
func (h History) Sorted() History {
	out := make(History, len(h))
	copy(out, h)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Level.Denominator() < out[j].Level.Denominator()
	})
	return out
}

// BestVisible returns the seen trial with the smallest denominator.
func (h History) BestVisible() (acuity.Level, bool) {
	var (
		best  acuity.Level
		found bool
	)
	for _, t := range h {
		if !t.CouldSee {
			continue
		}
		if !found || t.Level.Denominator() < best.Denominator() {
			best = t.Level
			found = true
		}
	}
	return best, found
}

// Snapshot is a copy of the engine state, safe to hand to other goroutines
// and to serialize.
type Snapshot struct {
	Phase     Phase     `json:"phase"`
	Direction Direction `json:"direction"`
	// Level is the level currently presented; empty once complete.
	Level           acuity.Level           `json:"level,omitempty"`
	Row             []optotype.Orientation `json:"row,omitempty"`
	LadderIndex     int                    `json:"ladderIndex"`
	Refinement      []acuity.Level         `json:"refinement,omitempty"`
	RefinementIndex int                    `json:"refinementIndex"`
	History         History                `json:"history"`
	Terminal        bool                   `json:"terminal"`
	FinalAcuity     acuity.Level           `json:"finalAcuity,omitempty"`
	Classification  acuity.Classification  `json:"classification,omitempty"`
}

// Refining reports whether the refinement sub-search is active.
func (s Snapshot) Refining() bool { return s.Phase == PhaseRefining }
