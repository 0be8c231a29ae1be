package acuity

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// ErrInvalidLadder is returned for empty, malformed or unordered ladders.
var ErrInvalidLadder = errors.New("invalid acuity ladder")

// StandardLevels are the Snellen steps of the chart, best first.
var StandardLevels = []Level{
	"6/1.5", "6/2", "6/3", "6/4", "6/5", "6/6", "6/8", "6/10",
	"6/12", "6/16", "6/18", "6/20", "6/24", "6/36", "6/60",
}

// Ladder is an immutable sequence of levels ordered from best (smallest
// denominator) to worst.
type Ladder struct {
	levels []Level
	values []float64
}

// Standard returns the default 15-step ladder.
func Standard() *Ladder {
	return MustLadder(StandardLevels...)
}

// NewLadder validates levels and builds a Ladder. The levels must be
// non-empty and strictly increasing in denominator value.
func NewLadder(levels ...Level) (*Ladder, error) {
	if len(levels) == 0 {
		return nil, pkgerrors.Wrap(ErrInvalidLadder, "no levels")
	}

	l := &Ladder{
		levels: make([]Level, len(levels)),
		values: make([]float64, len(levels)),
	}
	for i, lv := range levels {
		v, err := lv.denominator()
		if err != nil {
			return nil, pkgerrors.Wrapf(ErrInvalidLadder, "level %d: %v", i, err)
		}
		if i > 0 && v <= l.values[i-1] {
			return nil, pkgerrors.Wrapf(ErrInvalidLadder, "%s does not come after %s", lv, l.levels[i-1])
		}
		l.levels[i] = lv
		l.values[i] = v
	}

	return l, nil
}

// ParseLadder is NewLadder over raw notations.
func ParseLadder(notations []string) (*Ladder, error) {
	levels := make([]Level, 0, len(notations))
	for _, n := range notations {
		lv, err := ParseLevel(n)
		if err != nil {
			return nil, pkgerrors.Wrapf(ErrInvalidLadder, "%v", err)
		}
		levels = append(levels, lv)
	}
	return NewLadder(levels...)
}

// MustLadder is like NewLadder but panics on error.
func MustLadder(levels ...Level) *Ladder {
	l, err := NewLadder(levels...)
	if err != nil {
		panic(err)
	}
	return l
}

func (l *Ladder) Len() int { return len(l.levels) }

// At returns the level at index i.
func (l *Ladder) At(i int) Level { return l.levels[i] }

// Best is the first (smallest denominator) level.
func (l *Ladder) Best() Level { return l.levels[0] }

// Worst is the last (largest denominator) level.
func (l *Ladder) Worst() Level { return l.levels[len(l.levels)-1] }

// Index returns the position of lv, or false if it is not on the ladder.
func (l *Ladder) Index(lv Level) (int, bool) {
	v, err := lv.denominator()
	if err != nil {
		return 0, false
	}
	for i, x := range l.values {
		if x == v {
			return i, true
		}
	}
	return 0, false
}

// Levels returns a copy of the ladder's levels.
func (l *Ladder) Levels() []Level {
	out := make([]Level, len(l.levels))
	copy(out, l.levels)
	return out
}

// Between returns the levels whose denominator lies strictly between the
// denominators of a and b, in ladder order. The order of a and b does not
// matter.
func (l *Ladder) Between(a, b Level) []Level {
	lo, hi := a.Denominator(), b.Denominator()
	if lo > hi {
		lo, hi = hi, lo
	}

	var out []Level
	for i, v := range l.values {
		if v > lo && v < hi {
			out = append(out, l.levels[i])
		}
	}
	return out
}
