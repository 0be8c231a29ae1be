package acuity

import (
	"errors"
	"math"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// TestDistanceMeters is the numerator of every notation used here.
const TestDistanceMeters = 6

// ErrInvalidLevel is returned when a notation cannot be parsed.
var ErrInvalidLevel = errors.New("invalid acuity level")

// Level is a Snellen notation such as "6/6" or "6/1.5".
type Level string

// Reference is the level considered normal vision.
const Reference Level = "6/6"

// ParseLevel validates s and returns it as a Level.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.TrimSpace(s))
	if _, err := l.denominator(); err != nil {
		return "", err
	}
	return l, nil
}

// Denominator returns the denominator value of the notation, or NaN if the
// level is malformed.
func (l Level) Denominator() float64 {
	v, err := l.denominator()
	if err != nil {
		return math.NaN()
	}
	return v
}

func (l Level) denominator() (float64, error) {
	num, den, ok := strings.Cut(string(l), "/")
	if !ok {
		return 0, pkgerrors.Wrapf(ErrInvalidLevel, "%q has no '/'", string(l))
	}
	if n, err := strconv.ParseFloat(num, 64); err != nil || n != TestDistanceMeters {
		return 0, pkgerrors.Wrapf(ErrInvalidLevel, "%q must start with %d/", string(l), TestDistanceMeters)
	}
	v, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, pkgerrors.Wrapf(ErrInvalidLevel, "%q: %v", string(l), err)
	}
	if v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, pkgerrors.Wrapf(ErrInvalidLevel, "%q: denominator must be positive", string(l))
	}
	return v, nil
}

func (l Level) String() string { return string(l) }

// Classification is a coarse reading of a final result.
type Classification string

const (
	ClassNormal Classification = "normal"
	ClassBetter Classification = "better"
	ClassBelow  Classification = "below"
)

// Classify compares l against the reference level.
func Classify(l, reference Level) Classification {
	v, r := l.Denominator(), reference.Denominator()
	switch {
	case v == r:
		return ClassNormal
	case v < r:
		return ClassBetter
	default:
		return ClassBelow
	}
}

// Description is the sentence shown next to a final result.
func (c Classification) Description() string {
	switch c {
	case ClassNormal:
		return "This is normal vision."
	case ClassBetter:
		return "This is better than normal vision."
	default:
		return "This is below normal vision."
	}
}
