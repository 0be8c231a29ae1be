// Package optotype describes Landolt C rings and draws the random gap
// orientations shown on each chart row.
package optotype

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Orientation is the side of the ring the gap faces.
type Orientation string

const (
	Right  Orientation = "right"
	Left   Orientation = "left"
	Top    Orientation = "top"
	Bottom Orientation = "bottom"
)

// Orientations is the fixed set a row is drawn from.
var Orientations = []Orientation{Right, Left, Top, Bottom}

// DefaultSymbolsPerRow is the number of rings on one chart row.
const DefaultSymbolsPerRow = 5

// GapHalfAngle is half the angular width of the gap, in radians.
const GapHalfAngle = math.Pi / 12

// Angle returns the direction of the gap center in screen coordinates
// (y grows downward, 0 points right).
func (o Orientation) Angle() float64 {
	switch o {
	case Left:
		return math.Pi
	case Top:
		return 3 * math.Pi / 2
	case Bottom:
		return math.Pi / 2
	default:
		return 0
	}
}

// Arrow is a terminal-friendly glyph for the orientation.
func (o Orientation) Arrow() string {
	switch o {
	case Left:
		return "←"
	case Top:
		return "↑"
	case Bottom:
		return "↓"
	default:
		return "→"
	}
}

// Generator draws rows of orientations.
type Generator interface {
	Row(n int) []Orientation
}

// RandomGenerator draws independent, uniformly distributed orientations.
type RandomGenerator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomGenerator wraps src. A nil src is seeded from the clock.
func NewRandomGenerator(src rand.Source) *RandomGenerator {
	if src == nil {
		now := uint64(time.Now().UnixNano())
		src = rand.NewPCG(now, now>>17|1)
	}
	return &RandomGenerator{rnd: rand.New(src)}
}

// NewSeededGenerator is a deterministic generator for tests and replays.
func NewSeededGenerator(seed uint64) *RandomGenerator {
	return NewRandomGenerator(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func (g *RandomGenerator) Row(n int) []Orientation {
	g.mu.Lock()
	defer g.mu.Unlock()

	row := make([]Orientation, n)
	for i := range row {
		row[i] = Orientations[g.rnd.IntN(len(Orientations))]
	}
	return row
}
