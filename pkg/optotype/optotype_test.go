package optotype

import (
	"math"
	"reflect"
	"testing"
)

func TestRowLength(t *testing.T) {
	g := NewSeededGenerator(1)
	for _, n := range []int{0, 1, DefaultSymbolsPerRow, 12} {
		if got := len(g.Row(n)); got != n {
			t.Errorf("Row(%d) has %d symbols", n, got)
		}
	}
}

func TestSeededGeneratorIsDeterministic(t *testing.T) {
	a, b := NewSeededGenerator(42), NewSeededGenerator(42)
	for i := 0; i < 10; i++ {
		ra, rb := a.Row(DefaultSymbolsPerRow), b.Row(DefaultSymbolsPerRow)
		if !reflect.DeepEqual(ra, rb) {
			t.Fatalf("row %d differs: %v vs %v", i, ra, rb)
		}
	}
}

func TestOrientationsUniform(t *testing.T) {
	const rows = 20000
	g := NewSeededGenerator(7)

	counts := map[Orientation]int{}
	// Agreement between the same position of consecutive rows.
	same := 0
	prev := g.Row(DefaultSymbolsPerRow)
	for i := 0; i < rows; i++ {
		row := g.Row(DefaultSymbolsPerRow)
		for j, o := range row {
			counts[o]++
			if o == prev[j] {
				same++
			}
		}
		prev = row
	}

	total := float64(rows * DefaultSymbolsPerRow)
	for _, o := range Orientations {
		frac := float64(counts[o]) / total
		if math.Abs(frac-0.25) > 0.01 {
			t.Errorf("%s frequency %.4f, want ~0.25", o, frac)
		}
	}
	if frac := float64(same) / total; math.Abs(frac-0.25) > 0.01 {
		t.Errorf("consecutive rows agree %.4f of the time, want ~0.25", frac)
	}
}

func TestAngle(t *testing.T) {
	if Right.Angle() != 0 || Bottom.Angle() != math.Pi/2 || Left.Angle() != math.Pi || Top.Angle() != 3*math.Pi/2 {
		t.Fatalf("unexpected gap angles")
	}
}
