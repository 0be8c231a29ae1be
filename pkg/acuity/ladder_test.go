package acuity

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "6/6", want: 6},
		{in: "6/1.5", want: 1.5},
		{in: " 6/60 ", want: 60},
		{in: "20/20", wantErr: true},
		{in: "6-6", wantErr: true},
		{in: "6/0", wantErr: true},
		{in: "6/-3", wantErr: true},
		{in: "6/abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			l, err := ParseLevel(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidLevel) {
					t.Fatalf("ParseLevel(%q) error = %v, want ErrInvalidLevel", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLevel(%q) unexpected error: %v", tt.in, err)
			}
			if got := l.Denominator(); got != tt.want {
				t.Errorf("Denominator() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStandardLadder(t *testing.T) {
	l := Standard()
	if l.Len() != 15 {
		t.Fatalf("expected 15 levels, got %d", l.Len())
	}
	if l.Best() != "6/1.5" || l.Worst() != "6/60" {
		t.Fatalf("unexpected ends %s..%s", l.Best(), l.Worst())
	}
	i, ok := l.Index(Reference)
	if !ok || i != 5 {
		t.Fatalf("expected 6/6 at index 5, got %d (%v)", i, ok)
	}
	for i := 1; i < l.Len(); i++ {
		if l.At(i).Denominator() <= l.At(i-1).Denominator() {
			t.Fatalf("ladder not strictly increasing at %d", i)
		}
	}
}

func TestNewLadderRejects(t *testing.T) {
	tests := []struct {
		name   string
		levels []Level
	}{
		{name: "empty"},
		{name: "unordered", levels: []Level{"6/6", "6/5"}},
		{name: "duplicate", levels: []Level{"6/6", "6/6"}},
		{name: "malformed", levels: []Level{"6/6", "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLadder(tt.levels...); !errors.Is(err, ErrInvalidLadder) {
				t.Fatalf("expected ErrInvalidLadder, got %v", err)
			}
		})
	}
}

func TestLadderLevelsIsACopy(t *testing.T) {
	l := Standard()
	levels := l.Levels()
	levels[0] = "6/600"
	if l.Best() != "6/1.5" {
		t.Fatalf("ladder mutated through Levels()")
	}
}

func TestBetween(t *testing.T) {
	l := Standard()
	tests := []struct {
		name string
		a, b Level
		want []Level
	}{
		{name: "adjacent", a: "6/6", b: "6/8", want: nil},
		{name: "adjacent reversed", a: "6/5", b: "6/4", want: nil},
		{name: "gap", a: "6/6", b: "6/12", want: []Level{"6/8", "6/10"}},
		{name: "gap reversed", a: "6/12", b: "6/6", want: []Level{"6/8", "6/10"}},
		{name: "off-ladder bounds", a: "6/7", b: "6/9", want: []Level{"6/8"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := l.Between(tt.a, tt.b); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Between(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		level Level
		want  Classification
	}{
		{"6/6", ClassNormal},
		{"6/4", ClassBetter},
		{"6/12", ClassBelow},
	}
	for _, tt := range tests {
		if got := Classify(tt.level, Reference); got != tt.want {
			t.Errorf("Classify(%s) = %s, want %s", tt.level, got, tt.want)
		}
	}
}
