package distance

import "math"

const (
	// TargetDistanceM is the chart distance the patient is guided to.
	TargetDistanceM = 4.0
	// ToleranceM is how far from the target still counts as on target.
	ToleranceM = 0.2
	// RequiredFrames is how many consecutive on-target frames are needed,
	// 1.5s at 10 frames per second.
	RequiredFrames = 15
)

// Tracker decides when the patient has held the target distance long enough
// to start the test.
type Tracker struct {
	TargetM   float64
	Tolerance float64
	Required  int

	consecutive int
	last        float64
}

// NewTracker returns a tracker with the default target, tolerance and frame
// count.
func NewTracker() *Tracker {
	return &Tracker{TargetM: TargetDistanceM, Tolerance: ToleranceM, Required: RequiredFrames}
}

// AtTarget reports whether d is within tolerance of the target.
func (t *Tracker) AtTarget(d float64) bool {
	return d > 0 && math.Abs(d-t.TargetM) <= t.Tolerance
}

// Observe feeds one backend response and reports whether the target has
// been held for the required number of frames. A frame without a face or
// off target resets the count.
func (t *Tracker) Observe(r *Response) bool {
	d, ok := r.Distance()
	if !ok {
		t.consecutive = 0
		return false
	}
	t.last = d

	if r.AtTargetDistance || t.AtTarget(d) {
		t.consecutive++
	} else {
		t.consecutive = 0
	}
	return t.consecutive >= t.Required
}

// Last is the most recent measured distance in meters.
func (t *Tracker) Last() float64 { return t.last }

// Reset forgets all observed frames.
func (t *Tracker) Reset() {
	t.consecutive = 0
	t.last = 0
}
