// Package schedule implements annealing schedules for exploration
// parameters
package schedule

import (
	"fmt"
	"math"
)

// Exponential anneals a value exponentially from a starting value
// toward a minimum value with a fixed time constant. The schedule is
// advanced by calls to Next() only, so the number of decisions made -
// not the number of times the value is inspected - determines how far
// the value has decayed. Value() may be called freely for diagnostics
// without perturbing the schedule.
type Exponential struct {
	start float64
	min   float64
	decay float64
	steps int
}

// NewExponential returns a schedule decaying from start toward min
// with time constant decay. The value after t steps is:
//
//	min + (start - min) * exp(-t / decay)
func NewExponential(start, min, decay float64) (*Exponential, error) {
	if min > start {
		return nil, fmt.Errorf("newexponential: minimum value cannot "+
			"exceed starting value \n\twant(<= %v) \n\thave(%v)", start, min)
	}
	if decay <= 0 {
		return nil, fmt.Errorf("newexponential: decay time constant must "+
			"be positive \n\thave(%v)", decay)
	}

	return &Exponential{
		start: start,
		min:   min,
		decay: decay,
		steps: 0,
	}, nil
}

// Value returns the current value of the schedule without advancing it
func (e *Exponential) Value() float64 {
	scale := math.Exp(-float64(e.steps) / e.decay)
	return e.min + (e.start-e.min)*scale
}

// Next returns the current value of the schedule, then advances the
// schedule by a single step
func (e *Exponential) Next() float64 {
	value := e.Value()
	e.steps++
	return value
}

// Steps returns the number of steps the schedule has been advanced
func (e *Exponential) Steps() int {
	return e.steps
}

// Clone returns an independent copy of the schedule, advanced to the
// same step
func (e *Exponential) Clone() *Exponential {
	clone := *e
	return &clone
}

// Reset rewinds the schedule to its starting value
func (e *Exponential) Reset() {
	e.steps = 0
}
