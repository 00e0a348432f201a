package schedule

import (
	"math"
	"testing"
)

// TestExponentialBounds ensures the schedule's value stays within
// [min, start] no matter how far it is advanced.
func TestExponentialBounds(t *testing.T) {
	start, min, decay := 1.0, 0.1, 100.0
	sched, err := NewExponential(start, min, decay)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 10_000; i++ {
		value := sched.Next()
		if value > start || value < min {
			t.Fatalf("step %v: value out of bounds \n\twant(in [%v, %v])"+
				"\n\thave(%v)", i, min, start, value)
		}
	}
}

// TestExponentialDecreasing ensures the schedule strictly decreases
// with each advance until reaching the minimum asymptotically.
func TestExponentialDecreasing(t *testing.T) {
	sched, err := NewExponential(1.0, 0.1, 50.0)
	if err != nil {
		t.Fatal(err)
	}

	last := sched.Next()
	for i := 0; i < 1000; i++ {
		value := sched.Next()
		if value >= last {
			t.Fatalf("step %v: schedule did not decrease \n\tprev(%v)"+
				"\n\thave(%v)", i, last, value)
		}
		last = value
	}

	// After many steps the value should be essentially at the minimum
	for i := 0; i < 100_000; i++ {
		sched.Next()
	}
	if math.Abs(sched.Value()-0.1) > 1e-6 {
		t.Errorf("schedule did not approach minimum \n\twant(%v)\n\thave(%v)",
			0.1, sched.Value())
	}
}

// TestExponentialValuePure ensures Value() does not advance the
// schedule.
func TestExponentialValuePure(t *testing.T) {
	sched, err := NewExponential(1.0, 0.0, 10.0)
	if err != nil {
		t.Fatal(err)
	}

	first := sched.Value()
	for i := 0; i < 10; i++ {
		if sched.Value() != first {
			t.Fatal("Value() advanced the schedule")
		}
	}
	if sched.Steps() != 0 {
		t.Fatalf("Value() incremented the step counter to %v", sched.Steps())
	}

	sched.Next()
	if sched.Steps() != 1 {
		t.Fatalf("Next() should advance by exactly one step, got %v",
			sched.Steps())
	}
}

// TestExponentialValidation ensures invalid constructions are rejected.
func TestExponentialValidation(t *testing.T) {
	if _, err := NewExponential(0.1, 1.0, 100.0); err == nil {
		t.Error("expected error when min > start")
	}
	if _, err := NewExponential(1.0, 0.1, 0.0); err == nil {
		t.Error("expected error for non-positive decay")
	}
	if _, err := NewExponential(1.0, 0.1, -5.0); err == nil {
		t.Error("expected error for negative decay")
	}
	if _, err := NewExponential(1.0, 1.0, 100.0); err != nil {
		t.Errorf("min == start should be legal: %v", err)
	}
}
