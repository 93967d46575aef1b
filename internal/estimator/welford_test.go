package estimator

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/stat"
)

func TestAccumulator_Empty(t *testing.T) {
	var a Accumulator
	if a.Count() != 0 {
		t.Errorf("Count() = %d", a.Count())
	}
	if !math.IsNaN(a.Mean()) || !math.IsNaN(a.StdDev()) {
		t.Errorf("empty accumulator mean=%v std=%v, want NaN", a.Mean(), a.StdDev())
	}
}

func TestAccumulator_SingleSample(t *testing.T) {
	var a Accumulator
	a.Add(3.5)
	if a.Mean() != 3.5 {
		t.Errorf("Mean() = %v", a.Mean())
	}
	if !math.IsNaN(a.Variance()) {
		t.Errorf("Variance() = %v, want NaN for one sample", a.Variance())
	}
}

func TestAccumulator_MatchesBatch(t *testing.T) {
	xs := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	var a Accumulator
	for i, x := range xs {
		a.Add(x)
		if !almostEqual(a.Mean(), stat.Mean(xs[:i+1], nil), 1e-12) {
			t.Errorf("step %d mean = %v", i, a.Mean())
		}
		if i > 0 && !almostEqual(a.Variance(), stat.Variance(xs[:i+1], nil), 1e-12) {
			t.Errorf("step %d variance = %v, want %v", i, a.Variance(), stat.Variance(xs[:i+1], nil))
		}
	}
}

func TestAccumulator_LargeOffset(t *testing.T) {
	// Naive sum-of-squares loses all precision here.
	var a Accumulator
	for _, x := range []float64{1e9 + 4, 1e9 + 7, 1e9 + 13, 1e9 + 16} {
		a.Add(x)
	}
	if !almostEqual(a.Variance(), 30, 1e-6) {
		t.Errorf("Variance() = %v, want 30", a.Variance())
	}
}
