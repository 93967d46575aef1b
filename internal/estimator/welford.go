package estimator

import "math"

// Accumulator tracks an expanding mean and variance with Welford's online update.
// The zero value is an empty accumulator.
type Accumulator struct {
	count int
	mean  float64
	m2    float64
}

// Add folds x into the running statistics.
func (a *Accumulator) Add(x float64) {
	a.count++
	delta := x - a.mean
	a.mean += delta / float64(a.count)
	delta2 := x - a.mean
	a.m2 += delta * delta2
}

func (a *Accumulator) Count() int {
	return a.count
}

// Mean is NaN until the first sample.
func (a *Accumulator) Mean() float64 {
	if a.count == 0 {
		return math.NaN()
	}
	return a.mean
}

// Variance is the sample variance (n-1 denominator); NaN with fewer than two samples.
func (a *Accumulator) Variance() float64 {
	if a.count < 2 {
		return math.NaN()
	}
	return a.m2 / float64(a.count-1)
}

func (a *Accumulator) StdDev() float64 {
	return math.Sqrt(a.Variance())
}
