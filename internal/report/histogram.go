package report

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/rewired-gh/pppwatch/internal/models"
)

// DefaultBins is the histogram resolution used by the relative-error chart.
const DefaultBins = 20

// ErrNoValues is returned when a histogram has no finite input.
var ErrNoValues = errors.New("no finite values to bin")

// Bin is one histogram bucket covering [Low, High).
type Bin struct {
	Low         float64 `json:"low"`
	High        float64 `json:"high"`
	Count       float64 `json:"count"`
	Probability float64 `json:"probability"`
	Density     float64 `json:"density"`
}

// FitPoint is the fitted normal density evaluated at a bin center.
type FitPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Histogram is the binned distribution of a set of values.
type Histogram struct {
	Total int        `json:"total"`
	Bins  []Bin      `json:"bins"`
	Mean  *float64   `json:"fit_mean,omitempty"`
	Std   *float64   `json:"fit_std,omitempty"`
	Fit   []FitPoint `json:"fit,omitempty"`
}

// NewHistogram bins the finite values into the given number of equal-width bins
// spanning their range. Non-finite values are ignored.
func NewHistogram(values []float64, bins int) (*Histogram, error) {
	if bins < 1 {
		return nil, fmt.Errorf("bins must be at least 1, got %d", bins)
	}
	x := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			x = append(x, v)
		}
	}
	if len(x) == 0 {
		return nil, ErrNoValues
	}
	sort.Float64s(x)

	lo, hi := x[0], x[len(x)-1]
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	dividers := make([]float64, bins+1)
	floats.Span(dividers, lo, hi)
	// stat.Histogram bins are half-open; nudge the last edge so the maximum is counted
	dividers[bins] = math.Nextafter(hi, math.Inf(1))

	counts := stat.Histogram(nil, dividers, x, nil)
	total := float64(len(x))

	h := &Histogram{Total: len(x), Bins: make([]Bin, bins)}
	for i, c := range counts {
		width := dividers[i+1] - dividers[i]
		h.Bins[i] = Bin{
			Low:         dividers[i],
			High:        dividers[i+1],
			Count:       c,
			Probability: c / total,
			Density:     c / total / width,
		}
	}
	return h, nil
}

// EmptyHistogram is the histogram of a frame with no defined relative error.
func EmptyHistogram() *Histogram {
	return &Histogram{Bins: []Bin{}}
}

// FitNormal evaluates a normal density with the given parameters at each bin
// center. Undefined or non-positive sigma leaves the histogram without a fit.
func (h *Histogram) FitNormal(mu, sigma float64) {
	if models.IsMissing(mu) || models.IsMissing(sigma) || sigma <= 0 || math.IsInf(sigma, 0) {
		return
	}
	normal := distuv.Normal{Mu: mu, Sigma: sigma}
	h.Fit = make([]FitPoint, len(h.Bins))
	for i, b := range h.Bins {
		c := (b.Low + b.High) / 2
		h.Fit[i] = FitPoint{X: c, Y: normal.Prob(c)}
	}
	h.Mean, h.Std = &mu, &sigma
}

// ErrorHistogram bins a frame's relative errors and fits a normal density using
// the latest running mean and standard deviation.
func ErrorHistogram(frame *models.Frame, bins int) (*Histogram, error) {
	last, ok := frame.Last()
	if !ok {
		return nil, ErrNoValues
	}
	errs, err := frame.Column(models.ColRelativeError)
	if err != nil {
		return nil, err
	}
	h, err := NewHistogram(errs, bins)
	if err != nil {
		return nil, err
	}
	h.FitNormal(last.ErrorMean, last.ErrorStd)
	return h, nil
}
