package models

import (
	"fmt"
)

// Column names of an estimation frame, in output order.
const (
	ColIndex         = "index"
	ColPriceA        = "price_a"
	ColPriceB        = "price_b"
	ColPriceRatio    = "price_ratio"
	ColRate          = "rate"
	ColInstantCoef   = "instant_coef"
	ColRunningCoef   = "running_coef"
	ColEstimate      = "estimate"
	ColRelativeError = "relative_error"
	ColErrorMean     = "error_mean"
	ColErrorStd      = "error_std"
	ColErrorLow      = "error_low"
	ColErrorHigh     = "error_high"
	ColEstimateLow   = "estimate_low"
	ColEstimateHigh  = "estimate_high"
)

// Columns lists every frame column, index first.
var Columns = []string{
	ColIndex, ColPriceA, ColPriceB, ColPriceRatio, ColRate,
	ColInstantCoef, ColRunningCoef, ColEstimate, ColRelativeError,
	ColErrorMean, ColErrorStd, ColErrorLow, ColErrorHigh,
	ColEstimateLow, ColEstimateHigh,
}

// Row holds the inputs and derived values for one index point.
// Undefined values are NaN (see Missing).
type Row struct {
	Index int

	PriceA     float64
	PriceB     float64
	PriceRatio float64
	Rate       float64

	InstantCoef float64
	RunningCoef float64
	Estimate    float64

	RelativeError float64
	ErrorMean     float64
	ErrorStd      float64
	ErrorLow      float64
	ErrorHigh     float64

	EstimateLow  float64
	EstimateHigh float64
}

// Value returns the named numeric column. The index column is returned as float64.
func (r Row) Value(column string) (float64, error) {
	switch column {
	case ColIndex:
		return float64(r.Index), nil
	case ColPriceA:
		return r.PriceA, nil
	case ColPriceB:
		return r.PriceB, nil
	case ColPriceRatio:
		return r.PriceRatio, nil
	case ColRate:
		return r.Rate, nil
	case ColInstantCoef:
		return r.InstantCoef, nil
	case ColRunningCoef:
		return r.RunningCoef, nil
	case ColEstimate:
		return r.Estimate, nil
	case ColRelativeError:
		return r.RelativeError, nil
	case ColErrorMean:
		return r.ErrorMean, nil
	case ColErrorStd:
		return r.ErrorStd, nil
	case ColErrorLow:
		return r.ErrorLow, nil
	case ColErrorHigh:
		return r.ErrorHigh, nil
	case ColEstimateLow:
		return r.EstimateLow, nil
	case ColEstimateHigh:
		return r.EstimateHigh, nil
	}
	return 0, fmt.Errorf("unknown column: %s", column)
}

// Values returns the row's values in Columns order.
func (r Row) Values() []float64 {
	out := make([]float64, len(Columns))
	for i, c := range Columns {
		out[i], _ = r.Value(c)
	}
	return out
}

// InBand reports whether the observed rate lies within [EstimateLow, EstimateHigh].
// It is false whenever the band is undefined.
func (r Row) InBand() bool {
	if IsMissing(r.EstimateLow) || IsMissing(r.EstimateHigh) {
		return false
	}
	return r.Rate >= r.EstimateLow && r.Rate <= r.EstimateHigh
}

// Frame is an immutable, index-ascending table of estimation rows.
type Frame struct {
	rows []Row
}

// NewFrame builds a frame from rows, which must already be sorted by strictly
// increasing index. The slice is copied.
func NewFrame(rows []Row) (*Frame, error) {
	for i := 1; i < len(rows); i++ {
		if rows[i].Index <= rows[i-1].Index {
			return nil, fmt.Errorf("frame rows out of order at position %d: index %d after %d",
				i, rows[i].Index, rows[i-1].Index)
		}
	}
	cp := make([]Row, len(rows))
	copy(cp, rows)
	return &Frame{rows: cp}, nil
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.rows)
}

// Row returns the i-th row.
func (f *Frame) Row(i int) Row {
	return f.rows[i]
}

// Rows returns a copy of all rows.
func (f *Frame) Rows() []Row {
	cp := make([]Row, len(f.rows))
	copy(cp, f.rows)
	return cp
}

// Last returns the final row.
func (f *Frame) Last() (Row, bool) {
	if f.Len() == 0 {
		return Row{}, false
	}
	return f.rows[len(f.rows)-1], true
}

// LastIndex returns the index of the final row.
func (f *Frame) LastIndex() (int, bool) {
	r, ok := f.Last()
	return r.Index, ok
}

// Indexes returns the row indexes in order.
func (f *Frame) Indexes() []int {
	out := make([]int, len(f.rows))
	for i, r := range f.rows {
		out[i] = r.Index
	}
	return out
}

// Column returns the named column as a fresh slice.
func (f *Frame) Column(name string) ([]float64, error) {
	out := make([]float64, len(f.rows))
	for i, r := range f.rows {
		v, err := r.Value(name)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
