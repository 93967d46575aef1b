// Package estimator computes the causal PPP estimate of an exchange rate and its
// expanding relative-error band.
//
// Every value in row i depends only on rows 0..i: the calibration coefficient and
// the error statistics are expanding-window accumulators updated once per row in
// index order, so appending later rows never changes earlier ones.
package estimator

import (
	"math"

	"github.com/rewired-gh/pppwatch/internal/models"
)

// BandWidth is the number of standard deviations on each side of the mean error.
const BandWidth = 2.0

// Estimate aligns the inputs and derives the estimation frame.
//
// It fails with *InsufficientDataError when the inputs share no index, and with
// *DataQualityError when a row holds a non-finite value, a non-positive price, or
// prices whose ratio is not finite and positive. The inputs are not modified.
//
// Undefined relative errors are left out of the error statistics, so error_std
// needs two defined errors, not two rows.
func Estimate(priceA, priceB, rate models.Series) (*models.Frame, error) {
	points, err := Align(priceA, priceB, rate)
	if err != nil {
		return nil, err
	}

	rows := make([]models.Row, 0, len(points))
	var coef, relErr Accumulator

	for _, p := range points {
		if err := checkPoint(p); err != nil {
			return nil, err
		}

		row := models.Row{
			Index:  p.Index,
			PriceA: p.PriceA,
			PriceB: p.PriceB,
			Rate:   p.Rate,
		}
		row.PriceRatio = p.PriceA / p.PriceB
		if !isFinite(row.PriceRatio) || row.PriceRatio <= 0 {
			return nil, &DataQualityError{Index: p.Index, Column: models.ColPriceRatio, Value: row.PriceRatio,
				Reason: "price ratio must be finite and positive"}
		}
		row.InstantCoef = p.Rate / row.PriceRatio
		if !isFinite(row.InstantCoef) {
			return nil, &DataQualityError{Index: p.Index, Column: models.ColInstantCoef, Value: row.InstantCoef,
				Reason: "value is not finite"}
		}

		coef.Add(row.InstantCoef)
		row.RunningCoef = coef.Mean()
		row.Estimate = row.PriceRatio * row.RunningCoef

		if row.Estimate == 0 {
			row.RelativeError = models.Missing()
		} else {
			row.RelativeError = (p.Rate - row.Estimate) / row.Estimate
		}

		// Undefined errors do not enter the expanding window.
		if !models.IsMissing(row.RelativeError) {
			relErr.Add(row.RelativeError)
		}
		row.ErrorMean = relErr.Mean()
		row.ErrorStd = relErr.StdDev()

		row.ErrorLow = row.ErrorMean - BandWidth*row.ErrorStd
		row.ErrorHigh = row.ErrorMean + BandWidth*row.ErrorStd
		row.EstimateLow = row.Estimate * (1 + row.ErrorLow)
		row.EstimateHigh = row.Estimate * (1 + row.ErrorHigh)

		rows = append(rows, row)
	}

	return models.NewFrame(rows)
}

func checkPoint(p Point) error {
	// price_b is the ratio's denominator, price_a the coefficient's.
	if err := checkPrice(p.Index, models.ColPriceB, p.PriceB); err != nil {
		return err
	}
	if err := checkPrice(p.Index, models.ColPriceA, p.PriceA); err != nil {
		return err
	}
	if !isFinite(p.Rate) {
		return &DataQualityError{Index: p.Index, Column: models.ColRate, Value: p.Rate, Reason: "value is not finite"}
	}
	return nil
}

func checkPrice(index int, column string, v float64) error {
	if !isFinite(v) {
		return &DataQualityError{Index: index, Column: column, Value: v, Reason: "value is not finite"}
	}
	if v <= 0 {
		return &DataQualityError{Index: index, Column: column, Value: v, Reason: "price level must be positive"}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
