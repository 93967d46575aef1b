// Package report turns estimation frames into chart payloads and summaries
// for the HTTP API, the CLI and notifications.
package report

import (
	"errors"
	"fmt"

	"github.com/rewired-gh/pppwatch/internal/models"
)

// Series is one named line of a chart. Y values may be null.
type Series struct {
	Name string          `json:"name"`
	X    []int           `json:"x"`
	Y    []models.Number `json:"y"`
}

// Chart is a renderer-agnostic chart description.
type Chart struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	XAxis     string     `json:"x_axis"`
	YAxis     string     `json:"y_axis"`
	LogScale  bool       `json:"log_scale"`
	Series    []Series   `json:"series,omitempty"`
	Histogram *Histogram `json:"histogram,omitempty"`
	// Marker is an x position to highlight, such as the latest relative error.
	Marker *models.Number `json:"marker,omitempty"`
}

// Charts builds the four dashboard charts for a frame: rate against the estimate
// and its band (linear and log scale), the relative error trace with its
// mean ± 2 std band, and the relative error histogram.
func Charts(frame *models.Frame, label string) ([]Chart, error) {
	last, ok := frame.Last()
	if !ok {
		return nil, fmt.Errorf("cannot chart an empty frame")
	}
	x := frame.Indexes()

	series := func(name, column string) Series {
		ys, _ := frame.Column(column)
		return Series{Name: name, X: x, Y: models.Numbers(ys)}
	}

	rateLines := []Series{
		series("PPP Estimation", models.ColEstimate),
		series(label+" Exchange Rate", models.ColRate),
		series("Low Estimation", models.ColEstimateLow),
		series("High Estimation", models.ColEstimateHigh),
	}

	charts := []Chart{
		{
			ID:     "rate",
			Title:  label + " Exchange and PPP Estimation",
			XAxis:  "Year",
			YAxis:  label,
			Series: rateLines,
		},
		{
			ID:       "rate_log",
			Title:    label + " Exchange and PPP Estimation (log scale)",
			XAxis:    "Year",
			YAxis:    label,
			LogScale: true,
			Series:   rateLines,
		},
		{
			ID:    "relative_error",
			Title: "Relative Error Trace",
			XAxis: "Year",
			YAxis: "Relative Error",
			Series: []Series{
				series("Error", models.ColRelativeError),
				series("Mean", models.ColErrorMean),
				series("Mean - 2 * Std", models.ColErrorLow),
				series("Mean + 2 * Std", models.ColErrorHigh),
			},
		},
	}

	hist, err := ErrorHistogram(frame, DefaultBins)
	if errors.Is(err, ErrNoValues) {
		hist = EmptyHistogram()
	} else if err != nil {
		return nil, fmt.Errorf("failed to build error histogram: %w", err)
	}
	marker := models.Number(last.RelativeError)
	charts = append(charts, Chart{
		ID:        "error_histogram",
		Title:     "Relative Error Normalized Histogram",
		XAxis:     "Relative Error",
		YAxis:     "Probability",
		Histogram: hist,
		Marker:    &marker,
	})
	return charts, nil
}

// Summary describes the latest row of a frame.
type Summary struct {
	Index         int           `json:"index"`
	Rate          models.Number `json:"rate"`
	Estimate      models.Number `json:"estimate"`
	Low           models.Number `json:"estimate_low"`
	High          models.Number `json:"estimate_high"`
	RelativeError models.Number `json:"relative_error"`
	ErrorMean     models.Number `json:"error_mean"`
	ErrorStd      models.Number `json:"error_std"`
	BandDefined   bool          `json:"band_defined"`
	InBand        bool          `json:"in_band"`
}

// Summarize returns the summary of the frame's latest row.
func Summarize(frame *models.Frame) (Summary, error) {
	r, ok := frame.Last()
	if !ok {
		return Summary{}, fmt.Errorf("cannot summarize an empty frame")
	}
	return Summary{
		Index:         r.Index,
		Rate:          models.Number(r.Rate),
		Estimate:      models.Number(r.Estimate),
		Low:           models.Number(r.EstimateLow),
		High:          models.Number(r.EstimateHigh),
		RelativeError: models.Number(r.RelativeError),
		ErrorMean:     models.Number(r.ErrorMean),
		ErrorStd:      models.Number(r.ErrorStd),
		BandDefined:   !models.IsMissing(r.EstimateLow) && !models.IsMissing(r.EstimateHigh),
		InBand:        r.InBand(),
	}, nil
}

// Direction describes where the rate sits relative to the band.
func (s Summary) Direction() string {
	switch {
	case !s.BandDefined:
		return "undefined"
	case s.InBand:
		return "inside"
	case s.Rate > s.High:
		return "above"
	default:
		return "below"
	}
}
