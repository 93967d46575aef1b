package estimator

import (
	"fmt"
)

// InsufficientDataError reports that the inputs share no index point.
type InsufficientDataError struct {
	PriceA int
	PriceB int
	Rate   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: no common index across price_a (%d points), price_b (%d points) and rate (%d points)",
		e.PriceA, e.PriceB, e.Rate)
}

// DataQualityError reports an input value the model cannot use.
type DataQualityError struct {
	Index  int
	Column string
	Value  float64
	Reason string
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("data quality: %s at index %d is %v: %s", e.Column, e.Index, e.Value, e.Reason)
}
