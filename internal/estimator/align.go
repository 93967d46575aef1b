package estimator

import (
	"github.com/rewired-gh/pppwatch/internal/models"
)

// Point is one fully populated index point of the three inputs.
type Point struct {
	Index  int
	PriceA float64
	PriceB float64
	Rate   float64
}

// Align inner-joins the three series on their index and returns the common
// points in ascending index order. The inputs are only read.
func Align(priceA, priceB, rate models.Series) ([]Point, error) {
	var points []Point
	for _, idx := range priceA.Indexes() {
		b, ok := priceB[idx]
		if !ok {
			continue
		}
		r, ok := rate[idx]
		if !ok {
			continue
		}
		points = append(points, Point{Index: idx, PriceA: priceA[idx], PriceB: b, Rate: r})
	}
	if len(points) == 0 {
		return nil, &InsufficientDataError{PriceA: len(priceA), PriceB: len(priceB), Rate: len(rate)}
	}
	return points, nil
}
