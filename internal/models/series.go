// Package models defines the core domain entities: indexed series, estimation rows and frames.
package models

import (
	"math"
	"sort"
)

// Series maps an ordered index (a calendar year) to a value.
// Series handed to the estimator or to consumers are never mutated.
type Series map[int]float64

// Indexes returns the series keys in ascending order.
func (s Series) Indexes() []int {
	idx := make([]int, 0, len(s))
	for k := range s {
		idx = append(idx, k)
	}
	sort.Ints(idx)
	return idx
}

// Missing returns the in-memory marker for an undefined value.
func Missing() float64 {
	return math.NaN()
}

// IsMissing reports whether v is the missing marker.
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}
