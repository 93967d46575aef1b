package estimator

import (
	"testing"

	"github.com/rewired-gh/pppwatch/internal/models"
)

func TestAlign(t *testing.T) {
	points, err := Align(
		models.Series{2002: 3, 2000: 1, 2001: 2},
		models.Series{2001: 20, 2002: 30, 2000: 10},
		models.Series{2000: 100, 2002: 300},
	)
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	want := []Point{
		{Index: 2000, PriceA: 1, PriceB: 10, Rate: 100},
		{Index: 2002, PriceA: 3, PriceB: 30, Rate: 300},
	}
	if len(points) != len(want) {
		t.Fatalf("got %d points, want %d", len(points), len(want))
	}
	for i := range want {
		if points[i] != want[i] {
			t.Errorf("point %d = %+v, want %+v", i, points[i], want[i])
		}
	}
}

func TestAlign_Empty(t *testing.T) {
	_, err := Align(models.Series{2000: 1}, models.Series{2000: 1}, models.Series{2001: 1})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(*InsufficientDataError); !ok {
		t.Errorf("error type %T, want *InsufficientDataError", err)
	}
}
