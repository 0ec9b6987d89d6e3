package robot

import (
	"math"
	"testing"
)

func TestArcadeDrive(t *testing.T) {
	tests := []struct {
		x, z        float64
		square      bool
		left, right float64
	}{
		{0, 0, false, 0, 0},
		{0.5, 0, false, 0.5, 0.5},
		{-0.5, 0, false, -0.5, -0.5},
		{0, 0.5, false, 0.5, -0.5},  // spin right
		{0, -0.5, false, -0.5, 0.5}, // spin left
		{0.6, 0.2, false, 0.6, 0.4},
		{-0.6, 0.2, false, -0.4, -0.6},
		{1, 1, false, 1, 0},
		{0.5, 0, true, 0.25, 0.25},
		{-0.5, 0.5, true, 0, -0.25},
		{2, 0, false, 1, 1},
	}

	for _, tt := range tests {
		left, right := ArcadeDrive(tt.x, tt.z, tt.square)
		if math.Abs(left-tt.left) > 1e-9 || math.Abs(right-tt.right) > 1e-9 {
			t.Errorf("ArcadeDrive(%g, %g, %v) = (%g, %g), want (%g, %g)",
				tt.x, tt.z, tt.square, left, right, tt.left, tt.right)
		}
	}
}

func TestLimit(t *testing.T) {
	for in, want := range map[float64]float64{-2: -1, -1: -1, 0.3: 0.3, 1: 1, 5: 1} {
		if got := Limit(in); got != want {
			t.Errorf("Limit(%g) = %g, want %g", in, got, want)
		}
	}
}
