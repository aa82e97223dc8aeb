package telemetry

import (
	"math"
	"testing"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"empty slice", []float64{}, 0.5, 0},
		{"single element", []float64{5.0}, 0.5, 5.0},
		{"p0", []float64{1, 2, 3, 4, 5}, 0.0, 1.0},
		{"p100", []float64{1, 2, 3, 4, 5}, 1.0, 5.0},
		{"p50 odd", []float64{1, 2, 3, 4, 5}, 0.5, 3.0},
		{"p10", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.1, 1.0},
		{"p90", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.9, 9.0},
		{"clamped above", []float64{1, 2, 3}, 1.5, 3.0},
		{"clamped below", []float64{1, 2, 3}, -1, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.sorted, tt.p)
			if math.Abs(got-tt.want) > 0.001 {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}

func TestComputeDistribution(t *testing.T) {
	values := []float64{10, 2, 8, 4, 6}
	mean, std, p10, p50, p90 := ComputeDistribution(values)

	if math.Abs(mean-6) > 0.001 {
		t.Errorf("mean = %v, want 6", mean)
	}
	// Population std of 2,4,6,8,10 is sqrt(8)
	if math.Abs(std-math.Sqrt(8)) > 0.001 {
		t.Errorf("std = %v, want %v", std, math.Sqrt(8))
	}
	if p10 != 2 || p50 != 6 || p90 != 10 {
		t.Errorf("percentiles = %v/%v/%v, want 2/6/10", p10, p50, p90)
	}

	// Input must not be reordered.
	if values[0] != 10 {
		t.Error("ComputeDistribution sorted its input in place")
	}
}

func TestComputeDistributionEmpty(t *testing.T) {
	mean, std, p10, p50, p90 := ComputeDistribution(nil)
	if mean != 0 || std != 0 || p10 != 0 || p50 != 0 || p90 != 0 {
		t.Errorf("empty distribution = %v %v %v %v %v, want zeros", mean, std, p10, p50, p90)
	}
}
