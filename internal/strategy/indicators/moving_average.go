package indicators

import (
	"fmt"
	"math"
)

// SMA computes the simple moving average of values.
func SMA(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("cannot average an empty window: %w", ErrUnavailable)
	}
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values)), nil
}

// StandardDeviation computes the population standard deviation around mean.
func StandardDeviation(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)))
}
