package indicators

import "fmt"

// Bands is a volatility band pair around the moving average.
type Bands struct {
	Lower  float64
	Middle float64
	Upper  float64
}

// Bollinger computes bands over exactly BandWindow closes as
// SMA ± stdDev × population standard deviation.
func Bollinger(closes []float64, stdDev float64) (Bands, error) {
	if len(closes) != BandWindow {
		return Bands{}, unavailable("Bollinger", len(closes), BandWindow)
	}
	if stdDev <= 0 {
		return Bands{}, fmt.Errorf("band multiplier must be positive, got %v", stdDev)
	}

	mean, err := SMA(closes)
	if err != nil {
		return Bands{}, err
	}
	sd := StandardDeviation(closes, mean)

	return Bands{
		Lower:  mean - stdDev*sd,
		Middle: mean,
		Upper:  mean + stdDev*sd,
	}, nil
}
