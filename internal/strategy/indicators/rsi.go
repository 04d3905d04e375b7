package indicators

// RSIPair computes two consecutive RSI readings using Wilder's smoothing.
// closes must hold exactly period+2 values; the first reading covers
// closes[:period+1], the second closes[:period+2].
func RSIPair(closes []float64, period int) (prev, curr float64, err error) {
	if period <= 0 || len(closes) != period+2 {
		return 0, 0, unavailable("RSI", len(closes), period+2)
	}

	// Calculate price changes
	changes := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		changes = append(changes, closes[i]-closes[i-1])
	}

	// Calculate initial average gain and loss
	var avgGain, avgLoss float64
	for i := 0; i < period; i++ {
		if changes[i] > 0 {
			avgGain += changes[i]
		} else {
			avgLoss -= changes[i]
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	readings := make([]float64, 0, 2)
	readings = append(readings, rsiFromAverages(avgGain, avgLoss))

	// Wilder's smoothing for the remaining change
	for i := period; i < len(changes); i++ {
		gain, loss := 0.0, 0.0
		if changes[i] > 0 {
			gain = changes[i]
		} else {
			loss = -changes[i]
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		readings = append(readings, rsiFromAverages(avgGain, avgLoss))
	}

	return readings[0], readings[1], nil
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50 // Neutral if no change
		}
		return 100 // Max RSI if only gains
	}

	rs := avgGain / avgLoss
	rsi := 100 - (100 / (1 + rs))

	// Ensure RSI is within bounds
	if rsi > 100 {
		rsi = 100
	} else if rsi < 0 {
		rsi = 0
	}
	return rsi
}
