package domain

import "time"

// ThresholdProfile is one rung of the ruler: band multiplier and RSI thresholds.
type ThresholdProfile struct {
	StdDev  float64
	RSILow  float64
	RSIHigh float64
}

// Signal is a detected crossover event. Signals are append-only.
type Signal struct {
	ID           string
	Pair         Pair
	Timeframe    string // Fetched candle interval (e.g., "15m")
	Period       int    // Resampling period in hours for the timeframe
	Last         float64
	RSIPrev      float64
	RSICurr      float64
	BBLower      float64
	BBUpper      float64
	Direction    Direction
	Profile      ThresholdProfile
	ProfileIndex int
	RulerVersion string
	EmittedAt    time.Time
}
