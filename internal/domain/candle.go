package domain

import "time"

// Candle represents a single OHLCV data point for a pair and interval.
type Candle struct {
	OpenTime  time.Time // Start time of the interval
	CloseTime time.Time // End time of the interval
	Symbol    string    // Exchange symbol (e.g., "BTCUSDT")
	Interval  string    // Candle interval (e.g., "3m", "1h")
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// ClosesBySymbol groups candles by symbol into ordered close-price sequences.
// Input order is preserved within each symbol.
func ClosesBySymbol(candles []*Candle) map[string][]float64 {
	grouped := make(map[string][]float64)
	for _, c := range candles {
		if c == nil {
			continue
		}
		grouped[c.Symbol] = append(grouped[c.Symbol], c.Close)
	}
	return grouped
}

// CandlesBySymbol groups candles by symbol, keeping input order.
func CandlesBySymbol(candles []*Candle) map[string][]*Candle {
	grouped := make(map[string][]*Candle)
	for _, c := range candles {
		if c == nil {
			continue
		}
		grouped[c.Symbol] = append(grouped[c.Symbol], c)
	}
	return grouped
}
