// Package resample derives pseudo-timeframes by subsampling one fetched
// candle series at different strides.
package resample

import (
	"fmt"
	"strconv"
	"time"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

// Window is the number of closes every resampled series holds.
const Window = 20

// Closes takes window closes backward from the newest candle at the given
// stride and returns them oldest first. It never returns a partial window.
func Closes(candles []*domain.Candle, stride, window int) ([]float64, error) {
	if stride < 1 || window < 1 {
		return nil, fmt.Errorf("stride %d and window %d must be positive: %w", stride, window, ports.ErrInsufficientData)
	}
	if len(candles) < stride*window {
		return nil, fmt.Errorf("need %d candles for stride %d, have %d: %w", stride*window, stride, len(candles), ports.ErrInsufficientData)
	}

	closes := make([]float64, window)
	idx := len(candles) - 1
	for i := window - 1; i >= 0; i-- {
		c := candles[idx]
		if c == nil {
			return nil, fmt.Errorf("missing candle at index %d: %w", idx, ports.ErrInsufficientData)
		}
		closes[i] = c.Close
		idx -= stride
	}
	return closes, nil
}

// Timeframe describes one fetched interval and the periods derived from it.
type Timeframe struct {
	Interval       string // Exchange interval (e.g., "15m")
	CandlesPerHour int    // Candles of Interval in one hour; 1 for hourly and above
	Periods        []int  // Pseudo-timeframes in hours
}

// Stride converts a period in hours into a candle stride.
func (tf Timeframe) Stride(period int) int {
	perHour := tf.CandlesPerHour
	if perHour < 1 {
		perHour = 1
	}
	return period * perHour
}

// BarDuration is the wall-clock span of one resampled bar.
func (tf Timeframe) BarDuration(period int) time.Duration {
	d, err := IntervalDuration(tf.Interval)
	if err != nil {
		return time.Duration(period) * time.Hour
	}
	return time.Duration(tf.Stride(period)) * d
}

// RequiredCandles is the history needed for the longest period.
func (tf Timeframe) RequiredCandles(window int) int {
	longest := 0
	for _, p := range tf.Periods {
		if p > longest {
			longest = p
		}
	}
	return tf.Stride(longest) * window
}

// DefaultTimeframes lists the fetched intervals and their hourly periods.
var DefaultTimeframes = []Timeframe{
	{Interval: "3m", CandlesPerHour: 20, Periods: []int{1, 2}},
	{Interval: "5m", CandlesPerHour: 12, Periods: []int{1, 2, 3, 4}},
	{Interval: "15m", CandlesPerHour: 4, Periods: []int{1, 2, 3, 4, 6, 8, 10, 12}},
	{Interval: "30m", CandlesPerHour: 2, Periods: []int{1, 2, 3, 4, 6, 8, 10, 12, 24}},
	{Interval: "1h", CandlesPerHour: 1, Periods: []int{1, 2, 3, 4, 6, 8, 10, 12, 24}},
}

// IntervalDuration parses exchange intervals such as "3m", "4h", "1d", "1w".
func IntervalDuration(interval string) (time.Duration, error) {
	if len(interval) < 2 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
	switch interval[len(interval)-1] {
	case 's':
		return time.Duration(n) * time.Second, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid interval %q", interval)
	}
}
