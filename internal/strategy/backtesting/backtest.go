package backtesting

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
	"cryptoSignalBot/internal/strategy"
	"cryptoSignalBot/internal/strategy/analytics"
	"cryptoSignalBot/internal/strategy/resample"
)

// ReplayConfig holds configuration for a historical replay.
type ReplayConfig struct {
	Pair        domain.Pair
	Timeframe   resample.Timeframe // Interval must match the candles
	Period      int                // One of Timeframe.Periods
	Profile     domain.ThresholdProfile
	Policy      strategy.CrossoverPolicy
	OrderAmount float64 // Buy size in denominator currency
	FeeRate     float64 // Fee per fill as a fraction of notional
}

// ReplayResult holds the outcome of a replay.
type ReplayResult struct {
	Signals []*domain.Signal
	Orders  []*domain.Order
	Summary *analytics.Summary
}

// Replay walks an ascending candle series one candle at a time, evaluating
// the detector rules as a live cycle would at each candle's close. A buy signal
// opens a simulated position at the close when none is open; a sell signal
// closes it. A crossover repeated within one resampled bar is ignored.
func Replay(ctx context.Context, candles []*domain.Candle, cfg ReplayConfig) (*ReplayResult, error) {
	if cfg.OrderAmount <= 0 || cfg.Period <= 0 {
		return nil, fmt.Errorf("order amount and period must be positive: %w", ports.ErrConfiguration)
	}
	if cfg.Policy == "" {
		cfg.Policy = strategy.PolicyInclusive
	}
	stride := cfg.Timeframe.Stride(cfg.Period)
	need := stride * resample.Window
	if len(candles) < need {
		return nil, fmt.Errorf("replay needs %d candles, have %d: %w", need, len(candles), ports.ErrInsufficientData)
	}
	bar := cfg.Timeframe.BarDuration(cfg.Period)

	result := &ReplayResult{}
	lastEmitted := make(map[domain.Direction]*domain.Signal)
	var open *domain.Order

	for i := need - 1; i < len(candles); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current := candles[i]

		reading, err := strategy.Read(candles[:i+1], stride, cfg.Profile)
		if err != nil {
			if errors.Is(err, ports.ErrInsufficientData) {
				continue
			}
			return nil, fmt.Errorf("candle %d: %w", i, err)
		}
		direction := strategy.Decide(cfg.Policy, cfg.Profile, reading)
		if direction == "" {
			continue
		}
		if prev := lastEmitted[direction]; prev != nil && current.CloseTime.Sub(prev.EmittedAt) < bar {
			continue
		}

		signal := &domain.Signal{
			ID:        "replay-" + strconv.Itoa(len(result.Signals)+1),
			Pair:      cfg.Pair,
			Timeframe: cfg.Timeframe.Interval,
			Period:    cfg.Period,
			Last:      reading.Last,
			RSIPrev:   reading.RSIPrev,
			RSICurr:   reading.RSICurr,
			BBLower:   reading.Lower,
			BBUpper:   reading.Upper,
			Direction: direction,
			Profile:   cfg.Profile,
			EmittedAt: current.CloseTime,
		}
		lastEmitted[direction] = signal
		result.Signals = append(result.Signals, signal)

		switch {
		case direction == domain.DirectionBuy && open == nil:
			open = simulateFill(signal, domain.Buy, cfg.OrderAmount/reading.Last, cfg.FeeRate, "")
			result.Orders = append(result.Orders, open)
		case direction == domain.DirectionSell && open != nil:
			sell := simulateFill(signal, domain.Sell, open.Fill.Amount, cfg.FeeRate, open.ClientOrderID)
			result.Orders = append(result.Orders, sell)
			open = nil
		}
	}

	result.Summary = analytics.Summarize(analytics.RoundTrips(result.Orders))
	return result, nil
}

// simulateFill fills a market order completely at the signal's last price.
func simulateFill(signal *domain.Signal, side domain.OrderSide, amount, feeRate float64, buyID string) *domain.Order {
	fill := &domain.Fill{
		Price:     signal.Last,
		Amount:    amount,
		Fee:       signal.Last * amount * feeRate,
		Timestamp: signal.EmittedAt,
	}
	return &domain.Order{
		ClientOrderID:   signal.ID + "-" + string(side),
		Pair:            signal.Pair,
		Side:            side,
		RequestedAmount: amount,
		Status:          domain.StatusFilled,
		Fill:            fill,
		BuyOrderID:      buyID,
		SignalID:        signal.ID,
		CreatedAt:       signal.EmittedAt,
		UpdatedAt:       signal.EmittedAt,
	}
}
