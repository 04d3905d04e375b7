package execution

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"cryptoSignalBot/config"
	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

// ErrGated marks a signal that was deliberately not executed.
var ErrGated = errors.New("order gated")

// GateConfig holds the static defaults for the execution gates.
type GateConfig struct {
	AllowBuy    bool
	AllowSell   bool
	OrderAmount float64 // In denominator currency
}

// Gate decides whether and how much to trade. Settings stored in the
// repository override the static defaults and are re-read on every check.
type Gate struct {
	config   GateConfig
	settings ports.ConfigRepository
	logger   ports.Logger
}

// NewGate creates a new gate instance.
func NewGate(cfg GateConfig, settings ports.ConfigRepository, logger ports.Logger) *Gate {
	return &Gate{config: cfg, settings: settings, logger: logger}
}

// BuyEnabled reports whether automated buys are switched on.
func (g *Gate) BuyEnabled(ctx context.Context) bool {
	return g.boolSetting(ctx, config.KeyAllowBuy, g.config.AllowBuy)
}

// SellEnabled reports whether automated sells are switched on.
func (g *Gate) SellEnabled(ctx context.Context) bool {
	return g.boolSetting(ctx, config.KeyAllowSell, g.config.AllowSell)
}

// OrderAmount returns the buy size in denominator currency.
func (g *Gate) OrderAmount(ctx context.Context) float64 {
	raw, ok := g.setting(ctx, config.KeyOrderAmount)
	if !ok {
		return g.config.OrderAmount
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		g.logger.Warn(ctx, "Ignoring invalid stored order amount", map[string]interface{}{"value": raw})
		return g.config.OrderAmount
	}
	return v
}

// CheckBuyFunds verifies the free denominator balance covers amount.
func (g *Gate) CheckBuyFunds(pair domain.Pair, amount float64, balances map[string]float64) error {
	free := balances[pair.Denominator]
	if free < amount {
		return fmt.Errorf("%w: %s balance %.8f below order amount %.8f: %w", ErrGated, pair.Denominator, free, amount, ports.ErrInsufficientFunds)
	}
	return nil
}

// SellAmount clamps wanted to the free numerator balance.
func (g *Gate) SellAmount(pair domain.Pair, wanted float64, balances map[string]float64) (float64, error) {
	amount := math.Min(wanted, balances[pair.Numerator])
	if amount <= 0 {
		return 0, fmt.Errorf("%w: no free %s to sell: %w", ErrGated, pair.Numerator, ports.ErrInsufficientFunds)
	}
	return amount, nil
}

func (g *Gate) boolSetting(ctx context.Context, key string, fallback bool) bool {
	raw, ok := g.setting(ctx, key)
	if !ok {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		g.logger.Warn(ctx, "Ignoring invalid stored flag", map[string]interface{}{"key": key, "value": raw})
		return fallback
	}
	return v
}

func (g *Gate) setting(ctx context.Context, key string) (string, bool) {
	if g.settings == nil {
		return "", false
	}
	raw, err := g.settings.GetConfig(ctx, key)
	if err != nil {
		if !errors.Is(err, ports.ErrNotFound) {
			g.logger.Warn(ctx, "Failed to read stored setting, using default", map[string]interface{}{"key": key, "error": err.Error()})
		}
		return "", false
	}
	return raw, true
}
