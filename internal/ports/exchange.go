package ports

import (
	"context"

	"cryptoSignalBot/internal/domain"
)

// CandleSource fetches ordered price history.
type CandleSource interface {
	// FetchCandles returns up to limit candles for the pair and interval, oldest first.
	FetchCandles(ctx context.Context, pair domain.Pair, interval string, limit int) ([]*domain.Candle, error)
}

// TradeHistory fetches the account's recent trades for a pair.
type TradeHistory interface {
	FetchRecentTrades(ctx context.Context, pair domain.Pair) ([]*domain.Trade, error)
}

// ExchangeClient defines the interface for interacting with a cryptocurrency exchange.
// This abstraction allows decoupling the core bot logic from specific exchange implementations.
type ExchangeClient interface {
	CandleSource
	TradeHistory

	// FetchBalance returns the free amount per asset.
	FetchBalance(ctx context.Context) (map[string]float64, error)

	// SubmitMarketOrder places a market order for amount units of the numerator.
	// clientOrderID is forwarded so a retried submission cannot create a second order.
	// Returns the exchange order id.
	SubmitMarketOrder(ctx context.Context, pair domain.Pair, side domain.OrderSide, amount float64, clientOrderID string) (string, error)

	// LookupOrder returns the exchange id of the order placed with
	// clientOrderID, or ErrOrderNotFound when the exchange never accepted it.
	LookupOrder(ctx context.Context, pair domain.Pair, clientOrderID string) (string, error)

	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error
}
