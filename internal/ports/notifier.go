package ports

import (
	"context"
	"time"

	"cryptoSignalBot/internal/domain"
)

// Notifier surfaces conditions that need an operator.
type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

// Metrics records operational counters. Implementations must be safe for concurrent use.
type Metrics interface {
	SignalEmitted(pair domain.Pair, direction domain.Direction, timeframe string)
	OrderSubmitted(pair domain.Pair, side domain.OrderSide)
	OrderFilled(pair domain.Pair, side domain.OrderSide)
	OrderAbandoned(pair domain.Pair, side domain.OrderSide, reason domain.AbandonReason)
	PollFailed(pair domain.Pair)
	CycleCompleted(duration time.Duration)
	CycleSkipped()
}
