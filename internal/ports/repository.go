package ports

import (
	"context"
	"time"

	"cryptoSignalBot/internal/domain"
)

// SortOrder selects the ordering of query results by time.
type SortOrder int

const (
	SortNewestFirst SortOrder = iota
	SortOldestFirst
)

// SignalFilter narrows a signal query. Zero values are ignored.
type SignalFilter struct {
	Pair      *domain.Pair
	Direction domain.Direction
	Timeframe string
	Period    int
	Since     time.Time // Only signals emitted at or after Since
}

// OrderFilter narrows an order query. Zero values are ignored.
type OrderFilter struct {
	Pair          *domain.Pair
	Side          domain.OrderSide
	Statuses      []domain.OrderStatus
	ClientOrderID string
	BuyOrderID    string
}

// OrderPatch lists the mutable fields of an order. Nil fields are left unchanged.
type OrderPatch struct {
	Status          *domain.OrderStatus
	ExchangeOrderID *string
	Fill            *domain.Fill
	Reason          *domain.AbandonReason
}

// ConfigRepository stores runtime settings by key.
type ConfigRepository interface {
	// GetConfig returns the stored value, or ErrNotFound.
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

// SignalRepository is the append-only signal log.
type SignalRepository interface {
	AppendSignal(ctx context.Context, signal *domain.Signal) error
	// QuerySignals returns matching signals sorted by emission time; limit <= 0 means no limit.
	QuerySignals(ctx context.Context, filter SignalFilter, sort SortOrder, limit int) ([]*domain.Signal, error)
}

// OrderRepository stores orders and applies keyed updates.
type OrderRepository interface {
	// AppendOrder saves a new order. Returns ErrDuplicateEntry when the pair
	// already has a submitted buy or the client order id is taken.
	AppendOrder(ctx context.Context, order *domain.Order) error
	// UpdateOrder patches the order with the given client order id.
	UpdateOrder(ctx context.Context, clientOrderID string, patch OrderPatch) error
	// QueryOrders returns matching orders, oldest first.
	QueryOrders(ctx context.Context, filter OrderFilter) ([]*domain.Order, error)
}

// Repository is the full persistence collaborator.
type Repository interface {
	ConfigRepository
	SignalRepository
	OrderRepository
}
