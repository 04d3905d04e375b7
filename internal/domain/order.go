package domain

import "time"

// Fill is the realized execution of an order, immutable once recorded.
type Fill struct {
	Price           float64
	Amount          float64
	Fee             float64 // In denominator currency
	Tax             float64 // In denominator currency
	Timestamp       time.Time
	ExchangeOrderID string
}

// Notional returns price * amount.
func (f *Fill) Notional() float64 {
	return f.Price * f.Amount
}

// Order is a market order submitted for a signal.
type Order struct {
	ID              int64
	ClientOrderID   string // Unique key used for updates and exchange-side idempotency
	Pair            Pair
	Side            OrderSide
	RequestedAmount float64 // Numerator quantity
	ExchangeOrderID string  // Empty until the exchange accepts the order
	Status          OrderStatus
	Fill            *Fill
	BuyOrderID      string // For sells: ClientOrderID of the buy being closed
	SignalID        string
	Reason          AbandonReason
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsOpen reports whether the order is still awaiting reconciliation.
func (o *Order) IsOpen() bool {
	return o.Status == StatusSubmitted
}
