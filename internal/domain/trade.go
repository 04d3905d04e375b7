package domain

import "time"

// Trade is one entry of the exchange's trade history.
// Several trades may share an ExchangeOrderID when an order fills in parts.
type Trade struct {
	ExchangeOrderID string
	Price           float64
	Amount          float64
	Fee             float64 // In denominator currency
	Tax             float64 // In denominator currency
	Timestamp       time.Time
}

// AggregateFill folds all trades of one order into a single fill using an
// amount-weighted average price. Returns nil when no trade matches.
func AggregateFill(exchangeOrderID string, trades []*Trade) *Fill {
	var fill *Fill
	var notional float64
	for _, t := range trades {
		if t == nil || t.ExchangeOrderID != exchangeOrderID {
			continue
		}
		if fill == nil {
			fill = &Fill{ExchangeOrderID: exchangeOrderID}
		}
		notional += t.Price * t.Amount
		fill.Amount += t.Amount
		fill.Fee += t.Fee
		fill.Tax += t.Tax
		if t.Timestamp.After(fill.Timestamp) {
			fill.Timestamp = t.Timestamp
		}
	}
	if fill != nil && fill.Amount > 0 {
		fill.Price = notional / fill.Amount
	}
	return fill
}
