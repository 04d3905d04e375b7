package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Direction is the direction of a detected signal.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// Side maps a signal direction to the order side that executes it.
func (d Direction) Side() OrderSide {
	if d == DirectionSell {
		return Sell
	}
	return Buy
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	StatusSubmitted OrderStatus = "submitted"
	StatusFilled    OrderStatus = "filled"
	StatusAbandoned OrderStatus = "abandoned"
)

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusAbandoned
}

// AbandonReason indicates why an order was abandoned.
type AbandonReason string

const (
	ReasonNone                  AbandonReason = ""
	ReasonRetryExhausted        AbandonReason = "RETRY_EXHAUSTED"
	ReasonValidation            AbandonReason = "VALIDATION"
	ReasonReconciliationTimeout AbandonReason = "RECONCILIATION_TIMEOUT"
)
