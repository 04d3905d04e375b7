package domain

import (
	"fmt"
	"strings"
)

// Pair is a numerator/denominator trading pair, e.g. BTC/USDT.
type Pair struct {
	Numerator   string
	Denominator string
}

// NewPair builds a pair with upper-cased legs.
func NewPair(numerator, denominator string) Pair {
	return Pair{
		Numerator:   strings.ToUpper(strings.TrimSpace(numerator)),
		Denominator: strings.ToUpper(strings.TrimSpace(denominator)),
	}
}

// ParsePair parses the "BTC/USDT" form.
func ParsePair(s string) (Pair, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return Pair{}, fmt.Errorf("invalid pair %q, expected NUMERATOR/DENOMINATOR", s)
	}
	return NewPair(parts[0], parts[1]), nil
}

// Symbol returns the exchange symbol (e.g., "BTCUSDT").
func (p Pair) Symbol() string {
	return p.Numerator + p.Denominator
}

// String returns the "BTC/USDT" form used for storage and logs.
func (p Pair) String() string {
	return p.Numerator + "/" + p.Denominator
}
