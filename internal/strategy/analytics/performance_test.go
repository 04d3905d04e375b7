package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoSignalBot/internal/domain"
)

var day0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func filled(id string, pair domain.Pair, side domain.OrderSide, price, amount, fee, tax float64, at time.Time, buyID string) *domain.Order {
	return &domain.Order{
		ClientOrderID: id,
		Pair:          pair,
		Side:          side,
		Status:        domain.StatusFilled,
		BuyOrderID:    buyID,
		Fill:          &domain.Fill{Price: price, Amount: amount, Fee: fee, Tax: tax, Timestamp: at},
	}
}

func testOrders() []*domain.Order {
	btc := domain.NewPair("BTC", "USDT")
	eth := domain.NewPair("ETH", "USDT")
	return []*domain.Order{
		filled("b1", btc, domain.Buy, 100, 1, 0.1, 0.2, day0, ""),
		filled("b2", eth, domain.Buy, 50, 2, 0, 0, day0.Add(time.Hour), ""),
		filled("s2", eth, domain.Sell, 45, 2, 0, 0, day0.AddDate(0, 1, 0), "b2"),
		filled("s1", btc, domain.Sell, 110, 1, 0.11, 0, day0.AddDate(0, 0, 1), "b1"),
		filled("orphan", btc, domain.Sell, 120, 1, 0, 0, day0, "missing"),
		{ClientOrderID: "s3", Pair: btc, Side: domain.Sell, Status: domain.StatusAbandoned, BuyOrderID: "b1"},
		{ClientOrderID: "b3", Pair: btc, Side: domain.Buy, Status: domain.StatusSubmitted},
	}
}

func TestRoundTrips(t *testing.T) {
	trips := RoundTrips(testOrders())
	require.Len(t, trips, 2)

	first := trips[0]
	assert.Equal(t, "b1", first.Buy.ClientOrderID, "ordered by close time")
	assert.InDelta(t, 100.3, first.Expense, 1e-9)
	assert.InDelta(t, 110.0, first.Income, 1e-9)
	assert.InDelta(t, 9.7, first.GrossPNL, 1e-9, "income - expense")
	assert.InDelta(t, 9.59, first.NetPNL, 1e-9, "after the sell fee")
	assert.Equal(t, 24*time.Hour, first.Duration)

	second := trips[1]
	assert.Equal(t, "s2", second.Sell.ClientOrderID)
	assert.InDelta(t, -10.0, second.GrossPNL, 1e-9)
	assert.InDelta(t, -10.0, second.NetPNL, 1e-9)
}

func TestSummarize(t *testing.T) {
	s := Summarize(RoundTrips(testOrders()))

	assert.Equal(t, 2, s.TotalTrades)
	assert.Equal(t, 1, s.WinningTrades)
	assert.Equal(t, 1, s.LosingTrades)
	assert.Equal(t, 0.5, s.WinRate)
	assert.InDelta(t, -0.41, s.TotalProfit, 1e-9)
	assert.InDelta(t, 200.3, s.TotalExpense, 1e-9)
	assert.InDelta(t, 0.959, s.ProfitFactor, 1e-9)
	assert.InDelta(t, 10.0, s.MaxDrawdown, 1e-9)
	assert.Equal(t, 1, s.MaxConsecutiveWins)
	assert.Equal(t, 1, s.MaxConsecutiveLosses)
	assert.InDelta(t, 9.59, s.ByPair["BTC/USDT"], 1e-9)
	assert.InDelta(t, -10.0, s.ByPair["ETH/USDT"], 1e-9)
	require.Len(t, s.EquityCurve, 2)
	assert.InDelta(t, -0.41, s.EquityCurve[1].Value, 1e-9)

	months := s.GetMonthlyReturns()
	require.Len(t, months, 2)
	assert.Equal(t, time.January, months[0].Month.Month())
	assert.InDelta(t, 9.59, months[0].Return, 1e-9)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.TotalTrades)
	assert.Zero(t, s.WinRate)
	assert.Empty(t, s.EquityCurve)
}
