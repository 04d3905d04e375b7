package analytics

import (
	"math"
	"sort"
	"time"

	"cryptoSignalBot/internal/domain"
)

// RoundTrip is a filled buy closed by a filled sell.
type RoundTrip struct {
	Pair     domain.Pair
	Buy      *domain.Order
	Sell     *domain.Order
	Expense  float64 // buyPrice*buyAmount + buy fee + buy tax
	Income   float64 // sellPrice*sellAmount
	GrossPNL float64 // Income - Expense
	NetPNL   float64 // GrossPNL - sell fee - sell tax
	Opened   time.Time
	Closed   time.Time
	Duration time.Duration
}

// RoundTrips pairs filled sells with the filled buys they close. Orders
// without a fill, or sells whose buy is missing, are ignored.
func RoundTrips(orders []*domain.Order) []RoundTrip {
	buys := make(map[string]*domain.Order)
	for _, o := range orders {
		if o.Side == domain.Buy && o.Status == domain.StatusFilled && o.Fill != nil {
			buys[o.ClientOrderID] = o
		}
	}

	var trips []RoundTrip
	for _, o := range orders {
		if o.Side != domain.Sell || o.Status != domain.StatusFilled || o.Fill == nil {
			continue
		}
		buy, ok := buys[o.BuyOrderID]
		if !ok {
			continue
		}
		expense := buy.Fill.Notional() + buy.Fill.Fee + buy.Fill.Tax
		income := o.Fill.Notional()
		trips = append(trips, RoundTrip{
			Pair:     o.Pair,
			Buy:      buy,
			Sell:     o,
			Expense:  expense,
			Income:   income,
			GrossPNL: income - expense,
			NetPNL:   income - expense - o.Fill.Fee - o.Fill.Tax,
			Opened:   buy.Fill.Timestamp,
			Closed:   o.Fill.Timestamp,
			Duration: o.Fill.Timestamp.Sub(buy.Fill.Timestamp),
		})
	}

	sort.Slice(trips, func(i, j int) bool {
		return trips[i].Closed.Before(trips[j].Closed)
	})
	return trips
}

// Summary holds realized performance over a set of round trips.
type Summary struct {
	TotalTrades          int
	WinningTrades        int
	LosingTrades         int
	WinRate              float64
	TotalProfit          float64
	TotalExpense         float64
	ReturnOnExpense      float64
	AverageWin           float64
	AverageLoss          float64
	ProfitFactor         float64
	MaxDrawdown          float64 // Largest peak-to-trough fall of cumulative PnL
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageHoldDuration  time.Duration
	ByPair               map[string]float64
	MonthlyReturns       map[string]float64
	EquityCurve          []EquityPoint
}

// EquityPoint represents a point on the cumulative PnL curve
type EquityPoint struct {
	Time     time.Time
	Value    float64
	Drawdown float64
}

// Summarize calculates aggregate metrics from round trips ordered by close time.
// Profit figures use NetPNL.
func Summarize(trips []RoundTrip) *Summary {
	s := &Summary{
		ByPair:         make(map[string]float64),
		MonthlyReturns: make(map[string]float64),
		EquityCurve:    make([]EquityPoint, 0, len(trips)),
	}
	if len(trips) == 0 {
		return s
	}

	var grossWin, grossLoss float64
	var consecutiveWins, consecutiveLosses int
	var cumulative, peak float64
	var totalDuration time.Duration

	for _, t := range trips {
		s.TotalTrades++
		s.TotalProfit += t.NetPNL
		s.TotalExpense += t.Expense
		s.ByPair[t.Pair.String()] += t.NetPNL
		s.MonthlyReturns[t.Closed.Format("2006-01")] += t.NetPNL
		totalDuration += t.Duration

		if t.NetPNL > 0 {
			s.WinningTrades++
			grossWin += t.NetPNL
			consecutiveWins++
			consecutiveLosses = 0
		} else {
			s.LosingTrades++
			grossLoss += t.NetPNL
			consecutiveLosses++
			consecutiveWins = 0
		}
		if consecutiveWins > s.MaxConsecutiveWins {
			s.MaxConsecutiveWins = consecutiveWins
		}
		if consecutiveLosses > s.MaxConsecutiveLosses {
			s.MaxConsecutiveLosses = consecutiveLosses
		}

		cumulative += t.NetPNL
		peak = math.Max(peak, cumulative)
		drawdown := peak - cumulative
		s.MaxDrawdown = math.Max(s.MaxDrawdown, drawdown)
		s.EquityCurve = append(s.EquityCurve, EquityPoint{Time: t.Closed, Value: cumulative, Drawdown: drawdown})
	}

	s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades)
	if s.WinningTrades > 0 {
		s.AverageWin = grossWin / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AverageLoss = grossLoss / float64(s.LosingTrades)
	}
	if grossLoss != 0 {
		s.ProfitFactor = grossWin / -grossLoss
	}
	if s.TotalExpense > 0 {
		s.ReturnOnExpense = s.TotalProfit / s.TotalExpense
	}
	s.AverageHoldDuration = totalDuration / time.Duration(s.TotalTrades)
	return s
}

// MonthlyReturn represents a monthly return value
type MonthlyReturn struct {
	Month  time.Time
	Return float64
}

// GetMonthlyReturns returns the monthly returns as a sorted slice
func (s *Summary) GetMonthlyReturns() []MonthlyReturn {
	returns := make([]MonthlyReturn, 0, len(s.MonthlyReturns))
	for month, profit := range s.MonthlyReturns {
		date, _ := time.Parse("2006-01", month)
		returns = append(returns, MonthlyReturn{Month: date, Return: profit})
	}
	sort.Slice(returns, func(i, j int) bool {
		return returns[i].Month.Before(returns[j].Month)
	})
	return returns
}
