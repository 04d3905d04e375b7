package execution

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

type mockLogger struct {
	mu        sync.Mutex
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

type mockNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (m *mockNotifier) Notify(ctx context.Context, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	return nil
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.msgs)
}

type mockMetrics struct {
	mu        sync.Mutex
	submitted int
	filled    int
	abandoned map[domain.AbandonReason]int
	pollFails int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{abandoned: make(map[domain.AbandonReason]int)}
}

func (m *mockMetrics) SignalEmitted(domain.Pair, domain.Direction, string) {}

func (m *mockMetrics) OrderSubmitted(domain.Pair, domain.OrderSide) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted++
}

func (m *mockMetrics) OrderFilled(domain.Pair, domain.OrderSide) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filled++
}

func (m *mockMetrics) OrderAbandoned(_ domain.Pair, _ domain.OrderSide, reason domain.AbandonReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.abandoned[reason]++
}

func (m *mockMetrics) PollFailed(domain.Pair) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollFails++
}

func (m *mockMetrics) CycleCompleted(time.Duration) {}
func (m *mockMetrics) CycleSkipped()                {}

// mockSettings is an in-memory ports.ConfigRepository.
type mockSettings struct {
	values map[string]string
	err    error
}

func (m *mockSettings) GetConfig(ctx context.Context, key string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.values[key]
	if !ok {
		return "", ports.ErrNotFound
	}
	return v, nil
}

func (m *mockSettings) SetConfig(ctx context.Context, key, value string) error {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	return nil
}

// memOrders is an in-memory ports.OrderRepository with the same uniqueness
// rules as the SQLite schema.
type memOrders struct {
	mu     sync.Mutex
	orders []*domain.Order
}

func (m *memOrders) AppendOrder(ctx context.Context, o *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.orders {
		if e.ClientOrderID == o.ClientOrderID {
			return ports.ErrDuplicateEntry
		}
		if o.Side == domain.Buy && e.Side == domain.Buy && e.Pair == o.Pair &&
			e.Status == domain.StatusSubmitted && o.Status == domain.StatusSubmitted {
			return ports.ErrDuplicateEntry
		}
	}
	o.ID = int64(len(m.orders) + 1)
	cp := *o
	m.orders = append(m.orders, &cp)
	return nil
}

func (m *memOrders) UpdateOrder(ctx context.Context, id string, p ports.OrderPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.orders {
		if e.ClientOrderID != id {
			continue
		}
		if p.Status != nil && *p.Status != e.Status && e.Status.IsTerminal() {
			return ports.ErrInvalidRequest
		}
		if p.Status != nil {
			e.Status = *p.Status
		}
		if p.ExchangeOrderID != nil {
			e.ExchangeOrderID = *p.ExchangeOrderID
		}
		if p.Fill != nil {
			f := *p.Fill
			e.Fill = &f
		}
		if p.Reason != nil {
			e.Reason = *p.Reason
		}
		return nil
	}
	return ports.ErrNotFound
}

func (m *memOrders) QueryOrders(ctx context.Context, f ports.OrderFilter) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, e := range m.orders {
		if f.Pair != nil && e.Pair != *f.Pair {
			continue
		}
		if f.Side != "" && e.Side != f.Side {
			continue
		}
		if f.ClientOrderID != "" && e.ClientOrderID != f.ClientOrderID {
			continue
		}
		if f.BuyOrderID != "" && e.BuyOrderID != f.BuyOrderID {
			continue
		}
		if len(f.Statuses) > 0 && !hasStatus(f.Statuses, e.Status) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memOrders) get(id string) *domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.orders {
		if e.ClientOrderID == id {
			cp := *e
			return &cp
		}
	}
	return nil
}

func hasStatus(list []domain.OrderStatus, s domain.OrderStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type submitCall struct {
	pair          domain.Pair
	side          domain.OrderSide
	amount        float64
	clientOrderID string
}

// mockExchange scripts balances, submissions and trade history.
type mockExchange struct {
	mu          sync.Mutex
	balances    map[string]float64
	balanceErr  error
	submitErrs  []error // consumed one per call; nil entries succeed
	submitDelay time.Duration
	submits     []submitCall
	fillPrice   float64 // when set, accepted orders appear in trade history
	trades      []*domain.Trade
	tradesFn    func(call int) ([]*domain.Trade, error)
	tradeCalls  int

	acceptOnTimeout bool              // transient submit errors still place the order
	placed          map[string]string // clientOrderID -> exchange id
	lookupErr       error
	lookups         int
}

func (m *mockExchange) FetchBalance(ctx context.Context) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]float64, len(m.balances))
	for k, v := range m.balances {
		out[k] = v
	}
	return out, m.balanceErr
}

func (m *mockExchange) SubmitMarketOrder(ctx context.Context, pair domain.Pair, side domain.OrderSide, amount float64, clientOrderID string) (string, error) {
	if m.submitDelay > 0 {
		time.Sleep(m.submitDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submits = append(m.submits, submitCall{pair: pair, side: side, amount: amount, clientOrderID: clientOrderID})
	if len(m.submitErrs) > 0 {
		err := m.submitErrs[0]
		m.submitErrs = m.submitErrs[1:]
		if err != nil {
			if m.acceptOnTimeout && ports.IsTransient(err) {
				m.place(clientOrderID, strconv.Itoa(1000+len(m.submits)))
			}
			return "", err
		}
	}
	id := strconv.Itoa(1000 + len(m.submits))
	m.place(clientOrderID, id)
	if m.fillPrice > 0 {
		m.trades = append(m.trades, &domain.Trade{
			ExchangeOrderID: id, Price: m.fillPrice, Amount: amount, Fee: m.fillPrice * amount * 0.001,
			Timestamp: time.Now().UTC(),
		})
	}
	return id, nil
}

func (m *mockExchange) place(clientOrderID, id string) {
	if m.placed == nil {
		m.placed = make(map[string]string)
	}
	if _, ok := m.placed[clientOrderID]; !ok {
		m.placed[clientOrderID] = id
	}
}

func (m *mockExchange) LookupOrder(ctx context.Context, pair domain.Pair, clientOrderID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.lookupErr != nil {
		return "", m.lookupErr
	}
	if id, ok := m.placed[clientOrderID]; ok {
		return id, nil
	}
	return "", fmt.Errorf("LookupOrder failed: %w", ports.ErrOrderNotFound)
}

func (m *mockExchange) FetchRecentTrades(ctx context.Context, pair domain.Pair) ([]*domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tradeCalls++
	if m.tradesFn != nil {
		return m.tradesFn(m.tradeCalls)
	}
	return append([]*domain.Trade(nil), m.trades...), nil
}

func (m *mockExchange) submitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.submits)
}

func (m *mockExchange) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tradeCalls
}

// mockTracker records handed-over orders without polling.
type mockTracker struct {
	mu      sync.Mutex
	tracked []*domain.Order
}

func (m *mockTracker) Track(ctx context.Context, order *domain.Order) <-chan Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracked = append(m.tracked, order)
	ch := make(chan Outcome, 1)
	ch <- Outcome{Order: order, Status: domain.StatusSubmitted}
	close(ch)
	return ch
}

func buySignal(pair domain.Pair, last float64) *domain.Signal {
	return &domain.Signal{ID: fmt.Sprintf("sig-%s-%v", pair.Numerator, last), Pair: pair, Direction: domain.DirectionBuy, Last: last}
}

func sellSignal(pair domain.Pair, last float64) *domain.Signal {
	return &domain.Signal{ID: fmt.Sprintf("sig-%s-%v-sell", pair.Numerator, last), Pair: pair, Direction: domain.DirectionSell, Last: last}
}
