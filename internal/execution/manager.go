// Package execution turns signals into exchange orders and reconciles their fills.
package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

// Exchange is the part of the exchange the manager trades through.
type Exchange interface {
	FetchBalance(ctx context.Context) (map[string]float64, error)
	SubmitMarketOrder(ctx context.Context, pair domain.Pair, side domain.OrderSide, amount float64, clientOrderID string) (string, error)
	LookupOrder(ctx context.Context, pair domain.Pair, clientOrderID string) (string, error)
}

// ErrSubmitUnconfirmed marks an order that may be live on the exchange but
// whose acceptance could not be confirmed. It stays submitted without an
// exchange id until an operator resolves it.
var ErrSubmitUnconfirmed = errors.New("order submission unconfirmed")

// Tracker hands accepted orders to reconciliation.
type Tracker interface {
	Track(ctx context.Context, order *domain.Order) <-chan Outcome
}

// Config holds the submission retry policy.
type Config struct {
	SubmitAttempts int
	SubmitBackoff  time.Duration
}

// Manager submits market orders for signals and guards the per-pair invariants.
type Manager struct {
	config   Config
	exchange Exchange
	orders   ports.OrderRepository
	gate     *Gate
	tracker  Tracker
	notifier ports.Notifier
	metrics  ports.Metrics
	logger   ports.Logger

	mu       sync.Mutex
	inflight map[string]struct{}

	newID func() string
	sleep func(ctx context.Context, d time.Duration) error
}

// NewManager creates a new Manager instance.
func NewManager(cfg Config, exchange Exchange, orders ports.OrderRepository, gate *Gate, tracker Tracker, notifier ports.Notifier, metrics ports.Metrics, logger ports.Logger) (*Manager, error) {
	if exchange == nil || orders == nil || gate == nil || tracker == nil || notifier == nil || metrics == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Manager")
	}
	if cfg.SubmitAttempts <= 0 || cfg.SubmitBackoff < 0 {
		return nil, fmt.Errorf("submit attempts must be positive and backoff non-negative: %w", ports.ErrConfiguration)
	}
	return &Manager{
		config:   cfg,
		exchange: exchange,
		orders:   orders,
		gate:     gate,
		tracker:  tracker,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		inflight: make(map[string]struct{}),
		newID:    uuid.NewString,
		sleep:    sleepContext,
	}, nil
}

// Execute routes a signal to Buy or Sell.
func (m *Manager) Execute(ctx context.Context, signal *domain.Signal) (*domain.Order, error) {
	if signal.Direction == domain.DirectionSell {
		return m.Sell(ctx, signal)
	}
	return m.Buy(ctx, signal)
}

// Buy spends the configured order amount of the denominator on the numerator.
// At most one buy per pair is ever in submitted state; a second concurrent
// call for the same pair returns ErrGated without touching the exchange.
func (m *Manager) Buy(ctx context.Context, signal *domain.Signal) (*domain.Order, error) {
	op := "Buy"
	pair := signal.Pair

	if !m.gate.BuyEnabled(ctx) {
		return nil, fmt.Errorf("%w: buying is disabled", ErrGated)
	}
	release, ok := m.reserve("buy:" + pair.String())
	if !ok {
		return nil, fmt.Errorf("%w: buy for %s already in progress", ErrGated, pair)
	}
	defer release()

	open, err := m.orders.QueryOrders(ctx, ports.OrderFilter{Pair: &pair, Side: domain.Buy, Statuses: []domain.OrderStatus{domain.StatusSubmitted}})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to check open buys for %s: %w", op, pair, err)
	}
	if len(open) > 0 {
		return nil, fmt.Errorf("%w: %s already has submitted buy %s", ErrGated, pair, open[0].ClientOrderID)
	}

	if signal.Last <= 0 {
		return nil, fmt.Errorf("%s: signal %s has no usable price: %w", op, signal.ID, ports.ErrValidation)
	}
	balances, err := m.exchange.FetchBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to fetch balance: %w", op, err)
	}
	amount := m.gate.OrderAmount(ctx)
	if err := m.gate.CheckBuyFunds(pair, amount, balances); err != nil {
		return nil, err
	}

	order := &domain.Order{
		ClientOrderID:   m.newID(),
		Pair:            pair,
		Side:            domain.Buy,
		RequestedAmount: amount / signal.Last,
		Status:          domain.StatusSubmitted,
		SignalID:        signal.ID,
	}
	return m.place(ctx, order)
}

// Sell closes the oldest filled buy of the pair that has no live sell.
func (m *Manager) Sell(ctx context.Context, signal *domain.Signal) (*domain.Order, error) {
	op := "Sell"
	pair := signal.Pair

	if !m.gate.SellEnabled(ctx) {
		return nil, fmt.Errorf("%w: selling is disabled", ErrGated)
	}
	release, ok := m.reserve("sell:" + pair.String())
	if !ok {
		return nil, fmt.Errorf("%w: sell for %s already in progress", ErrGated, pair)
	}
	defer release()

	pending, err := m.orders.QueryOrders(ctx, ports.OrderFilter{Pair: &pair, Side: domain.Sell, Statuses: []domain.OrderStatus{domain.StatusSubmitted}})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to check open sells for %s: %w", op, pair, err)
	}
	if len(pending) > 0 {
		return nil, fmt.Errorf("%w: %s already has submitted sell %s", ErrGated, pair, pending[0].ClientOrderID)
	}

	buy, err := m.openBuy(ctx, pair)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if buy == nil {
		return nil, fmt.Errorf("%w: %s has no filled buy to close", ErrGated, pair)
	}

	balances, err := m.exchange.FetchBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to fetch balance: %w", op, err)
	}
	amount, err := m.gate.SellAmount(pair, buy.Fill.Amount, balances)
	if err != nil {
		return nil, err
	}

	order := &domain.Order{
		ClientOrderID:   m.newID(),
		Pair:            pair,
		Side:            domain.Sell,
		RequestedAmount: amount,
		Status:          domain.StatusSubmitted,
		BuyOrderID:      buy.ClientOrderID,
		SignalID:        signal.ID,
	}
	return m.place(ctx, order)
}

// openBuy returns the oldest filled buy without a submitted or filled sell.
func (m *Manager) openBuy(ctx context.Context, pair domain.Pair) (*domain.Order, error) {
	buys, err := m.orders.QueryOrders(ctx, ports.OrderFilter{Pair: &pair, Side: domain.Buy, Statuses: []domain.OrderStatus{domain.StatusFilled}})
	if err != nil {
		return nil, fmt.Errorf("failed to load filled buys for %s: %w", pair, err)
	}
	for _, b := range buys {
		if b.Fill == nil {
			continue
		}
		sells, err := m.orders.QueryOrders(ctx, ports.OrderFilter{
			Side:       domain.Sell,
			BuyOrderID: b.ClientOrderID,
			Statuses:   []domain.OrderStatus{domain.StatusSubmitted, domain.StatusFilled},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load sells for buy %s: %w", b.ClientOrderID, err)
		}
		if len(sells) == 0 {
			return b, nil
		}
	}
	return nil, nil
}

// place reserves the order row, submits it and hands it to the tracker.
func (m *Manager) place(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	fields := orderFields(order)
	fields["amount"] = order.RequestedAmount
	fields["signalID"] = order.SignalID

	if err := m.orders.AppendOrder(ctx, order); err != nil {
		if errors.Is(err, ports.ErrDuplicateEntry) {
			return nil, fmt.Errorf("%w: %s %s already reserved: %w", ErrGated, order.Side, order.Pair, err)
		}
		return nil, fmt.Errorf("failed to reserve %s order for %s: %w", order.Side, order.Pair, err)
	}

	exchangeID, err := m.submit(ctx, order)
	if errors.Is(err, ErrSubmitUnconfirmed) {
		m.logger.Error(ctx, err, "Order left submitted, exchange state unknown", orderFields(order))
		m.alert(ctx, order, fmt.Sprintf("%s order %s for %s may have been placed but could not be confirmed; left submitted for manual review: %v",
			order.Side, order.ClientOrderID, order.Pair, err))
		return order, err
	}
	if err != nil {
		return order, m.abandon(ctx, order, err)
	}

	order.ExchangeOrderID = exchangeID
	if err := m.orders.UpdateOrder(context.WithoutCancel(ctx), order.ClientOrderID, ports.OrderPatch{ExchangeOrderID: &exchangeID}); err != nil {
		// The exchange accepted the order; leave it submitted for manual review.
		m.logger.Error(ctx, err, "Failed to store exchange order id", orderFields(order))
		m.alert(ctx, order, fmt.Sprintf("%s order %s for %s accepted as %s but could not be recorded: %v",
			order.Side, order.ClientOrderID, order.Pair, exchangeID, err))
		return order, err
	}
	m.metrics.OrderSubmitted(order.Pair, order.Side)
	m.logger.Info(ctx, "Order submitted", orderFields(order))

	tracked := *order
	m.tracker.Track(ctx, &tracked)
	return order, nil
}

// submit retries transient failures with a fixed backoff. Validation
// failures are returned immediately. Once an attempt has failed in a way that
// leaves the exchange state unknown, a later failure is checked against the
// exchange before the order is given up.
func (m *Manager) submit(ctx context.Context, order *domain.Order) (string, error) {
	var lastErr error
	ambiguous := false
	for attempt := 1; attempt <= m.config.SubmitAttempts; attempt++ {
		id, err := m.exchange.SubmitMarketOrder(ctx, order.Pair, order.Side, order.RequestedAmount, order.ClientOrderID)
		if err == nil {
			return id, nil
		}
		lastErr = err
		if !ports.IsTransient(err) {
			if ambiguous {
				return m.confirm(ctx, order, err)
			}
			return "", err
		}
		if !errors.Is(err, ports.ErrRateLimited) {
			ambiguous = true
		}

		m.logger.Warn(ctx, "Order submission failed, retrying", withFields(orderFields(order), map[string]interface{}{
			"attempt": attempt, "maxAttempts": m.config.SubmitAttempts, "error": err.Error(),
		}))
		if attempt < m.config.SubmitAttempts {
			if err := m.sleep(ctx, m.config.SubmitBackoff); err != nil {
				cerr := fmt.Errorf("%w: %w", ports.ErrContextCanceled, err)
				if ambiguous {
					return m.confirm(ctx, order, cerr)
				}
				return "", cerr
			}
		}
	}
	lastErr = fmt.Errorf("submission failed after %d attempts: %w", m.config.SubmitAttempts, lastErr)
	if ambiguous {
		return m.confirm(ctx, order, lastErr)
	}
	return "", lastErr
}

// confirm asks the exchange whether an earlier attempt was accepted after
// all. A missing order returns cause so the order is abandoned; a failed
// lookup returns ErrSubmitUnconfirmed.
func (m *Manager) confirm(ctx context.Context, order *domain.Order, cause error) (string, error) {
	id, err := m.exchange.LookupOrder(context.WithoutCancel(ctx), order.Pair, order.ClientOrderID)
	switch {
	case err == nil:
		m.logger.Warn(ctx, "Order found on exchange after failed submission", withFields(orderFields(order), map[string]interface{}{
			"exchangeOrderID": id, "error": cause.Error(),
		}))
		return id, nil
	case errors.Is(err, ports.ErrOrderNotFound):
		return "", cause
	default:
		return "", fmt.Errorf("%w: %w (lookup: %v)", ErrSubmitUnconfirmed, cause, err)
	}
}

// abandon records the terminal failure of a submission and returns cause.
func (m *Manager) abandon(ctx context.Context, order *domain.Order, cause error) error {
	reason := domain.ReasonRetryExhausted
	if ports.IsValidation(cause) {
		reason = domain.ReasonValidation
	}
	status := domain.StatusAbandoned
	if err := m.orders.UpdateOrder(context.WithoutCancel(ctx), order.ClientOrderID, ports.OrderPatch{Status: &status, Reason: &reason}); err != nil {
		m.logger.Error(ctx, err, "Failed to abandon order", orderFields(order))
		return fmt.Errorf("%w (abandon failed: %v)", cause, err)
	}
	order.Status = status
	order.Reason = reason

	m.metrics.OrderAbandoned(order.Pair, order.Side, reason)
	m.logger.Error(ctx, cause, "Order abandoned", withFields(orderFields(order), map[string]interface{}{"reason": reason}))
	m.alert(ctx, order, fmt.Sprintf("%s order %s for %s abandoned (%s): %v", order.Side, order.ClientOrderID, order.Pair, reason, cause))
	return cause
}

func (m *Manager) alert(ctx context.Context, order *domain.Order, msg string) {
	if err := m.notifier.Notify(context.WithoutCancel(ctx), msg); err != nil {
		m.logger.Warn(ctx, "Operator notification failed", withFields(orderFields(order), map[string]interface{}{"error": err.Error()}))
	}
}

// reserve claims key for the caller; the returned func releases it.
func (m *Manager) reserve(key string) (func(), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[key]; busy {
		return nil, false
	}
	m.inflight[key] = struct{}{}
	return func() {
		m.mu.Lock()
		delete(m.inflight, key)
		m.mu.Unlock()
	}, true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
