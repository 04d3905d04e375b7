package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

// Outcome is the final state of one tracked order.
type Outcome struct {
	Order  *domain.Order
	Status domain.OrderStatus
	Err    error
}

// PollerConfig bounds the reconciliation loop.
type PollerConfig struct {
	Interval    time.Duration
	MaxAttempts int // Successful polls without a matching trade before giving up
	MaxFailures int // Consecutive fetch failures before abandoning; these do not count as attempts
}

// Poller reconciles submitted orders against the exchange trade history.
type Poller struct {
	config   PollerConfig
	trades   ports.TradeHistory
	orders   ports.OrderRepository
	notifier ports.Notifier
	metrics  ports.Metrics
	logger   ports.Logger
	wg       sync.WaitGroup
}

// NewPoller creates a new Poller instance.
func NewPoller(cfg PollerConfig, trades ports.TradeHistory, orders ports.OrderRepository, notifier ports.Notifier, metrics ports.Metrics, logger ports.Logger) (*Poller, error) {
	if trades == nil || orders == nil || notifier == nil || metrics == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Poller")
	}
	if cfg.Interval <= 0 || cfg.MaxAttempts <= 0 || cfg.MaxFailures <= 0 {
		return nil, fmt.Errorf("poll interval, attempts and failures must be positive: %w", ports.ErrConfiguration)
	}
	return &Poller{
		config:   cfg,
		trades:   trades,
		orders:   orders,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// Track polls for the order's fill in its own goroutine. The returned channel
// receives exactly one Outcome and is then closed.
func (p *Poller) Track(ctx context.Context, order *domain.Order) <-chan Outcome {
	out := make(chan Outcome, 1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(out)
		out <- p.poll(ctx, order)
	}()
	return out
}

// Resume re-tracks submitted orders left over from a previous run.
// Reserved orders that never received an exchange id are reported, not tracked.
func (p *Poller) Resume(ctx context.Context) (int, error) {
	open, err := p.orders.QueryOrders(ctx, ports.OrderFilter{Statuses: []domain.OrderStatus{domain.StatusSubmitted}})
	if err != nil {
		return 0, fmt.Errorf("failed to load submitted orders: %w", err)
	}

	resumed := 0
	for _, o := range open {
		if o.ExchangeOrderID == "" {
			p.alert(ctx, o, fmt.Sprintf("%s order %s for %s has no exchange id and needs manual review", o.Side, o.ClientOrderID, o.Pair))
			continue
		}
		p.Track(ctx, o)
		resumed++
	}
	if resumed > 0 {
		p.logger.Info(ctx, "Resumed reconciliation", map[string]interface{}{"orders": resumed})
	}
	return resumed, nil
}

// Wait blocks until every tracked order has reached an outcome.
func (p *Poller) Wait() {
	p.wg.Wait()
}

func (p *Poller) poll(ctx context.Context, order *domain.Order) Outcome {
	fields := orderFields(order)
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	failures, attempt := 0, 0
	for attempt < p.config.MaxAttempts {
		select {
		case <-ctx.Done():
			p.logger.Warn(ctx, "Reconciliation interrupted, order left submitted", fields)
			return Outcome{Order: order, Status: domain.StatusSubmitted, Err: fmt.Errorf("%w: %w", ports.ErrContextCanceled, ctx.Err())}
		case <-ticker.C:
		}

		trades, err := p.trades.FetchRecentTrades(ctx, order.Pair)
		if err != nil {
			failures++
			p.metrics.PollFailed(order.Pair)
			p.logger.Warn(ctx, "Trade history fetch failed", withFields(fields, map[string]interface{}{
				"attempts": attempt, "consecutiveFailures": failures, "error": err.Error(),
			}))
			if failures >= p.config.MaxFailures {
				return p.giveUp(ctx, order, err)
			}
			continue
		}
		failures = 0
		attempt++

		fill := domain.AggregateFill(order.ExchangeOrderID, trades)
		if fill == nil {
			continue
		}

		status := domain.StatusFilled
		if err := p.orders.UpdateOrder(ctx, order.ClientOrderID, ports.OrderPatch{Status: &status, Fill: fill}); err != nil {
			p.logger.Error(ctx, err, "Failed to record fill", fields)
			return Outcome{Order: order, Status: domain.StatusSubmitted, Err: err}
		}
		order.Status = status
		order.Fill = fill
		p.metrics.OrderFilled(order.Pair, order.Side)
		p.logger.Info(ctx, "Order filled", withFields(fields, map[string]interface{}{
			"price": fill.Price, "amount": fill.Amount, "fee": fill.Fee, "tax": fill.Tax, "attempts": attempt,
		}))
		return Outcome{Order: order, Status: status}
	}

	err := fmt.Errorf("no trade for order %s after %d polls: %w", order.ExchangeOrderID, p.config.MaxAttempts, ports.ErrReconciliationTimeout)
	p.logger.Error(ctx, err, "Reconciliation exhausted, order left submitted", fields)
	p.alert(ctx, order, fmt.Sprintf("%s order %s (exchange %s) for %s was not found in trade history after %d polls; left submitted",
		order.Side, order.ClientOrderID, order.ExchangeOrderID, order.Pair, p.config.MaxAttempts))
	return Outcome{Order: order, Status: domain.StatusSubmitted, Err: err}
}

// giveUp abandons an order whose trade history could not be read.
func (p *Poller) giveUp(ctx context.Context, order *domain.Order, cause error) Outcome {
	err := fmt.Errorf("%d consecutive trade history failures: %w: %w", p.config.MaxFailures, ports.ErrReconciliationTimeout, cause)
	status := domain.StatusAbandoned
	reason := domain.ReasonReconciliationTimeout
	if uerr := p.orders.UpdateOrder(context.WithoutCancel(ctx), order.ClientOrderID, ports.OrderPatch{Status: &status, Reason: &reason}); uerr != nil {
		p.logger.Error(ctx, uerr, "Failed to abandon order", orderFields(order))
		return Outcome{Order: order, Status: domain.StatusSubmitted, Err: err}
	}
	order.Status = status
	order.Reason = reason
	p.metrics.OrderAbandoned(order.Pair, order.Side, reason)
	p.logger.Error(ctx, err, "Order abandoned", orderFields(order))
	p.alert(ctx, order, fmt.Sprintf("%s order %s (exchange %s) for %s abandoned: %v",
		order.Side, order.ClientOrderID, order.ExchangeOrderID, order.Pair, err))
	return Outcome{Order: order, Status: status, Err: err}
}

func (p *Poller) alert(ctx context.Context, order *domain.Order, msg string) {
	if err := p.notifier.Notify(context.WithoutCancel(ctx), msg); err != nil {
		p.logger.Warn(ctx, "Operator notification failed", withFields(orderFields(order), map[string]interface{}{"error": err.Error()}))
	}
}

func orderFields(o *domain.Order) map[string]interface{} {
	return map[string]interface{}{
		"pair":            o.Pair.String(),
		"side":            o.Side,
		"clientOrderID":   o.ClientOrderID,
		"exchangeOrderID": o.ExchangeOrderID,
	}
}

func withFields(base, extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
