package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"cryptoSignalBot/config"
	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/execution"
	"cryptoSignalBot/internal/ports"
	"cryptoSignalBot/internal/strategy/resample"
)

// Detector evaluates one pair's candles into persisted signals.
type Detector interface {
	Evaluate(ctx context.Context, pair domain.Pair, candles map[string][]*domain.Candle) ([]*domain.Signal, error)
	Timeframes() []resample.Timeframe
}

// Executor acts on a persisted signal.
type Executor interface {
	Execute(ctx context.Context, signal *domain.Signal) (*domain.Order, error)
}

// Reconciler owns the detached order pollers.
type Reconciler interface {
	Resume(ctx context.Context) (int, error)
	Wait()
}

// CycleReport summarizes one evaluation cycle.
type CycleReport struct {
	Pairs   int
	Failed  int
	Signals int
	Orders  int
}

// TradingService drives evaluation cycles on a cron schedule.
type TradingService struct {
	cfg        *config.Config
	logger     ports.Logger
	exchange   ports.ExchangeClient
	settings   ports.ConfigRepository
	detector   Detector
	executor   Executor
	reconciler Reconciler
	metrics    ports.Metrics
	pairs      []domain.Pair

	running atomic.Bool
	now     func() time.Time
}

// NewTradingService creates a new application service instance.
func NewTradingService(
	cfg *config.Config,
	logger ports.Logger,
	exchange ports.ExchangeClient,
	settings ports.ConfigRepository,
	detector Detector,
	executor Executor,
	reconciler Reconciler,
	metrics ports.Metrics,
) (*TradingService, error) {
	if cfg == nil || logger == nil || exchange == nil || settings == nil || detector == nil || executor == nil || reconciler == nil || metrics == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}
	if len(cfg.Numerators) == 0 {
		return nil, fmt.Errorf("at least one numerator is required: %w", ports.ErrConfiguration)
	}
	if cfg.CandleLimit <= 0 {
		return nil, fmt.Errorf("candle limit must be positive: %w", ports.ErrConfiguration)
	}

	pairs := make([]domain.Pair, 0, len(cfg.Numerators))
	for _, n := range cfg.Numerators {
		pairs = append(pairs, domain.NewPair(n, cfg.Denominator))
	}

	return &TradingService{
		cfg:        cfg,
		logger:     logger,
		exchange:   exchange,
		settings:   settings,
		detector:   detector,
		executor:   executor,
		reconciler: reconciler,
		metrics:    metrics,
		pairs:      pairs,
		now:        time.Now,
	}, nil
}

// Pairs returns the pairs evaluated each cycle.
func (s *TradingService) Pairs() []domain.Pair {
	return s.pairs
}

// Start persists the settings, resumes reconciliation and runs cycles on the
// configured cron expression until ctx is canceled or a termination signal arrives.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Trading Service...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	// 1. Exchange reachable
	if err := s.exchange.Ping(ctx); err != nil {
		s.logger.Error(ctx, err, "Exchange is not reachable")
		return fmt.Errorf("failed to reach exchange: %w", err)
	}

	// 2. Publish settings for the web layer
	for key, value := range s.cfg.Settings() {
		if err := s.settings.SetConfig(ctx, key, value); err != nil {
			s.logger.Error(ctx, err, "Failed to persist setting", map[string]interface{}{"key": key})
			return fmt.Errorf("failed to persist setting %q: %w", key, err)
		}
	}

	// 3. Pick up orders left submitted by a previous run
	resumed, err := s.reconciler.Resume(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to resume reconciliation")
		return fmt.Errorf("failed to resume reconciliation: %w", err)
	}

	// 4. Schedule cycles
	scheduler := cron.New(cron.WithLocation(s.cfg.Location))
	if _, err := scheduler.AddFunc(s.cfg.Expression, func() { s.Trigger(ctx) }); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w: %w", s.cfg.Expression, ports.ErrConfiguration, err)
	}
	scheduler.Start()
	s.logger.Info(ctx, "Trading Service started", map[string]interface{}{
		"expression":    s.cfg.Expression,
		"timezone":      s.cfg.Timezone,
		"pairs":         len(s.pairs),
		"resumedOrders": resumed,
		"allowBuy":      s.cfg.AllowBuy,
		"allowSell":     s.cfg.AllowSell,
		"orderAmount":   s.cfg.OrderAmount,
		"crossover":     s.cfg.CrossoverPolicy,
	})

	<-ctx.Done()
	s.logger.Info(ctx, "Context cancelled, initiating shutdown...")

	// Wait for a running cycle, then for pollers to observe cancellation.
	stopped := scheduler.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(30 * time.Second):
		s.logger.Warn(ctx, "Timeout waiting for the running cycle to finish")
	}
	s.reconciler.Wait()

	s.logger.Info(ctx, "Trading Service stopped.")
	return nil
}

// Trigger runs one cycle unless another is still in flight, in which case
// the trigger is dropped. It reports whether a cycle ran.
func (s *TradingService) Trigger(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.CycleSkipped()
		s.logger.Warn(ctx, "Previous cycle still running, skipping trigger")
		return false
	}
	defer s.running.Store(false)

	s.RunCycle(ctx)
	return true
}

// RunCycle evaluates every pair once. A failing pair is logged and the cycle
// moves on to the next one.
func (s *TradingService) RunCycle(ctx context.Context) CycleReport {
	start := s.now()
	report := CycleReport{}

	for _, pair := range s.pairs {
		if ctx.Err() != nil {
			break
		}
		report.Pairs++

		signals, orders, err := s.processPair(ctx, pair)
		report.Signals += signals
		report.Orders += orders
		if err != nil {
			report.Failed++
			s.logger.Error(ctx, err, "Pair evaluation failed", map[string]interface{}{"pair": pair.String()})
		}
	}

	elapsed := s.now().Sub(start)
	s.metrics.CycleCompleted(elapsed)
	s.logger.Info(ctx, "Cycle completed", map[string]interface{}{
		"pairs":    report.Pairs,
		"failed":   report.Failed,
		"signals":  report.Signals,
		"orders":   report.Orders,
		"duration": elapsed.String(),
	})
	return report
}

// processPair runs detection and execution for one pair.
func (s *TradingService) processPair(ctx context.Context, pair domain.Pair) (signals, orders int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing %s: %v", pair, r)
		}
	}()

	candles := make(map[string][]*domain.Candle, len(s.detector.Timeframes()))
	for _, tf := range s.detector.Timeframes() {
		series, err := s.exchange.FetchCandles(ctx, pair, tf.Interval, s.cfg.CandleLimit)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to fetch %s candles for %s: %w", tf.Interval, pair, err)
		}
		if need := tf.RequiredCandles(resample.Window); len(series) < need {
			s.logger.Debug(ctx, "Short candle history, longer periods will be skipped", map[string]interface{}{
				"pair": pair.String(), "interval": tf.Interval, "have": len(series), "need": need,
			})
		}
		candles[tf.Interval] = series
	}

	// Signals returned with an error are already persisted and still executed.
	detected, detectErr := s.detector.Evaluate(ctx, pair, candles)
	signals = len(detected)
	if detectErr != nil {
		detectErr = fmt.Errorf("signal detection failed for %s: %w", pair, detectErr)
	}

	execErr := detectErr
	for _, sig := range detected {
		order, err := s.executor.Execute(ctx, sig)
		switch {
		case err == nil:
			orders++
			s.logger.Info(ctx, "Signal executed", map[string]interface{}{
				"signalID": sig.ID, "pair": pair.String(), "clientOrderID": order.ClientOrderID,
			})
		case errors.Is(err, execution.ErrGated):
			s.logger.Info(ctx, "Signal not executed", map[string]interface{}{
				"signalID": sig.ID, "pair": pair.String(), "direction": sig.Direction, "reason": err.Error(),
			})
		default:
			execErr = errors.Join(execErr, fmt.Errorf("signal %s: %w", sig.ID, err))
		}
	}
	return signals, orders, execErr
}
