package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
	"cryptoSignalBot/internal/strategy/indicators"
	"cryptoSignalBot/internal/strategy/resample"
	"cryptoSignalBot/internal/strategy/ruler"
)

// CrossoverPolicy selects how the previous RSI reading is compared with the threshold.
type CrossoverPolicy string

const (
	// PolicyInclusive: prev <= low && curr > low (mirrored for sells).
	PolicyInclusive CrossoverPolicy = "inclusive"
	// PolicyStrict: prev < low && curr > low (mirrored for sells).
	PolicyStrict CrossoverPolicy = "strict"
)

// Reading is the indicator state of one resampled window.
type Reading struct {
	Last    float64
	RSIPrev float64
	RSICurr float64
	Lower   float64
	Upper   float64
}

// Decide applies the crossover and band-confirmation rules.
// It returns an empty direction when neither rule fires.
func Decide(policy CrossoverPolicy, p domain.ThresholdProfile, r Reading) domain.Direction {
	crossedUp := r.RSIPrev <= p.RSILow
	crossedDown := r.RSIPrev >= p.RSIHigh
	if policy == PolicyStrict {
		crossedUp = r.RSIPrev < p.RSILow
		crossedDown = r.RSIPrev > p.RSIHigh
	}

	switch {
	case crossedUp && r.RSICurr > p.RSILow && r.Lower >= r.Last:
		return domain.DirectionBuy
	case crossedDown && r.RSICurr < p.RSIHigh && r.Upper <= r.Last:
		return domain.DirectionSell
	default:
		return ""
	}
}

// ProfileSelector picks the threshold profile for a pair.
type ProfileSelector interface {
	Select(ctx context.Context, pair domain.Pair, direction domain.Direction) (ruler.Selection, error)
}

// Config holds parameters for the signal detector.
type Config struct {
	Timeframes []resample.Timeframe
	Policy     CrossoverPolicy
}

// Detector turns candle history into persisted signals.
type Detector struct {
	cfg      Config
	selector ProfileSelector
	signals  ports.SignalRepository
	logger   ports.Logger
	metrics  ports.Metrics
	now      func() time.Time
}

// NewDetector creates a new Detector instance.
func NewDetector(cfg Config, selector ProfileSelector, signals ports.SignalRepository, logger ports.Logger, metrics ports.Metrics) (*Detector, error) {
	if selector == nil || signals == nil || logger == nil || metrics == nil {
		return nil, fmt.Errorf("missing required dependencies for Detector")
	}
	if len(cfg.Timeframes) == 0 {
		return nil, fmt.Errorf("at least one timeframe is required: %w", ports.ErrConfiguration)
	}
	for _, tf := range cfg.Timeframes {
		if _, err := resample.IntervalDuration(tf.Interval); err != nil || len(tf.Periods) == 0 {
			return nil, fmt.Errorf("invalid timeframe %q: %w", tf.Interval, ports.ErrConfiguration)
		}
	}
	switch cfg.Policy {
	case PolicyInclusive, PolicyStrict:
	case "":
		cfg.Policy = PolicyInclusive
	default:
		return nil, fmt.Errorf("unknown crossover policy %q: %w", cfg.Policy, ports.ErrConfiguration)
	}
	return &Detector{
		cfg:      cfg,
		selector: selector,
		signals:  signals,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}, nil
}

// Timeframes returns the configured timeframes in evaluation order.
func (d *Detector) Timeframes() []resample.Timeframe {
	return d.cfg.Timeframes
}

// Evaluate checks every timeframe and period of a pair and persists each new
// signal before returning it. candles maps interval to its ascending series.
// Insufficient data for a combination is skipped silently.
func (d *Detector) Evaluate(ctx context.Context, pair domain.Pair, candles map[string][]*domain.Candle) ([]*domain.Signal, error) {
	sel, err := d.selector.Select(ctx, pair, domain.DirectionBuy)
	if err != nil {
		return nil, fmt.Errorf("profile selection failed: %w", err)
	}

	var emitted []*domain.Signal
	for _, tf := range d.cfg.Timeframes {
		series := candles[tf.Interval]
		for _, period := range tf.Periods {
			reading, err := Read(series, tf.Stride(period), sel.Profile)
			if err != nil {
				if errors.Is(err, ports.ErrInsufficientData) {
					continue
				}
				return emitted, err
			}

			direction := Decide(d.cfg.Policy, sel.Profile, reading)
			if direction == "" {
				continue
			}

			signal := &domain.Signal{
				ID:           uuid.NewString(),
				Pair:         pair,
				Timeframe:    tf.Interval,
				Period:       period,
				Last:         reading.Last,
				RSIPrev:      reading.RSIPrev,
				RSICurr:      reading.RSICurr,
				BBLower:      reading.Lower,
				BBUpper:      reading.Upper,
				Direction:    direction,
				Profile:      sel.Profile,
				ProfileIndex: sel.Index,
				RulerVersion: sel.Version,
				EmittedAt:    d.now().UTC(),
			}

			fresh, err := d.isFresh(ctx, signal, tf.BarDuration(period))
			if err != nil {
				return emitted, err
			}
			if !fresh {
				d.logger.Debug(ctx, "Crossover already recorded, skipping", map[string]interface{}{
					"pair": pair.String(), "timeframe": tf.Interval, "period": period, "direction": direction,
				})
				continue
			}

			if err := d.signals.AppendSignal(ctx, signal); err != nil {
				return emitted, fmt.Errorf("failed to persist %s signal for %s: %w", direction, pair, err)
			}
			d.metrics.SignalEmitted(pair, direction, tf.Interval)
			d.logger.Info(ctx, "Signal emitted", map[string]interface{}{
				"signalID":  signal.ID,
				"pair":      pair.String(),
				"timeframe": tf.Interval,
				"period":    period,
				"direction": direction,
				"last":      reading.Last,
				"rsiPrev":   reading.RSIPrev,
				"rsiCurr":   reading.RSICurr,
				"bbLower":   reading.Lower,
				"bbUpper":   reading.Upper,
				"profile":   sel.Index,
			})
			emitted = append(emitted, signal)
		}
	}
	return emitted, nil
}

// Read resamples an ascending candle series with the given stride and computes
// the indicator state at its newest candle.
func Read(series []*domain.Candle, stride int, profile domain.ThresholdProfile) (Reading, error) {
	closes, err := resample.Closes(series, stride, resample.Window)
	if err != nil {
		return Reading{}, err
	}
	last := closes[len(closes)-1]
	if last <= 0 {
		return Reading{}, fmt.Errorf("no usable closing price: %w", ports.ErrInsufficientData)
	}

	prev, curr, err := indicators.RSIPair(closes[len(closes)-indicators.RSIInputLength:], indicators.RSIPeriod)
	if err != nil {
		return Reading{}, err
	}
	bands, err := indicators.Bollinger(closes, profile.StdDev)
	if err != nil {
		return Reading{}, err
	}

	return Reading{Last: last, RSIPrev: prev, RSICurr: curr, Lower: bands.Lower, Upper: bands.Upper}, nil
}

// isFresh reports whether no signal of the same combination was recorded
// within one resampled bar, so a crossover fires once.
func (d *Detector) isFresh(ctx context.Context, s *domain.Signal, bar time.Duration) (bool, error) {
	existing, err := d.signals.QuerySignals(ctx, ports.SignalFilter{
		Pair:      &s.Pair,
		Direction: s.Direction,
		Timeframe: s.Timeframe,
		Period:    s.Period,
		Since:     s.EmittedAt.Add(-bar),
	}, ports.SortNewestFirst, 1)
	if err != nil {
		return false, fmt.Errorf("failed to check recent signals for %s: %w", s.Pair, err)
	}
	return len(existing) == 0, nil
}
