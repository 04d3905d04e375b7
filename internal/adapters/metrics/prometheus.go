// Package metrics exposes operational counters in the Prometheus text format.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cryptoSignalBot/internal/domain"
)

// Recorder implements ports.Metrics on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	signals       *prometheus.CounterVec
	submitted     *prometheus.CounterVec
	filled        *prometheus.CounterVec
	abandoned     *prometheus.CounterVec
	pollFailures  *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	cyclesSkipped prometheus.Counter
}

// NewRecorder creates a Recorder with all collectors registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "signalbot_signals_total", Help: "Signals emitted"},
			[]string{"pair", "direction", "timeframe"},
		),
		submitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "signalbot_orders_submitted_total", Help: "Orders accepted by the exchange"},
			[]string{"pair", "side"},
		),
		filled: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "signalbot_orders_filled_total", Help: "Orders reconciled as filled"},
			[]string{"pair", "side"},
		),
		abandoned: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "signalbot_orders_abandoned_total", Help: "Orders abandoned, by reason"},
			[]string{"pair", "side", "reason"},
		),
		pollFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "signalbot_poll_failures_total", Help: "Failed trade-history fetches while reconciling"},
			[]string{"pair"},
		),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalbot_cycle_duration_seconds",
			Help:    "Wall time of completed evaluation cycles",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		cyclesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_cycles_skipped_total",
			Help: "Cycle triggers dropped because the previous cycle was still running",
		}),
	}
	r.registry.MustRegister(r.signals, r.submitted, r.filled, r.abandoned, r.pollFailures, r.cycleDuration, r.cyclesSkipped)
	return r
}

func (r *Recorder) SignalEmitted(pair domain.Pair, direction domain.Direction, timeframe string) {
	r.signals.WithLabelValues(pair.String(), string(direction), timeframe).Inc()
}

func (r *Recorder) OrderSubmitted(pair domain.Pair, side domain.OrderSide) {
	r.submitted.WithLabelValues(pair.String(), string(side)).Inc()
}

func (r *Recorder) OrderFilled(pair domain.Pair, side domain.OrderSide) {
	r.filled.WithLabelValues(pair.String(), string(side)).Inc()
}

func (r *Recorder) OrderAbandoned(pair domain.Pair, side domain.OrderSide, reason domain.AbandonReason) {
	r.abandoned.WithLabelValues(pair.String(), string(side), string(reason)).Inc()
}

func (r *Recorder) PollFailed(pair domain.Pair) {
	r.pollFailures.WithLabelValues(pair.String()).Inc()
}

func (r *Recorder) CycleCompleted(d time.Duration) {
	r.cycleDuration.Observe(d.Seconds())
}

func (r *Recorder) CycleSkipped() {
	r.cyclesSkipped.Inc()
}

// Handler returns the /metrics handler for this recorder's registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return srv
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) SignalEmitted(domain.Pair, domain.Direction, string)                {}
func (Nop) OrderSubmitted(domain.Pair, domain.OrderSide)                       {}
func (Nop) OrderFilled(domain.Pair, domain.OrderSide)                          {}
func (Nop) OrderAbandoned(domain.Pair, domain.OrderSide, domain.AbandonReason) {}
func (Nop) PollFailed(domain.Pair)                                             {}
func (Nop) CycleCompleted(time.Duration)                                       {}
func (Nop) CycleSkipped()                                                      {}
