package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

var (
	_ ports.Metrics = (*Recorder)(nil)
	_ ports.Metrics = Nop{}
)

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder()
	pair := domain.NewPair("BTC", "USDT")

	r.SignalEmitted(pair, domain.DirectionBuy, "15m")
	r.SignalEmitted(pair, domain.DirectionBuy, "15m")
	r.OrderSubmitted(pair, domain.Buy)
	r.OrderFilled(pair, domain.Buy)
	r.OrderAbandoned(pair, domain.Sell, domain.ReasonRetryExhausted)
	r.PollFailed(pair)
	r.CycleSkipped()
	r.CycleCompleted(2 * time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.signals.WithLabelValues("BTC/USDT", "buy", "15m")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.submitted.WithLabelValues("BTC/USDT", "BUY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.filled.WithLabelValues("BTC/USDT", "BUY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.abandoned.WithLabelValues("BTC/USDT", "SELL", "RETRY_EXHAUSTED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.pollFailures.WithLabelValues("BTC/USDT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cyclesSkipped))
	assert.Equal(t, 1, testutil.CollectAndCount(r.cycleDuration))
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.OrderSubmitted(domain.NewPair("ETH", "TRY"), domain.Sell)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `signalbot_orders_submitted_total{pair="ETH/TRY",side="SELL"} 1`)
}

func TestRecorder_ServeStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewRecorder().Serve(ctx, "127.0.0.1:0")
	require.NotNil(t, srv)
	cancel()
}
