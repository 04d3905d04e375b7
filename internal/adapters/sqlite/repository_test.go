package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "signal-bot-test-*")
	require.NoError(t, err)

	repo, err := NewRepository(Config{
		DBPath: filepath.Join(tmpDir, "test.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}
	return repo, cleanup
}

var (
	btc = domain.NewPair("BTC", "USDT")
	eth = domain.NewPair("ETH", "USDT")
)

func newOrder(id string, pair domain.Pair, side domain.OrderSide) *domain.Order {
	return &domain.Order{
		ClientOrderID:   id,
		Pair:            pair,
		Side:            side,
		RequestedAmount: 0.5,
		Status:          domain.StatusSubmitted,
	}
}

func statusPtr(s domain.OrderStatus) *domain.OrderStatus { return &s }

func TestRepository_Config(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.GetConfig(ctx, "allowbuy")
	assert.ErrorIs(t, err, ports.ErrNotFound)

	require.NoError(t, repo.SetConfig(ctx, "allowbuy", "false"))
	require.NoError(t, repo.SetConfig(ctx, "allowbuy", "true"))

	value, err := repo.GetConfig(ctx, "allowbuy")
	require.NoError(t, err)
	assert.Equal(t, "true", value)
}

func TestRepository_Signals(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signals := []*domain.Signal{
		{ID: "s1", Pair: btc, Timeframe: "15m", Period: 2, Direction: domain.DirectionBuy, Last: 100, RSIPrev: 29, RSICurr: 31,
			Profile: domain.ThresholdProfile{StdDev: 2, RSILow: 30, RSIHigh: 70}, RulerVersion: "v1", EmittedAt: base},
		{ID: "s2", Pair: btc, Timeframe: "1h", Period: 1, Direction: domain.DirectionSell, EmittedAt: base.Add(time.Hour)},
		{ID: "s3", Pair: btc, Timeframe: "15m", Period: 2, Direction: domain.DirectionBuy, ProfileIndex: 3, EmittedAt: base.Add(2 * time.Hour)},
		{ID: "s4", Pair: eth, Timeframe: "15m", Period: 2, Direction: domain.DirectionBuy, EmittedAt: base.Add(3 * time.Hour)},
	}
	for _, s := range signals {
		require.NoError(t, repo.AppendSignal(ctx, s))
	}

	err := repo.AppendSignal(ctx, &domain.Signal{ID: "s1", Pair: btc, EmittedAt: base})
	assert.ErrorIs(t, err, ports.ErrDuplicateEntry)

	tests := []struct {
		name   string
		filter ports.SignalFilter
		sort   ports.SortOrder
		limit  int
		want   []string
	}{
		{"all newest first", ports.SignalFilter{}, ports.SortNewestFirst, 0, []string{"s4", "s3", "s2", "s1"}},
		{"all oldest first", ports.SignalFilter{}, ports.SortOldestFirst, 0, []string{"s1", "s2", "s3", "s4"}},
		{"pair", ports.SignalFilter{Pair: &btc}, ports.SortOldestFirst, 0, []string{"s1", "s2", "s3"}},
		{"pair and direction", ports.SignalFilter{Pair: &btc, Direction: domain.DirectionBuy}, ports.SortNewestFirst, 1, []string{"s3"}},
		{"timeframe and period", ports.SignalFilter{Timeframe: "15m", Period: 2}, ports.SortOldestFirst, 0, []string{"s1", "s3", "s4"}},
		{"since is inclusive", ports.SignalFilter{Since: base.Add(2 * time.Hour)}, ports.SortOldestFirst, 0, []string{"s3", "s4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.QuerySignals(ctx, tt.filter, tt.sort, tt.limit)
			require.NoError(t, err)
			ids := make([]string, len(got))
			for i, s := range got {
				ids[i] = s.ID
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	got, err := repo.QuerySignals(ctx, ports.SignalFilter{Pair: &btc}, ports.SortOldestFirst, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, signals[0].Profile, got[0].Profile)
	assert.Equal(t, btc, got[0].Pair)
	assert.True(t, base.Equal(got[0].EmittedAt))
	assert.Equal(t, 29.0, got[0].RSIPrev)
}

func TestRepository_OrderLifecycle(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	buy := newOrder("buy-1", btc, domain.Buy)
	require.NoError(t, repo.AppendOrder(ctx, buy))
	assert.NotZero(t, buy.ID)

	exchangeID := "12345"
	require.NoError(t, repo.UpdateOrder(ctx, "buy-1", ports.OrderPatch{ExchangeOrderID: &exchangeID}))

	fill := &domain.Fill{Price: 100, Amount: 0.5, Fee: 0.05, Tax: 0.01, Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	require.NoError(t, repo.UpdateOrder(ctx, "buy-1", ports.OrderPatch{Status: statusPtr(domain.StatusFilled), Fill: fill}))

	got, err := repo.QueryOrders(ctx, ports.OrderFilter{ClientOrderID: "buy-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.StatusFilled, got[0].Status)
	assert.Equal(t, "12345", got[0].ExchangeOrderID)
	require.NotNil(t, got[0].Fill)
	assert.Equal(t, 100.0, got[0].Fill.Price)
	assert.Equal(t, 0.05, got[0].Fill.Fee)
	assert.Equal(t, "12345", got[0].Fill.ExchangeOrderID)

	// Terminal states are final and fills immutable.
	err = repo.UpdateOrder(ctx, "buy-1", ports.OrderPatch{Status: statusPtr(domain.StatusAbandoned)})
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
	err = repo.UpdateOrder(ctx, "buy-1", ports.OrderPatch{Fill: &domain.Fill{Price: 1, Amount: 1}})
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)

	err = repo.UpdateOrder(ctx, "missing", ports.OrderPatch{Status: statusPtr(domain.StatusAbandoned)})
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRepository_FilledRequiresFill(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.AppendOrder(ctx, newOrder("buy-1", btc, domain.Buy)))
	err := repo.UpdateOrder(ctx, "buy-1", ports.OrderPatch{Status: statusPtr(domain.StatusFilled)})
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}

func TestRepository_OneSubmittedBuyPerPair(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.AppendOrder(ctx, newOrder("buy-1", btc, domain.Buy)))

	err := repo.AppendOrder(ctx, newOrder("buy-2", btc, domain.Buy))
	assert.ErrorIs(t, err, ports.ErrDuplicateEntry)

	// Other pairs and sells are unaffected.
	require.NoError(t, repo.AppendOrder(ctx, newOrder("buy-3", eth, domain.Buy)))

	// Once the first buy leaves submitted a new one may be reserved.
	reason := domain.ReasonRetryExhausted
	require.NoError(t, repo.UpdateOrder(ctx, "buy-1", ports.OrderPatch{Status: statusPtr(domain.StatusAbandoned), Reason: &reason}))
	require.NoError(t, repo.AppendOrder(ctx, newOrder("buy-2", btc, domain.Buy)))

	err = repo.AppendOrder(ctx, newOrder("buy-2", eth, domain.Sell))
	assert.ErrorIs(t, err, ports.ErrDuplicateEntry, "client order ids are unique")
}

func TestRepository_OneLiveSellPerBuy(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	sell := newOrder("sell-1", btc, domain.Sell)
	sell.BuyOrderID = "buy-1"
	require.NoError(t, repo.AppendOrder(ctx, sell))

	dup := newOrder("sell-2", btc, domain.Sell)
	dup.BuyOrderID = "buy-1"
	assert.ErrorIs(t, repo.AppendOrder(ctx, dup), ports.ErrDuplicateEntry)

	require.NoError(t, repo.UpdateOrder(ctx, "sell-1", ports.OrderPatch{Status: statusPtr(domain.StatusAbandoned)}))
	assert.NoError(t, repo.AppendOrder(ctx, dup))
}

func TestRepository_QueryOrders(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	clock := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	repo.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	require.NoError(t, repo.AppendOrder(ctx, newOrder("a", btc, domain.Buy)))
	require.NoError(t, repo.UpdateOrder(ctx, "a", ports.OrderPatch{Status: statusPtr(domain.StatusFilled), Fill: &domain.Fill{Price: 1, Amount: 1}}))
	require.NoError(t, repo.AppendOrder(ctx, newOrder("b", eth, domain.Buy)))
	sell := newOrder("c", btc, domain.Sell)
	sell.BuyOrderID = "a"
	require.NoError(t, repo.AppendOrder(ctx, sell))

	all, err := repo.QueryOrders(ctx, ports.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ClientOrderID)
	assert.Equal(t, "c", all[2].ClientOrderID)

	open, err := repo.QueryOrders(ctx, ports.OrderFilter{Statuses: []domain.OrderStatus{domain.StatusSubmitted}})
	require.NoError(t, err)
	assert.Len(t, open, 2)

	btcBuys, err := repo.QueryOrders(ctx, ports.OrderFilter{Pair: &btc, Side: domain.Buy, Statuses: []domain.OrderStatus{domain.StatusFilled}})
	require.NoError(t, err)
	require.Len(t, btcBuys, 1)
	assert.Equal(t, "a", btcBuys[0].ClientOrderID)

	sells, err := repo.QueryOrders(ctx, ports.OrderFilter{BuyOrderID: "a"})
	require.NoError(t, err)
	require.Len(t, sells, 1)
	assert.Equal(t, "c", sells[0].ClientOrderID)
}

func TestRepository_ConcurrentBuyReservations(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results <- repo.AppendOrder(ctx, newOrder("buy-"+string(rune('a'+i)), btc, domain.Buy))
		}(i)
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ports.ErrDuplicateEntry)
		}
	}
	assert.Equal(t, 1, succeeded)
}
