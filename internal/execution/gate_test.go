package execution

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

func TestGate_Flags(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		cfg      GateConfig
		settings *mockSettings
		wantBuy  bool
		wantSell bool
	}{
		{"defaults when nothing stored", GateConfig{AllowBuy: true}, &mockSettings{}, true, false},
		{"stored values override", GateConfig{AllowBuy: true}, &mockSettings{values: map[string]string{"allowbuy": "false", "allowsell": "true"}}, false, true},
		{"invalid stored value ignored", GateConfig{AllowSell: true}, &mockSettings{values: map[string]string{"allowsell": "maybe"}}, false, true},
		{"read errors fall back", GateConfig{AllowBuy: true}, &mockSettings{err: errors.New("db locked")}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(tt.cfg, tt.settings, &mockLogger{})
			assert.Equal(t, tt.wantBuy, g.BuyEnabled(ctx))
			assert.Equal(t, tt.wantSell, g.SellEnabled(ctx))
		})
	}

	g := NewGate(GateConfig{AllowBuy: true}, nil, &mockLogger{})
	assert.True(t, g.BuyEnabled(ctx))
}

func TestGate_OrderAmount(t *testing.T) {
	ctx := context.Background()
	settings := &mockSettings{}
	g := NewGate(GateConfig{OrderAmount: 20}, settings, &mockLogger{})

	assert.Equal(t, 20.0, g.OrderAmount(ctx))

	require.NoError(t, settings.SetConfig(ctx, "orderamount", "55.5"))
	assert.Equal(t, 55.5, g.OrderAmount(ctx))

	require.NoError(t, settings.SetConfig(ctx, "orderamount", "-3"))
	assert.Equal(t, 20.0, g.OrderAmount(ctx))
}

func TestGate_Funds(t *testing.T) {
	g := NewGate(GateConfig{}, nil, &mockLogger{})
	pair := domain.NewPair("BTC", "USDT")

	assert.NoError(t, g.CheckBuyFunds(pair, 20, map[string]float64{"USDT": 20}))

	err := g.CheckBuyFunds(pair, 20, map[string]float64{"USDT": 19.99})
	assert.ErrorIs(t, err, ErrGated)
	assert.ErrorIs(t, err, ports.ErrInsufficientFunds)

	amount, err := g.SellAmount(pair, 0.5, map[string]float64{"BTC": 0.4})
	require.NoError(t, err)
	assert.Equal(t, 0.4, amount)

	amount, err = g.SellAmount(pair, 0.5, map[string]float64{"BTC": 3})
	require.NoError(t, err)
	assert.Equal(t, 0.5, amount)

	_, err = g.SellAmount(pair, 0.5, map[string]float64{})
	assert.ErrorIs(t, err, ErrGated)
}
