package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoSignalBot/internal/ports"
)

func series(n int, f func(i int) float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = f(i)
	}
	return out
}

func TestRSIPair_Calculate(t *testing.T) {
	tests := []struct {
		name     string
		closes   []float64
		period   int
		wantPrev float64
		wantCurr float64
	}{
		{
			name:     "small period with Wilder smoothing",
			closes:   []float64{100, 102, 101, 103, 102}, // +2 -1 +2 -1
			period:   3,
			wantPrev: 80.0,      // gains 4/3, losses 1/3
			wantCurr: 61.538461, // gains 8/9, losses 5/9
		},
		{
			name:     "all gains",
			closes:   series(RSIInputLength, func(i int) float64 { return 100 + float64(i) }),
			period:   RSIPeriod,
			wantPrev: 100,
			wantCurr: 100,
		},
		{
			name:     "all losses",
			closes:   series(RSIInputLength, func(i int) float64 { return 200 - float64(i) }),
			period:   RSIPeriod,
			wantPrev: 0,
			wantCurr: 0,
		},
		{
			name:     "flat series is neutral",
			closes:   series(RSIInputLength, func(int) float64 { return 42 }),
			period:   RSIPeriod,
			wantPrev: 50,
			wantCurr: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev, curr, err := RSIPair(tt.closes, tt.period)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantPrev, prev, 0.0001)
			assert.InDelta(t, tt.wantCurr, curr, 0.0001)
		})
	}
}

func TestRSIPair_RejectsWrongLength(t *testing.T) {
	for _, n := range []int{0, 1, 14, 15, 17, 20} {
		closes := series(n, func(i int) float64 { return float64(i) })
		_, _, err := RSIPair(closes, RSIPeriod)
		require.Error(t, err, "length %d", n)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.ErrorIs(t, err, ports.ErrInsufficientData)
	}
}

func TestRSIPair_Bounded(t *testing.T) {
	closes := []float64{10, 30, 5, 60, 1, 90, 2, 80, 3, 70, 4, 60, 5, 50, 6, 40}
	prev, curr, err := RSIPair(closes, RSIPeriod)
	require.NoError(t, err)
	for _, v := range []float64{prev, curr} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
	// The last change is a gain, so the reading must rise.
	assert.Greater(t, curr, prev)
}
