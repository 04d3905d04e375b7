package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBollinger_Calculate(t *testing.T) {
	// 1..20: mean 10.5, population variance (n^2-1)/12 = 33.25
	closes := series(BandWindow, func(i int) float64 { return float64(i + 1) })
	sd := math.Sqrt(33.25)

	bands, err := Bollinger(closes, 2)
	require.NoError(t, err)
	assert.InDelta(t, 10.5, bands.Middle, 1e-9)
	assert.InDelta(t, 10.5-2*sd, bands.Lower, 1e-9)
	assert.InDelta(t, 10.5+2*sd, bands.Upper, 1e-9)

	narrow, err := Bollinger(closes, 1.5)
	require.NoError(t, err)
	assert.Greater(t, narrow.Lower, bands.Lower, "smaller multiplier tightens the band")
	assert.Less(t, narrow.Upper, bands.Upper)
}

func TestBollinger_FlatSeriesCollapses(t *testing.T) {
	bands, err := Bollinger(series(BandWindow, func(int) float64 { return 7 }), 2)
	require.NoError(t, err)
	assert.Equal(t, Bands{Lower: 7, Middle: 7, Upper: 7}, bands)
}

func TestBollinger_RejectsWrongLength(t *testing.T) {
	for _, n := range []int{0, 16, 19, 21, 40} {
		_, err := Bollinger(series(n, func(i int) float64 { return float64(i) }), 2)
		assert.ErrorIs(t, err, ErrUnavailable, "length %d", n)
	}
}

func TestBollinger_RejectsNonPositiveMultiplier(t *testing.T) {
	_, err := Bollinger(series(BandWindow, func(i int) float64 { return float64(i) }), 0)
	assert.Error(t, err)
}

func TestSMA(t *testing.T) {
	avg, err := SMA([]float64{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, 2.5, avg)

	_, err = SMA(nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}
