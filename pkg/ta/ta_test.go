package ta

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepulse/pkg/market"
)

func mkCandles(t *testing.T, closes []float64, spread float64) []market.Candle {
	t.Helper()
	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	out := make([]market.Candle, 0, len(closes))
	for i, close := range closes {
		c, err := market.NewCandle("BTCUSDT", market.Interval1h, base.Add(time.Duration(i)*time.Hour),
			close, close+spread, close-spread, close, 1000)
		require.NoError(t, err)
		out = append(out, c)
	}
	return out
}

func TestEMA(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 6}
	result := EMA(data, 3)
	require.Len(t, result, len(data))
	require.True(t, math.IsNaN(result[0]))
	require.True(t, math.IsNaN(result[1]))
	require.InDelta(t, 2.0, result[2], 1e-9)
	require.InDelta(t, 3.0, result[3], 1e-9)
	require.InDelta(t, 4.0, result[4], 1e-9)
	require.InDelta(t, 5.0, result[5], 1e-9)
}

func TestRSI(t *testing.T) {
	closes := []float64{100, 101, 102, 103, 105, 107, 106, 108, 110, 111, 112, 115, 117, 119, 118, 120, 121, 123, 125, 124, 126, 127, 129, 130, 132, 133, 134, 135, 136, 138, 139, 141, 140, 142, 144, 143, 145, 147, 149, 148, 150, 151, 149, 148, 150, 152, 151, 153, 154, 156, 155, 157, 158, 160, 161, 159, 158, 157, 159, 160}
	rsi := RSI(closes, 14)
	require.Len(t, rsi, len(closes))
	require.InDelta(t, 73.084185, rsi[len(rsi)-1], 1e-6)
}

func TestATR(t *testing.T) {
	closes := []float64{100, 101, 102, 104, 103, 105, 107, 106, 108, 110, 112, 111, 113, 115, 114, 116, 118, 117, 119, 121}
	candles := mkCandles(t, closes, 1.5)
	atr := ATR(candles, 14)
	require.Len(t, atr, len(candles))
	require.InDelta(t, 3.326525, atr[len(atr)-1], 1e-6)
}

func TestLevelsFindSwingCluster(t *testing.T) {
	// Two rallies stalling at ~120, one dip bottoming at ~100.
	closes := []float64{105, 108, 112, 116, 119, 120, 118, 114, 108, 103, 100, 102, 106, 111, 115, 118, 120.3, 117, 113, 109, 107, 106, 105, 104}
	candles := mkCandles(t, closes, 0.5)

	support, resistance := Levels(candles)
	require.NotEmpty(t, resistance, "the double top should register")
	require.NotEmpty(t, support, "the dip low should register")

	top := resistance[len(resistance)-1]
	assert.InDelta(t, 120.65, top.Price, 1.0, "resistance near the stall zone")
	assert.Equal(t, 2, top.Touches, "both rallies count")
	assert.InDelta(t, 99.5, support[0].Price, 1.0, "support near the dip low")
}

func TestNearestLevels(t *testing.T) {
	levels := []Level{{Price: 90}, {Price: 100}, {Price: 110}}
	below := NearestBelow(levels, 105)
	require.NotNil(t, below)
	assert.Equal(t, 100.0, below.Price)

	above := NearestAbove(levels, 105)
	require.NotNil(t, above)
	assert.Equal(t, 110.0, above.Price)

	assert.Nil(t, NearestBelow(levels, 80), "nothing below the lowest level")
	assert.Nil(t, NearestAbove(levels, 120), "nothing above the highest level")
}

func TestContextTrend(t *testing.T) {
	up := make([]float64, 40)
	for i := range up {
		up[i] = 100 + float64(i)*2
	}
	tctx := NewContext(mkCandles(t, up, 1))
	require.NotNil(t, tctx)
	assert.Equal(t, TrendUp, tctx.Trend)
	assert.Greater(t, tctx.ATR, 0.0)
	assert.Equal(t, up[len(up)-1], tctx.LastClose)

	down := make([]float64, 40)
	for i := range down {
		down[i] = 200 - float64(i)*2
	}
	tctx = NewContext(mkCandles(t, down, 1))
	require.NotNil(t, tctx)
	assert.Equal(t, TrendDown, tctx.Trend)

	assert.Nil(t, NewContext(mkCandles(t, up[:5], 1)), "short series yields no context")
}
