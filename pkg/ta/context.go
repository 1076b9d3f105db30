package ta

import (
	"math"

	"tradepulse/pkg/market"
)

// Trend is the coarse direction of a candle series.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

const (
	atrPeriod     = 14
	emaFastPeriod = 9
	emaSlowPeriod = 21
	// trendTolerance is the minimum relative EMA separation before a series
	// counts as trending rather than flat.
	trendTolerance = 0.001
)

// Context is the analysis snapshot strategies evaluate against.
type Context struct {
	Candles    []market.Candle
	LastClose  float64
	ATR        float64
	Trend      Trend
	Support    []Level
	Resistance []Level
	RSI        float64
}

// NewContext computes the full snapshot for one candle series, oldest first.
// Returns nil when the series is too short to analyze.
func NewContext(candles []market.Candle) *Context {
	if len(candles) < emaSlowPeriod+1 {
		return nil
	}
	closes := Closes(candles)
	support, resistance := Levels(candles)

	tctx := &Context{
		Candles:    candles,
		LastClose:  closes[len(closes)-1],
		Trend:      trend(closes),
		Support:    support,
		Resistance: resistance,
	}
	if atr := ATR(candles, atrPeriod); len(atr) > 0 && !math.IsNaN(atr[len(atr)-1]) {
		tctx.ATR = atr[len(atr)-1]
	}
	if rsi := RSI(closes, atrPeriod); len(rsi) > 0 && !math.IsNaN(rsi[len(rsi)-1]) {
		tctx.RSI = rsi[len(rsi)-1]
	}
	return tctx
}

func trend(closes []float64) Trend {
	fast := EMA(closes, emaFastPeriod)
	slow := EMA(closes, emaSlowPeriod)
	last := len(closes) - 1
	if math.IsNaN(fast[last]) || math.IsNaN(slow[last]) || slow[last] == 0 {
		return TrendFlat
	}
	separation := (fast[last] - slow[last]) / slow[last]
	switch {
	case separation > trendTolerance:
		return TrendUp
	case separation < -trendTolerance:
		return TrendDown
	default:
		return TrendFlat
	}
}
