package strategy

import (
	"context"
	"fmt"

	"tradepulse/pkg/market"
	"tradepulse/pkg/ta"
)

// FalseBreakout fires when a recent bar pierces a well-touched level but
// closes back inside, and the latest close keeps moving away from the level.
// The failed break traps the breakout crowd, so the trade goes against it:
// short after a failed push above resistance, long after a failed push under
// support.
type FalseBreakout struct {
	params FalseBreakoutParams
}

func NewFalseBreakout(params FalseBreakoutParams) *FalseBreakout {
	return &FalseBreakout{params: params}
}

func (s *FalseBreakout) Name() string { return "false_breakout" }

func (s *FalseBreakout) Evaluate(_ context.Context, snap Snapshot) (*Signal, error) {
	tc := snap.TA
	if tc == nil || tc.ATR <= 0 || len(tc.Candles) < s.params.Lookback+2 {
		return nil, nil
	}
	last := tc.Candles[len(tc.Candles)-1]
	maxDepth := tc.ATR * s.params.MaxDepth
	// The trap bar sits in the lookback window before the current bar; the
	// current close is the confirmation, never the trap itself.
	recent := tc.Candles[len(tc.Candles)-1-s.params.Lookback : len(tc.Candles)-1]

	if res := ta.NearestAbove(tc.Resistance, last.Close); res != nil && res.Touches >= s.params.MinTouches {
		if trap := trapAbove(recent, res.Price, maxDepth); trap != nil && last.Close < trap.Close {
			return &Signal{
				Symbol:     snap.Symbol,
				Interval:   snap.Interval,
				Strategy:   s.Name(),
				Direction:  Short,
				Price:      last.Close,
				Confidence: trapConfidence(trap.High-res.Price, tc.ATR),
				Reason:     fmt.Sprintf("failed break above resistance %.4f: high %.4f closed back at %.4f", res.Price, trap.High, trap.Close),
			}, nil
		}
	}
	if sup := ta.NearestBelow(tc.Support, last.Close); sup != nil && sup.Touches >= s.params.MinTouches {
		if trap := trapBelow(recent, sup.Price, maxDepth); trap != nil && last.Close > trap.Close {
			return &Signal{
				Symbol:     snap.Symbol,
				Interval:   snap.Interval,
				Strategy:   s.Name(),
				Direction:  Long,
				Price:      last.Close,
				Confidence: trapConfidence(sup.Price-trap.Low, tc.ATR),
				Reason:     fmt.Sprintf("failed break under support %.4f: low %.4f closed back at %.4f", sup.Price, trap.Low, trap.Close),
			}, nil
		}
	}
	return nil, nil
}

// trapAbove returns the most recent bar that pierced the level from below yet
// closed back under it. Pushes deeper than maxDepth are skipped; those read
// as genuine breakouts, not traps.
func trapAbove(candles []market.Candle, level, maxDepth float64) *market.Candle {
	for i := len(candles) - 1; i >= 0; i-- {
		c := candles[i]
		if c.High > level && c.Close < level && c.High-level <= maxDepth {
			return &candles[i]
		}
	}
	return nil
}

// trapBelow mirrors trapAbove for a pierced support.
func trapBelow(candles []market.Candle, level, maxDepth float64) *market.Candle {
	for i := len(candles) - 1; i >= 0; i-- {
		c := candles[i]
		if c.Low < level && c.Close > level && level-c.Low <= maxDepth {
			return &candles[i]
		}
	}
	return nil
}

// trapConfidence is higher for shallow probes; the deeper the push past the
// level, the closer it sits to a genuine breakout.
func trapConfidence(depth, atr float64) float64 {
	c := 0.85 - (depth/atr)*0.75
	if c < 0.5 {
		c = 0.5
	}
	return c
}
