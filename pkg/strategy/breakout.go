package strategy

import (
	"context"
	"fmt"

	"tradepulse/pkg/ta"
)

// Breakout fires when the last close pushes beyond the nearest level with
// above-average volume behind it.
type Breakout struct {
	params BreakoutParams
}

func NewBreakout(params BreakoutParams) *Breakout {
	return &Breakout{params: params}
}

func (s *Breakout) Name() string { return "breakout" }

func (s *Breakout) Evaluate(_ context.Context, snap Snapshot) (*Signal, error) {
	tc := snap.TA
	if tc == nil || tc.ATR <= 0 {
		return nil, nil
	}
	last := tc.Candles[len(tc.Candles)-1]
	if !volumeConfirms(tc, s.params.VolumeFactor) {
		return nil, nil
	}
	minBreak := tc.ATR * s.params.MinBreak

	if res := ta.NearestBelow(tc.Resistance, last.Close); res != nil && last.Close-res.Price >= minBreak {
		// Close punched through resistance: the level is now below the close.
		return &Signal{
			Symbol:     snap.Symbol,
			Interval:   snap.Interval,
			Strategy:   s.Name(),
			Direction:  Long,
			Price:      last.Close,
			Confidence: confidence(last.Close-res.Price, tc.ATR),
			Reason:     fmt.Sprintf("close %.4f broke resistance %.4f on %.1fx volume", last.Close, res.Price, s.params.VolumeFactor),
		}, nil
	}
	if sup := ta.NearestAbove(tc.Support, last.Close); sup != nil && sup.Price-last.Close >= minBreak {
		return &Signal{
			Symbol:     snap.Symbol,
			Interval:   snap.Interval,
			Strategy:   s.Name(),
			Direction:  Short,
			Price:      last.Close,
			Confidence: confidence(sup.Price-last.Close, tc.ATR),
			Reason:     fmt.Sprintf("close %.4f broke support %.4f on %.1fx volume", last.Close, sup.Price, s.params.VolumeFactor),
		}, nil
	}
	return nil, nil
}

// volumeConfirms reports whether the last bar's volume exceeds factor times
// the average of the preceding 20 bars.
func volumeConfirms(tc *ta.Context, factor float64) bool {
	candles := tc.Candles
	last := candles[len(candles)-1]
	window := candles[:len(candles)-1]
	if len(window) > 20 {
		window = window[len(window)-20:]
	}
	if len(window) == 0 {
		return false
	}
	var sum float64
	for _, c := range window {
		sum += c.Volume
	}
	avg := sum / float64(len(window))
	return avg > 0 && last.Volume >= avg*factor
}

// confidence scales the move size against ATR into (0, 1].
func confidence(move, atr float64) float64 {
	ratio := move / atr
	if ratio > 2 {
		ratio = 2
	}
	return 0.5 + ratio/4
}
