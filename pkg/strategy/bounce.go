package strategy

import (
	"context"
	"fmt"

	"tradepulse/pkg/ta"
)

// Bounce fires when a bar probes a well-touched level and closes back on the
// other side of it, a rejection wick.
type Bounce struct {
	params BounceParams
}

func NewBounce(params BounceParams) *Bounce {
	return &Bounce{params: params}
}

func (s *Bounce) Name() string { return "bounce" }

func (s *Bounce) Evaluate(_ context.Context, snap Snapshot) (*Signal, error) {
	tc := snap.TA
	if tc == nil || tc.ATR <= 0 {
		return nil, nil
	}
	last := tc.Candles[len(tc.Candles)-1]
	tolerance := tc.ATR * s.params.Tolerance

	if sup := ta.NearestBelow(tc.Support, last.Close); sup != nil && sup.Touches >= s.params.MinTouches {
		// The low dipped into the level zone but the close recovered above it.
		if last.Low <= sup.Price+tolerance && last.Close > sup.Price {
			return &Signal{
				Symbol:     snap.Symbol,
				Interval:   snap.Interval,
				Strategy:   s.Name(),
				Direction:  Long,
				Price:      last.Close,
				Confidence: touchConfidence(sup.Touches),
				Reason:     fmt.Sprintf("rejection off support %.4f (%d touches)", sup.Price, sup.Touches),
			}, nil
		}
	}
	if res := ta.NearestAbove(tc.Resistance, last.Close); res != nil && res.Touches >= s.params.MinTouches {
		if last.High >= res.Price-tolerance && last.Close < res.Price {
			return &Signal{
				Symbol:     snap.Symbol,
				Interval:   snap.Interval,
				Strategy:   s.Name(),
				Direction:  Short,
				Price:      last.Close,
				Confidence: touchConfidence(res.Touches),
				Reason:     fmt.Sprintf("rejection off resistance %.4f (%d touches)", res.Price, res.Touches),
			}, nil
		}
	}
	return nil, nil
}

// touchConfidence grows with how often the level has held before.
func touchConfidence(touches int) float64 {
	c := 0.4 + 0.1*float64(touches)
	if c > 0.9 {
		c = 0.9
	}
	return c
}
