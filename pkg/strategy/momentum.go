package strategy

import (
	"context"
	"fmt"
)

// Momentum fires on a streak of consecutive directional closes, optionally
// requiring rising volume across the streak.
type Momentum struct {
	params MomentumParams
}

func NewMomentum(params MomentumParams) *Momentum {
	return &Momentum{params: params}
}

func (s *Momentum) Name() string { return "momentum" }

func (s *Momentum) Evaluate(_ context.Context, snap Snapshot) (*Signal, error) {
	tc := snap.TA
	if tc == nil {
		return nil, nil
	}
	candles := tc.Candles
	need := s.params.Streak
	if len(candles) < need+1 {
		return nil, nil
	}

	tail := candles[len(candles)-need-1:]
	up, down := true, true
	for i := 1; i < len(tail); i++ {
		if tail[i].Close <= tail[i-1].Close {
			up = false
		}
		if tail[i].Close >= tail[i-1].Close {
			down = false
		}
		if s.params.VolumeRising && tail[i].Volume < tail[i-1].Volume {
			up, down = false, false
		}
	}
	if !up && !down {
		return nil, nil
	}

	last := tail[len(tail)-1]
	direction := Long
	if down {
		direction = Short
	}
	return &Signal{
		Symbol:     snap.Symbol,
		Interval:   snap.Interval,
		Strategy:   s.Name(),
		Direction:  direction,
		Price:      last.Close,
		Confidence: streakConfidence(need),
		Reason:     fmt.Sprintf("%d consecutive %s closes", need, direction),
	}, nil
}

func streakConfidence(streak int) float64 {
	c := 0.4 + 0.05*float64(streak)
	if c > 0.8 {
		c = 0.8
	}
	return c
}
