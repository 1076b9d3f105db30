package ta

import (
	"math"
	"sort"

	"tradepulse/pkg/market"
)

const (
	// swingWindow is the number of bars on each side a swing point must dominate.
	swingWindow = 3
	// clusterTolerance merges swing points within this relative distance into
	// one level.
	clusterTolerance = 0.005
)

// Level is one support or resistance price with its touch count.
type Level struct {
	Price   float64 `json:"price"`
	Touches int     `json:"touches"`
}

// Levels finds support and resistance from swing highs/lows: a bar whose high
// dominates its neighbors contributes a resistance point, a dominated low a
// support point; nearby points cluster into a single level whose strength is
// the touch count. Both slices come back sorted by price ascending.
func Levels(candles []market.Candle) (support, resistance []Level) {
	if len(candles) < 2*swingWindow+1 {
		return nil, nil
	}
	var lows, highs []float64
	for i := swingWindow; i < len(candles)-swingWindow; i++ {
		isHigh, isLow := true, true
		for j := i - swingWindow; j <= i+swingWindow; j++ {
			if j == i {
				continue
			}
			if candles[j].High >= candles[i].High {
				isHigh = false
			}
			if candles[j].Low <= candles[i].Low {
				isLow = false
			}
		}
		if isHigh {
			highs = append(highs, candles[i].High)
		}
		if isLow {
			lows = append(lows, candles[i].Low)
		}
	}
	return cluster(lows), cluster(highs)
}

// cluster merges sorted prices within clusterTolerance of the cluster mean.
func cluster(prices []float64) []Level {
	if len(prices) == 0 {
		return nil
	}
	sort.Float64s(prices)

	var levels []Level
	sum, count := prices[0], 1
	for _, p := range prices[1:] {
		mean := sum / float64(count)
		if math.Abs(p-mean) <= mean*clusterTolerance {
			sum += p
			count++
			continue
		}
		levels = append(levels, Level{Price: mean, Touches: count})
		sum, count = p, 1
	}
	levels = append(levels, Level{Price: sum / float64(count), Touches: count})
	return levels
}

// NearestBelow returns the closest level below price, or nil.
func NearestBelow(levels []Level, price float64) *Level {
	var best *Level
	for i := range levels {
		if levels[i].Price < price && (best == nil || levels[i].Price > best.Price) {
			best = &levels[i]
		}
	}
	return best
}

// NearestAbove returns the closest level above price, or nil.
func NearestAbove(levels []Level, price float64) *Level {
	var best *Level
	for i := range levels {
		if levels[i].Price > price && (best == nil || levels[i].Price < best.Price) {
			best = &levels[i]
		}
	}
	return best
}
