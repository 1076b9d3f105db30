package market

import "time"

// MaxGapCandles is the sanity ceiling on the missing-candle estimate. Gaps larger
// than this are reported but flagged TooLarge instead of being auto-filled, which
// protects against clock skew or a misconfigured interval triggering a runaway
// download.
const MaxGapCandles = 5000

// GapInfo is the transient result of gap analysis for one (symbol, interval).
type GapInfo struct {
	HasGap      bool
	Start       time.Time // first missing bar's open time
	End         time.Time // expected end (wall clock at detection)
	Missing     int       // estimated missing bar count, floor convention
	FullHistory bool      // no data stored at all; Start is the lookback horizon
	TooLarge    bool      // Missing exceeded MaxGapCandles
}

// DetectGap decides whether the store is missing bars for one (symbol, interval).
// It is a pure function over the latest stored open time and the wall clock.
//
// Rounding convention: Missing = floor(gapDuration / barDuration). The bar opening
// at (or after) `now` is still forming and is never counted as missing; with the
// latest bar at T and now = T+3h on a 1h interval, the gap is [T+1h, now) and
// Missing = 2.
func DetectGap(latest *time.Time, interval Interval, now time.Time, maxLookback time.Duration) GapInfo {
	now = now.UTC()
	if latest == nil {
		start := now.Add(-maxLookback)
		missing := int(maxLookback / interval.Duration())
		info := GapInfo{HasGap: true, Start: start, End: now, Missing: missing, FullHistory: true}
		if missing > MaxGapCandles {
			info.Missing = MaxGapCandles
		}
		return info
	}

	start := latest.UTC().Add(interval.Duration())
	gap := now.Sub(start)
	if gap < interval.Duration() {
		return GapInfo{HasGap: false, End: now}
	}
	missing := int(gap / interval.Duration())
	info := GapInfo{HasGap: true, Start: start, End: now, Missing: missing}
	if missing > MaxGapCandles {
		info.TooLarge = true
	}
	return info
}
