package market

import "time"

// Interval identifies a candle timeframe using the short form shared across the
// codebase ("1m", "1h", "1d", ...). Provider-specific vocabularies are mapped at
// the source-client boundary, never here.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
	Interval1w  Interval = "1w"
)

var intervalDurations = map[Interval]time.Duration{
	Interval1m:  time.Minute,
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval1h:  time.Hour,
	Interval4h:  4 * time.Hour,
	Interval1d:  24 * time.Hour,
	Interval1w:  7 * 24 * time.Hour,
}

// Intervals lists every supported interval, shortest first.
func Intervals() []Interval {
	return []Interval{Interval1m, Interval5m, Interval15m, Interval1h, Interval4h, Interval1d, Interval1w}
}

// Valid reports whether the interval is one of the supported timeframes.
func (i Interval) Valid() bool {
	_, ok := intervalDurations[i]
	return ok
}

// Duration returns the fixed length of one bar, or zero for unknown intervals.
func (i Interval) Duration() time.Duration {
	return intervalDurations[i]
}

// Seconds returns the bar length in whole seconds.
func (i Interval) Seconds() int64 {
	return int64(i.Duration() / time.Second)
}

// SyncSchedule describes how one interval is polled in steady state: the re-poll
// cadence and how many of the most recent bars each poll requests. FetchCount must
// stay >= 2 because the newest bar may still be open and has to be re-fetched and
// overwritten once it closes.
type SyncSchedule struct {
	Interval   Interval
	Every      time.Duration
	FetchCount int
}

// DefaultSchedules polls each interval once per bar.
func DefaultSchedules() []SyncSchedule {
	return []SyncSchedule{
		{Interval: Interval1m, Every: time.Minute, FetchCount: 2},
		{Interval: Interval5m, Every: 5 * time.Minute, FetchCount: 2},
		{Interval: Interval15m, Every: 15 * time.Minute, FetchCount: 2},
		{Interval: Interval1h, Every: time.Hour, FetchCount: 2},
		{Interval: Interval4h, Every: 4 * time.Hour, FetchCount: 2},
		{Interval: Interval1d, Every: 24 * time.Hour, FetchCount: 2},
	}
}
