// Package candlesync keeps the candle store synchronized with an external
// market-data source: a startup gap-detect-and-backfill pass followed by
// per-interval polling loops, all owned by a Coordinator.
package candlesync

import (
	"sync"
	"sync/atomic"
	"time"

	"tradepulse/pkg/market"
)

// Stats collects process-local sync counters. All methods are safe for
// concurrent use from the interval loops; counters reset on restart.
type Stats struct {
	startedAt time.Time

	candlesSynced atomic.Int64
	apiCalls      atomic.Int64
	errors        atomic.Int64
	gapsFound     atomic.Int64
	gapsFilled    atomic.Int64

	mu       sync.RWMutex
	lastSync map[market.Interval]time.Time
}

func NewStats() *Stats {
	return &Stats{
		startedAt: time.Now().UTC(),
		lastSync:  make(map[market.Interval]time.Time),
	}
}

func (s *Stats) AddSynced(n int)   { s.candlesSynced.Add(int64(n)) }
func (s *Stats) AddAPICalls(n int) { s.apiCalls.Add(int64(n)) }
func (s *Stats) AddError()         { s.errors.Add(1) }
func (s *Stats) AddGapFound()      { s.gapsFound.Add(1) }
func (s *Stats) AddGapFilled()     { s.gapsFilled.Add(1) }

func (s *Stats) MarkSynced(interval market.Interval) {
	s.mu.Lock()
	s.lastSync[interval] = time.Now().UTC()
	s.mu.Unlock()
}

// Snapshot is a point-in-time copy of the counters, shaped for JSON.
type Snapshot struct {
	CandlesSynced int64                      `json:"candlesSynced"`
	APICalls      int64                      `json:"apiCalls"`
	Errors        int64                      `json:"errors"`
	GapsFound     int64                      `json:"gapsFound"`
	GapsFilled    int64                      `json:"gapsFilled"`
	LastSync      map[market.Interval]string `json:"lastSync"`
	UptimeSeconds int64                      `json:"uptimeSeconds"`
}

// Healthy reports whether a published snapshot still looks like a working
// coordinator. Mirrors the in-process health check so readers of published
// stats reach the same verdict.
func (s Snapshot) Healthy() bool {
	return s.Errors < healthErrorThreshold
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	last := make(map[market.Interval]string, len(s.lastSync))
	for interval, ts := range s.lastSync {
		last[interval] = ts.Format(time.RFC3339)
	}
	s.mu.RUnlock()

	return Snapshot{
		CandlesSynced: s.candlesSynced.Load(),
		APICalls:      s.apiCalls.Load(),
		Errors:        s.errors.Load(),
		GapsFound:     s.gapsFound.Load(),
		GapsFilled:    s.gapsFilled.Load(),
		LastSync:      last,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
}
