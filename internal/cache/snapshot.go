package cache

import (
	"context"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"

	"tradepulse/pkg/market"
)

// Snapshots keeps the newest bar per series in Redis so dashboards and the
// REST layer can read the latest close without touching Postgres. Values are
// msgpack, noticeably smaller than JSON for a hot key written every cycle.
// All methods are best effort: a cache failure is logged and swallowed.
type Snapshots struct {
	rds *redis.Redis
	ttl TTLSet
}

// NewSnapshots wires the snapshot cache. A nil redis client yields a no-op
// instance so callers never have to branch on cache availability.
func NewSnapshots(rds *redis.Redis, ttl TTLSet) *Snapshots {
	return &Snapshots{rds: rds, ttl: ttl}
}

// SetLatest stores the newest candle for its series.
func (s *Snapshots) SetLatest(ctx context.Context, c market.Candle) {
	if s == nil || s.rds == nil {
		return
	}
	payload, err := msgpack.Marshal(c)
	if err != nil {
		logx.WithContext(ctx).Errorf("cache: encode latest %s %s: %v", c.Symbol, c.Interval, err)
		return
	}
	key := CandleLatestKey(c.Symbol, string(c.Interval))
	ttl := int(s.ttl.Duration(TTLMedium).Seconds())
	if err := s.rds.SetexCtx(ctx, key, string(payload), ttl); err != nil {
		logx.WithContext(ctx).Errorf("cache: set %s: %v", key, err)
	}
}

// PublishStats stores one coordinator's counters so the API process can
// serve stats without sharing memory with the daemon.
func (s *Snapshots) PublishStats(ctx context.Context, name string, stats interface{}) {
	if s == nil || s.rds == nil {
		return
	}
	payload, err := msgpack.Marshal(stats)
	if err != nil {
		logx.WithContext(ctx).Errorf("cache: encode stats %s: %v", name, err)
		return
	}
	key := SyncStatsKey(name)
	ttl := int(s.ttl.Duration(TTLMedium).Seconds())
	if err := s.rds.SetexCtx(ctx, key, string(payload), ttl); err != nil {
		logx.WithContext(ctx).Errorf("cache: set %s: %v", key, err)
	}
}

// ReadStats loads a published stats payload into out. Returns false on miss.
func (s *Snapshots) ReadStats(ctx context.Context, name string, out interface{}) bool {
	if s == nil || s.rds == nil {
		return false
	}
	raw, err := s.rds.GetCtx(ctx, SyncStatsKey(name))
	if err != nil || raw == "" {
		return false
	}
	if err := msgpack.Unmarshal([]byte(raw), out); err != nil {
		logx.WithContext(ctx).Errorf("cache: decode stats %s: %v", name, err)
		return false
	}
	return true
}

// GetLatest returns the cached newest candle, or nil on miss or error.
func (s *Snapshots) GetLatest(ctx context.Context, symbol string, interval market.Interval) *market.Candle {
	if s == nil || s.rds == nil {
		return nil
	}
	key := CandleLatestKey(symbol, string(interval))
	raw, err := s.rds.GetCtx(ctx, key)
	if err != nil || raw == "" {
		return nil
	}
	var c market.Candle
	if err := msgpack.Unmarshal([]byte(raw), &c); err != nil {
		logx.WithContext(ctx).Errorf("cache: decode %s: %v", key, err)
		return nil
	}
	return &c
}
