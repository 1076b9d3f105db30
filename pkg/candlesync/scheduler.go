package candlesync

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"tradepulse/pkg/market"
)

const (
	// fallbackTickDelay is slept after a tick that errored, regardless of the
	// interval's normal cadence.
	fallbackTickDelay = 60 * time.Second

	defaultSymbolDelay = 500 * time.Millisecond
)

// Scheduler runs one polling loop per interval schedule. Each tick sweeps the
// symbols in fixed order, fetches the newest bars and upserts them. The last
// bar returned is usually still forming; fetching at least two per tick and
// upserting means it converges to its final values on the following tick.
type Scheduler struct {
	store       market.Store
	source      market.Source
	stats       *Stats
	symbols     []string
	symbolDelay time.Duration
	onLatest    func(market.Candle)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSymbolDelay sets the pause between symbols within one sweep.
func WithSymbolDelay(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d >= 0 {
			s.symbolDelay = d
		}
	}
}

// WithLatestHook registers a callback invoked with the newest upserted bar of
// each series after every sweep (cache refresh, strategy triggers).
func WithLatestHook(fn func(market.Candle)) SchedulerOption {
	return func(s *Scheduler) { s.onLatest = fn }
}

func NewScheduler(store market.Store, source market.Source, stats *Stats, symbols []string, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:       store,
		source:      source,
		stats:       stats,
		symbols:     symbols,
		symbolDelay: defaultSymbolDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run loops on the schedule's cadence until ctx is cancelled. A tick that
// errors never terminates the loop; it logs and sleeps the fallback delay.
func (s *Scheduler) Run(ctx context.Context, sched market.SyncSchedule) {
	logx.Infof("sync loop %s/%s started (every %s, %d symbols)",
		s.source.Name(), sched.Interval, sched.Every, len(s.symbols))
	for {
		delay := sched.Every
		if err := s.tick(ctx, sched); err != nil {
			if ctx.Err() != nil {
				logx.Infof("sync loop %s/%s stopped", s.source.Name(), sched.Interval)
				return
			}
			logx.Errorf("sync loop %s/%s tick failed: %v", s.source.Name(), sched.Interval, err)
			s.stats.AddError()
			delay = fallbackTickDelay
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			logx.Infof("sync loop %s/%s stopped", s.source.Name(), sched.Interval)
			return
		}
	}
}

// tick sweeps every symbol once. A symbol failure logs, counts, and moves on;
// the error return is reserved for context cancellation and whole-tick faults.
func (s *Scheduler) tick(ctx context.Context, sched market.SyncSchedule) error {
	for i, symbol := range s.symbols {
		if err := s.syncSymbol(ctx, symbol, sched); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logx.WithContext(ctx).Errorf("sync %s %s: %v", symbol, sched.Interval, err)
			s.stats.AddError()
		}
		if i < len(s.symbols)-1 && s.symbolDelay > 0 {
			select {
			case <-time.After(s.symbolDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	s.stats.MarkSynced(sched.Interval)
	return nil
}

func (s *Scheduler) syncSymbol(ctx context.Context, symbol string, sched market.SyncSchedule) error {
	s.stats.AddAPICalls(1)
	candles, err := s.source.FetchRecent(ctx, symbol, sched.Interval, sched.FetchCount)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return nil
	}
	inserted, updated, err := s.store.BulkUpsert(ctx, candles, len(candles))
	if err != nil {
		return err
	}
	s.stats.AddSynced(inserted + updated)
	if s.onLatest != nil {
		s.onLatest(candles[len(candles)-1])
	}
	return nil
}
