package candlesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"tradepulse/pkg/market"
)

const (
	// stopJoinTimeout bounds how long Stop waits for the loops to drain.
	stopJoinTimeout = 10 * time.Second
	// healthErrorThreshold is the error count past which Health degrades.
	healthErrorThreshold = 50
	// healthGracePeriod is how long after Start a coordinator with no synced
	// bars yet still reports healthy.
	healthGracePeriod = 2 * time.Minute
)

// Config describes one coordinator instance: which symbols to track against
// one source, on which cadences.
type Config struct {
	// Name distinguishes coordinators in logs and stats (e.g. "crypto").
	Name    string
	Symbols []string
	// Schedules defaults to market.DefaultSchedules() when empty.
	Schedules []market.SyncSchedule
	// CheckGapsOnStart runs the detect-and-backfill pass before any loop starts.
	CheckGapsOnStart bool
	// MinCandles, when positive, tops every series up to at least this many
	// bars during startup.
	MinCandles int
	// SymbolDelay is the pause between symbols within one sweep.
	SymbolDelay time.Duration
	// OnLatest, when set, receives the newest bar of each swept series.
	OnLatest func(market.Candle)
}

// Coordinator owns the symbol set and schedules for one source, runs the
// startup catch-up pass, and supervises the per-interval loops.
type Coordinator struct {
	cfg        Config
	store      market.Store
	source     market.Source
	stats      *Stats
	backfiller *Backfiller
	scheduler  *Scheduler

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool
	// startedAt holds unix nanos; written by Start, read lock-free by Health.
	startedAt atomic.Int64
}

// New validates the configuration and wires a coordinator. An empty symbol
// list or a schedule over an unsupported interval is a startup error; nothing
// else fails construction.
func New(cfg Config, store market.Store, source market.Source) (*Coordinator, error) {
	if store == nil || source == nil {
		return nil, errors.New("candlesync: store and source are required")
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("candlesync %s: no symbols configured", cfg.Name)
	}
	if len(cfg.Schedules) == 0 {
		cfg.Schedules = market.DefaultSchedules()
	}
	for _, sched := range cfg.Schedules {
		if !sched.Interval.Valid() {
			return nil, fmt.Errorf("candlesync %s: unsupported interval %q", cfg.Name, sched.Interval)
		}
		if !source.SupportsInterval(sched.Interval) {
			return nil, fmt.Errorf("candlesync %s: source %s does not serve interval %s",
				cfg.Name, source.Name(), sched.Interval)
		}
		if sched.Every <= 0 {
			return nil, fmt.Errorf("candlesync %s: non-positive cadence for %s", cfg.Name, sched.Interval)
		}
	}
	if cfg.Name == "" {
		cfg.Name = source.Name()
	}

	stats := NewStats()
	schedOpts := []SchedulerOption{}
	if cfg.SymbolDelay > 0 {
		schedOpts = append(schedOpts, WithSymbolDelay(cfg.SymbolDelay))
	}
	if cfg.OnLatest != nil {
		schedOpts = append(schedOpts, WithLatestHook(cfg.OnLatest))
	}
	return &Coordinator{
		cfg:        cfg,
		store:      store,
		source:     source,
		stats:      stats,
		backfiller: NewBackfiller(store, source, stats),
		scheduler:  NewScheduler(store, source, stats, cfg.Symbols, schedOpts...),
	}, nil
}

// Start runs the startup catch-up pass (when configured), then spawns one
// supervised loop per schedule. It returns once the loops are running;
// catch-up errors degrade to logs, they never abort startup.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return fmt.Errorf("candlesync %s: already started", c.cfg.Name)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.startedAt.Store(time.Now().UTC().UnixNano())
	c.mu.Unlock()

	// The catch-up pass runs outside the lock: Stop cancels a slow startup
	// backfill instead of blocking behind it.
	if c.cfg.CheckGapsOnStart {
		c.catchUp(loopCtx)
	}
	if c.cfg.MinCandles > 0 {
		c.ensureMinimums(loopCtx)
	}
	if loopCtx.Err() != nil {
		c.mu.Lock()
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
		c.mu.Unlock()
		return loopCtx.Err()
	}

	var wg sync.WaitGroup
	done := make(chan struct{})
	for _, sched := range c.cfg.Schedules {
		wg.Add(1)
		go func(sched market.SyncSchedule) {
			defer wg.Done()
			c.scheduler.Run(loopCtx, sched)
		}(sched)
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	c.mu.Lock()
	if c.cancel == nil {
		// Stop raced the startup pass; the loops exit on the cancelled context.
		c.mu.Unlock()
		return context.Canceled
	}
	c.done = done
	c.running.Store(true)
	c.mu.Unlock()
	logx.Infof("coordinator %s started: %d symbols, %d interval loops",
		c.cfg.Name, len(c.cfg.Symbols), len(c.cfg.Schedules))
	return nil
}

// catchUp runs gap detection and backfill for every (symbol, interval) pair.
func (c *Coordinator) catchUp(ctx context.Context) {
	for _, sched := range c.cfg.Schedules {
		for _, symbol := range c.cfg.Symbols {
			if ctx.Err() != nil {
				return
			}
			latest, err := c.store.LatestOpenTime(ctx, symbol, sched.Interval)
			if err != nil {
				logx.WithContext(ctx).Errorf("gap check %s %s: %v", symbol, sched.Interval, err)
				c.stats.AddError()
				continue
			}
			gap := market.DetectGap(latest, sched.Interval, time.Now().UTC(), c.source.MaxLookback(sched.Interval))
			if !gap.HasGap {
				continue
			}
			c.stats.AddGapFound()
			if gap.TooLarge {
				logx.Infof("gap %s %s: %d bars exceeds the auto-fill ceiling, filling the cap only",
					symbol, sched.Interval, gap.Missing)
			}
			written, err := c.backfiller.Fill(ctx, symbol, sched.Interval, gap)
			if err != nil {
				logx.WithContext(ctx).Errorf("backfill %s %s: %v", symbol, sched.Interval, err)
				c.stats.AddError()
				continue
			}
			if written > 0 {
				c.stats.AddGapFilled()
				logx.Infof("backfill %s %s: wrote %d bars", symbol, sched.Interval, written)
			}
		}
	}
}

func (c *Coordinator) ensureMinimums(ctx context.Context) {
	for _, sched := range c.cfg.Schedules {
		for _, symbol := range c.cfg.Symbols {
			if ctx.Err() != nil {
				return
			}
			if _, err := c.backfiller.EnsureMinimum(ctx, symbol, sched.Interval, c.cfg.MinCandles); err != nil {
				logx.WithContext(ctx).Errorf("ensure-minimum %s %s: %v", symbol, sched.Interval, err)
				c.stats.AddError()
			}
		}
	}
}

// Stop cancels every loop and waits for them to drain, bounded by
// stopJoinTimeout. In-flight fetches complete or time out naturally.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		select {
		case <-done:
		case <-time.After(stopJoinTimeout):
			logx.Errorf("coordinator %s: loops did not drain within %s", c.cfg.Name, stopJoinTimeout)
		}
	}
	c.running.Store(false)
	logx.Infof("coordinator %s stopped", c.cfg.Name)
}

// Name returns the coordinator's configured name.
func (c *Coordinator) Name() string { return c.cfg.Name }

// Stats returns a point-in-time snapshot of the counters.
func (c *Coordinator) Stats() Snapshot { return c.stats.Snapshot() }

// Health reports liveness for the health endpoint.
type Health struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
	Healthy bool   `json:"healthy"`
	Errors  int64  `json:"errors"`
	Synced  int64  `json:"synced"`
}

// Health is healthy while the loops run, the error count stays under the
// threshold, and at least one bar has synced (or the process just started).
func (c *Coordinator) Health() Health {
	snap := c.stats.Snapshot()
	running := c.running.Load()
	syncedOnce := snap.CandlesSynced > 0
	justStarted := time.Since(time.Unix(0, c.startedAt.Load())) < healthGracePeriod
	return Health{
		Name:    c.cfg.Name,
		Running: running,
		Healthy: running && snap.Errors < healthErrorThreshold && (syncedOnce || justStarted),
		Errors:  snap.Errors,
		Synced:  snap.CandlesSynced,
	}
}
