package strategy

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"tradepulse/pkg/market"
	"tradepulse/pkg/ta"
)

const (
	// analysisBars is how many bars each evaluation loads from the store.
	analysisBars = 200

	defaultCadence = time.Minute
)

// Emitter receives every generated signal; the signal manager implements it.
type Emitter interface {
	Emit(ctx context.Context, sig *Signal)
}

// Orchestrator evaluates all enabled strategies for every tracked
// (symbol, interval) pair on a cadence, reading candles from the store.
type Orchestrator struct {
	store      market.Store
	emitter    Emitter
	strategies []Strategy
	symbols    []string
	interval   market.Interval
	cadence    time.Duration
}

// NewOrchestrator builds the strategy set from the rule config.
func NewOrchestrator(cfg *Config, store market.Store, emitter Emitter, symbols []string, interval market.Interval, cadence time.Duration) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cadence <= 0 {
		cadence = defaultCadence
	}
	all := []Strategy{
		NewBreakout(cfg.Breakout),
		NewBounce(cfg.Bounce),
		NewMomentum(cfg.Momentum),
		NewFalseBreakout(cfg.FalseBreakout),
	}
	enabled := make([]Strategy, 0, len(all))
	for _, s := range all {
		if cfg.Enabled(s.Name()) {
			enabled = append(enabled, s)
		}
	}
	return &Orchestrator{
		store:      store,
		emitter:    emitter,
		strategies: enabled,
		symbols:    symbols,
		interval:   interval,
		cadence:    cadence,
	}
}

// Run evaluates on the cadence until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	logx.Infof("strategy orchestrator started: %d strategies, %d symbols, %s cadence",
		len(o.strategies), len(o.symbols), o.cadence)
	ticker := time.NewTicker(o.cadence)
	defer ticker.Stop()
	for {
		o.RunOnce(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			logx.Info("strategy orchestrator stopped")
			return
		}
	}
}

// RunOnce evaluates every pair once. Failures log and continue; one symbol's
// data problem never blocks the sweep.
func (o *Orchestrator) RunOnce(ctx context.Context) {
	end := time.Now().UTC()
	start := end.Add(-o.interval.Duration() * analysisBars)
	for _, symbol := range o.symbols {
		if ctx.Err() != nil {
			return
		}
		candles, err := o.store.Range(ctx, symbol, o.interval, start, end, analysisBars)
		if err != nil {
			logx.WithContext(ctx).Errorf("strategy sweep %s %s: %v", symbol, o.interval, err)
			continue
		}
		snap := Snapshot{Symbol: symbol, Interval: o.interval, TA: ta.NewContext(candles)}
		if snap.TA == nil {
			continue
		}
		for _, strat := range o.strategies {
			sig, err := strat.Evaluate(ctx, snap)
			if err != nil {
				logx.WithContext(ctx).Errorf("strategy %s %s: %v", strat.Name(), symbol, err)
				continue
			}
			if sig == nil {
				continue
			}
			sig.CreatedAt = time.Now().UTC()
			if o.emitter != nil {
				o.emitter.Emit(ctx, sig)
			}
		}
	}
}
