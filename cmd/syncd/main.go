// Command syncd is the candle synchronization daemon: it backfills gaps on
// startup, keeps every configured series current, runs the strategy sweep
// over the stored candles, and routes emitted signals to Telegram and
// Postgres. The REST process stays read-only; syncd owns all writes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"tradepulse/internal/cli"
	"tradepulse/internal/config"
	"tradepulse/internal/svc"
	"tradepulse/pkg/candlesync"
	"tradepulse/pkg/journal"
	"tradepulse/pkg/market"
	"tradepulse/pkg/market/exchanges/bybit"
	"tradepulse/pkg/market/exchanges/yahoo"
	"tradepulse/pkg/notify/telegram"
	signalpkg "tradepulse/pkg/signal"
	"tradepulse/pkg/strategy"
)

const (
	statsPublishInterval = 30 * time.Second
	shutdownTimeout      = 15 * time.Second
)

var configFile = flag.String("f", "etc/tradepulse.yaml", "the config file")

func main() {
	flag.Parse()

	cfg := config.MustLoad(*configFile)
	cli.LogConfigSummary(cfg)
	svcCtx := svc.NewServiceContext(*cfg)
	if svcCtx.Candles == nil {
		fmt.Fprintln(os.Stderr, "syncd requires postgres.dsn to be configured")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := buildSignalManager(cfg, svcCtx)
	warmCooldowns(ctx, cfg, svcCtx, manager)

	coordinators := buildCoordinators(cfg, svcCtx)
	if len(coordinators) == 0 {
		fmt.Fprintln(os.Stderr, "no coordinators configured")
		os.Exit(1)
	}
	for _, coord := range coordinators {
		if err := coord.Start(ctx); err != nil {
			logx.Errorf("start coordinator %s: %v", coord.Name(), err)
			os.Exit(1)
		}
	}

	var wg sync.WaitGroup
	for _, orch := range buildOrchestrators(cfg, svcCtx, manager) {
		wg.Add(1)
		go func(o *strategy.Orchestrator) {
			defer wg.Done()
			o.Run(ctx)
		}(orch)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		publishStats(ctx, svcCtx, coordinators)
	}()

	logx.Infof("syncd started: %d coordinators", len(coordinators))
	<-ctx.Done()
	logx.Info("shutdown signal received")

	for _, coord := range coordinators {
		coord.Stop()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logx.Info("syncd stopped cleanly")
	case <-time.After(shutdownTimeout):
		logx.Error("shutdown timeout exceeded, forcing exit")
	}
}

// buildCoordinators wires one coordinator per configured block: crypto
// candles come from Bybit, futures candles from Yahoo Finance.
func buildCoordinators(cfg *config.Config, svcCtx *svc.ServiceContext) []*candlesync.Coordinator {
	var coordinators []*candlesync.Coordinator

	onLatest := func(c market.Candle) {
		svcCtx.Cache.SetLatest(context.Background(), c)
	}

	blocks := []struct {
		name   string
		conf   config.SyncConf
		source market.Source
	}{
		{"crypto", cfg.Crypto, bybit.NewClient()},
		{"futures", cfg.Futures, yahoo.NewClient()},
	}
	for _, block := range blocks {
		if len(block.conf.Symbols) == 0 {
			continue
		}
		coord, err := candlesync.New(candlesync.Config{
			Name:             block.name,
			Symbols:          block.conf.Symbols,
			Schedules:        block.conf.Schedules(),
			CheckGapsOnStart: block.conf.CheckGapsOnStart,
			MinCandles:       block.conf.MinCandles,
			SymbolDelay:      block.conf.SymbolDelay(),
			OnLatest:         onLatest,
		}, svcCtx.Candles, block.source)
		if err != nil {
			logx.Errorf("wire coordinator %s: %v", block.name, err)
			os.Exit(1)
		}
		coordinators = append(coordinators, coord)
	}
	return coordinators
}

// buildSignalManager assembles the signal pipeline: dedupe, optional LLM
// narration, Postgres archive, Telegram fan-out.
func buildSignalManager(cfg *config.Config, svcCtx *svc.ServiceContext) *signalpkg.Manager {
	opts := []signalpkg.ManagerOption{
		signalpkg.WithArchive(svc.NewSignalArchive(svcCtx.Signals)),
	}
	if cfg.OpenAI.APIKey != "" {
		opts = append(opts, signalpkg.WithNarrator(
			signalpkg.NewNarrator(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model)))
	}
	manager := signalpkg.NewManager(opts...)

	if cfg.Telegram.Token != "" && len(cfg.Telegram.ChatIDs) > 0 {
		bot := telegram.NewBot(cfg.Telegram.Token, cfg.Telegram.ChatIDs)
		manager.Subscribe(bot.Subscriber())
		logx.Infof("telegram notifications enabled for %d chats", len(cfg.Telegram.ChatIDs))
	}
	if cfg.JournalDir != "" {
		writer := journal.NewWriter(cfg.JournalDir)
		manager.Subscribe(func(ctx context.Context, sig *strategy.Signal) {
			if _, err := writer.Write(sig); err != nil {
				logx.WithContext(ctx).Errorf("signal journal %s: %v", sig.ID, err)
			}
		})
	}
	return manager
}

// warmCooldowns seeds the dedupe window from persisted signals so a restart
// does not re-broadcast setups that already fired.
func warmCooldowns(ctx context.Context, cfg *config.Config, svcCtx *svc.ServiceContext, manager *signalpkg.Manager) {
	symbols := append(append([]string{}, cfg.Crypto.Symbols...), cfg.Futures.Symbols...)
	for _, symbol := range symbols {
		for _, name := range strategy.Names() {
			rec, err := svcCtx.Signals.LatestByKey(ctx, symbol, name)
			if err != nil {
				logx.WithContext(ctx).Errorf("warm cooldown %s/%s: %v", symbol, name, err)
				continue
			}
			if rec != nil {
				manager.Warm(rec.Symbol, rec.Strategy, rec.CreatedAt)
			}
		}
	}
}

// buildOrchestrators runs one strategy sweep per configured block, on that
// block's shortest interval.
func buildOrchestrators(cfg *config.Config, svcCtx *svc.ServiceContext, manager *signalpkg.Manager) []*strategy.Orchestrator {
	var orchestrators []*strategy.Orchestrator
	for _, block := range []config.SyncConf{cfg.Crypto, cfg.Futures} {
		if len(block.Symbols) == 0 {
			continue
		}
		sched := shortestSchedule(block.Schedules())
		orchestrators = append(orchestrators, strategy.NewOrchestrator(
			cfg.Strategy.Value, svcCtx.Candles, manager,
			block.Symbols, sched.Interval, sched.Every))
	}
	return orchestrators
}

func shortestSchedule(schedules []market.SyncSchedule) market.SyncSchedule {
	best := schedules[0]
	for _, sched := range schedules[1:] {
		if sched.Interval.Duration() < best.Interval.Duration() {
			best = sched
		}
	}
	return best
}

// publishStats pushes each coordinator's counters to Redis so the REST
// process can serve /api/health and /api/stats without shared memory.
func publishStats(ctx context.Context, svcCtx *svc.ServiceContext, coordinators []*candlesync.Coordinator) {
	ticker := time.NewTicker(statsPublishInterval)
	defer ticker.Stop()
	for {
		for _, coord := range coordinators {
			snap := coord.Stats()
			svcCtx.Cache.PublishStats(ctx, coord.Name(), &snap)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
