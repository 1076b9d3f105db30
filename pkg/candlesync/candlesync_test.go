package candlesync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepulse/pkg/market"
)

// memStore is an in-memory market.Store with upsert-keyed rows.
type memStore struct {
	mu   sync.Mutex
	rows map[string]market.Candle
}

func newMemStore() *memStore {
	return &memStore{rows: map[string]market.Candle{}}
}

func (s *memStore) Upsert(_ context.Context, c market.Candle) (bool, error) {
	if c.High < c.Low {
		return false, fmt.Errorf("%w: high below low", market.ErrInvalidCandle)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.rows[c.Key()]
	s.rows[c.Key()] = c
	return !exists, nil
}

func (s *memStore) BulkUpsert(ctx context.Context, candles []market.Candle, _ int) (int, int, error) {
	var inserted, updated int
	for _, c := range candles {
		ok, err := s.Upsert(ctx, c)
		if err != nil {
			continue // bad row skipped, batch continues
		}
		if ok {
			inserted++
		} else {
			updated++
		}
	}
	return inserted, updated, nil
}

func (s *memStore) sorted(symbol string, interval market.Interval) []market.Candle {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []market.Candle
	for _, c := range s.rows {
		if c.Symbol == symbol && c.Interval == interval {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	return out
}

func (s *memStore) Latest(_ context.Context, symbol string, interval market.Interval) (*market.Candle, error) {
	all := s.sorted(symbol, interval)
	if len(all) == 0 {
		return nil, nil
	}
	c := all[len(all)-1]
	return &c, nil
}

func (s *memStore) LatestOpenTime(ctx context.Context, symbol string, interval market.Interval) (*time.Time, error) {
	c, err := s.Latest(ctx, symbol, interval)
	if err != nil || c == nil {
		return nil, err
	}
	ts := c.OpenTime
	return &ts, nil
}

func (s *memStore) Count(_ context.Context, symbol string, interval market.Interval) (int64, error) {
	return int64(len(s.sorted(symbol, interval))), nil
}

func (s *memStore) Range(_ context.Context, symbol string, interval market.Interval, start, end time.Time, limit int) ([]market.Candle, error) {
	var out []market.Candle
	for _, c := range s.sorted(symbol, interval) {
		if !c.OpenTime.Before(start) && !c.OpenTime.After(end) {
			out = append(out, c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// fakeSource serves synthetic bars and can be told to fail.
type fakeSource struct {
	mu          sync.Mutex
	bars        map[string][]market.Candle // per symbol, ascending
	lookback    time.Duration
	pageSize    int
	failSymbols map[string]bool
	failFetches int // fail this many FetchRange calls, then recover
	rangeStarts []time.Time
	unsupported map[market.Interval]bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		bars:        map[string][]market.Candle{},
		lookback:    365 * 24 * time.Hour,
		pageSize:    200,
		failSymbols: map[string]bool{},
		unsupported: map[market.Interval]bool{},
	}
}

func (f *fakeSource) addBars(symbol string, interval market.Interval, start time.Time, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		c, err := market.NewCandle(symbol, interval, start.Add(time.Duration(i)*interval.Duration()),
			100+float64(i), 110+float64(i), 95+float64(i), 105+float64(i), 1000)
		if err != nil {
			panic(err)
		}
		f.bars[symbol] = append(f.bars[symbol], c)
	}
	sort.Slice(f.bars[symbol], func(i, j int) bool {
		return f.bars[symbol][i].OpenTime.Before(f.bars[symbol][j].OpenTime)
	})
}

func (f *fakeSource) Name() string  { return "fake" }
func (f *fakeSource) PageSize() int { return f.pageSize }

func (f *fakeSource) MaxLookback(market.Interval) time.Duration { return f.lookback }

func (f *fakeSource) SupportsInterval(interval market.Interval) bool { return !f.unsupported[interval] }

func (f *fakeSource) FetchRecent(_ context.Context, symbol string, _ market.Interval, count int) ([]market.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSymbols[symbol] {
		return nil, errors.New("fake: provider down")
	}
	all := f.bars[symbol]
	if len(all) > count {
		all = all[len(all)-count:]
	}
	return append([]market.Candle(nil), all...), nil
}

func (f *fakeSource) FetchRange(_ context.Context, symbol string, _ market.Interval, start, end time.Time) ([]market.Candle, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFetches > 0 {
		f.failFetches--
		return nil, start, errors.New("fake: transient failure")
	}
	if f.failSymbols[symbol] {
		return nil, start, errors.New("fake: provider down")
	}
	f.rangeStarts = append(f.rangeStarts, start)
	var out []market.Candle
	for _, c := range f.bars[symbol] {
		if !c.OpenTime.Before(start) && c.OpenTime.Before(end) {
			out = append(out, c)
		}
	}
	return out, start, nil
}

func alignedNow() time.Time {
	return time.Now().UTC().Truncate(time.Hour)
}

func TestBackfillConvergence(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	source := newFakeSource()
	now := alignedNow()
	// 48 closed bars; the bar opening at now is still forming and not served.
	source.addBars("BTCUSDT", market.Interval1h, now.Add(-48*time.Hour), 48)

	stats := NewStats()
	bf := NewBackfiller(store, source, stats, WithPageDelay(0))

	gap := market.DetectGap(nil, market.Interval1h, now, source.MaxLookback(market.Interval1h))
	require.True(t, gap.HasGap, "empty store should report a gap")
	require.True(t, gap.FullHistory, "empty store means full history needed")

	written, err := bf.Fill(ctx, "BTCUSDT", market.Interval1h, gap)
	require.NoError(t, err, "fill should succeed")
	assert.Equal(t, 48, written, "all provider bars written")

	count, err := store.Count(ctx, "BTCUSDT", market.Interval1h)
	require.NoError(t, err)
	assert.EqualValues(t, 48, count, "store holds every bar once")

	latest, err := store.LatestOpenTime(ctx, "BTCUSDT", market.Interval1h)
	require.NoError(t, err)
	after := market.DetectGap(latest, market.Interval1h, now, source.MaxLookback(market.Interval1h))
	assert.False(t, after.HasGap, "a filled series reports no gap")
}

func TestBackfillIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	source := newFakeSource()
	now := alignedNow()
	source.addBars("ETHUSDT", market.Interval1h, now.Add(-10*time.Hour), 10)

	bf := NewBackfiller(store, source, NewStats(), WithPageDelay(0))
	gap := market.DetectGap(nil, market.Interval1h, now, source.MaxLookback(market.Interval1h))

	_, err := bf.Fill(ctx, "ETHUSDT", market.Interval1h, gap)
	require.NoError(t, err)
	_, err = bf.Fill(ctx, "ETHUSDT", market.Interval1h, gap)
	require.NoError(t, err, "refilling the same gap should not error")

	count, _ := store.Count(ctx, "ETHUSDT", market.Interval1h)
	assert.EqualValues(t, 10, count, "refill overwrites, never duplicates")
}

func TestBackfillClampsToProviderHistory(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	source := newFakeSource()
	source.lookback = 24 * time.Hour
	now := alignedNow()
	source.addBars("BTCUSDT", market.Interval1h, now.Add(-23*time.Hour), 24)

	bf := NewBackfiller(store, source, NewStats(), WithPageDelay(0))
	gap := market.GapInfo{
		HasGap:  true,
		Start:   now.Add(-10 * 24 * time.Hour),
		End:     now,
		Missing: 240,
	}
	_, err := bf.Fill(ctx, "BTCUSDT", market.Interval1h, gap)
	require.NoError(t, err, "a clamped range is not an error")

	require.NotEmpty(t, source.rangeStarts, "at least one fetch issued")
	for _, start := range source.rangeStarts {
		assert.False(t, start.Before(now.Add(-25*time.Hour)),
			"requested start %s should be clamped to the 24h horizon", start)
	}
}

func TestBackfillSkipsFailingPageAndContinues(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	source := newFakeSource()
	source.pageSize = 10
	now := alignedNow()
	source.addBars("BTCUSDT", market.Interval1h, now.Add(-29*time.Hour), 30)
	// First page fails through its whole retry budget, then the source recovers.
	source.failFetches = pageRetries + 1

	bf := NewBackfiller(store, source, NewStats(), WithPageDelay(0))
	gap := market.GapInfo{HasGap: true, Start: now.Add(-30 * time.Hour), End: now, Missing: 30}
	written, err := bf.Fill(ctx, "BTCUSDT", market.Interval1h, gap)
	require.NoError(t, err, "a skipped page is not a fill error")
	assert.Greater(t, written, 0, "later pages still written after one page is abandoned")

	count, _ := store.Count(ctx, "BTCUSDT", market.Interval1h)
	assert.Less(t, count, int64(30), "the abandoned page's bars are missing")
	assert.Greater(t, count, int64(0), "the remaining pages landed")
}

func TestBulkUpsertSkipsInvalidRow(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	now := alignedNow()

	var batch []market.Candle
	for i := 0; i < 3; i++ {
		c, err := market.NewCandle("BTCUSDT", market.Interval1h, now.Add(time.Duration(i)*time.Hour),
			100, 110, 95, 105, 1000)
		require.NoError(t, err)
		batch = append(batch, c)
	}
	batch[1].High, batch[1].Low = 90, 120 // corrupted in transit

	inserted, updated, err := store.BulkUpsert(ctx, batch, 10)
	require.NoError(t, err, "one bad row never fails the batch")
	assert.Equal(t, 2, inserted)
	assert.Equal(t, 0, updated)
	count, _ := store.Count(ctx, "BTCUSDT", market.Interval1h)
	assert.EqualValues(t, 2, count, "the invalid row was rejected")
}

func TestSchedulerTickSurvivesOneSymbolFailing(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	source := newFakeSource()
	now := alignedNow()
	for _, symbol := range []string{"AAA", "BBB", "CCC"} {
		source.addBars(symbol, market.Interval1h, now.Add(-time.Hour), 2)
	}
	source.failSymbols["BBB"] = true

	stats := NewStats()
	sched := NewScheduler(store, source, stats, []string{"AAA", "BBB", "CCC"}, WithSymbolDelay(0))
	err := sched.tick(ctx, market.SyncSchedule{Interval: market.Interval1h, Every: time.Hour, FetchCount: 2})
	require.NoError(t, err, "a symbol failure never fails the tick")

	for _, symbol := range []string{"AAA", "CCC"} {
		count, _ := store.Count(ctx, symbol, market.Interval1h)
		assert.EqualValues(t, 2, count, "symbol %s synced despite BBB failing", symbol)
	}
	count, _ := store.Count(ctx, "BBB", market.Interval1h)
	assert.EqualValues(t, 0, count)
	assert.EqualValues(t, 1, stats.Snapshot().Errors, "the failure was counted")
}

func TestStartupThenLiveTick(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	source := newFakeSource()
	now := alignedNow()
	source.addBars("BTCUSDT", market.Interval1h, now.Add(-48*time.Hour), 48)

	stats := NewStats()
	bf := NewBackfiller(store, source, stats, WithPageDelay(0))
	gap := market.DetectGap(nil, market.Interval1h, now, source.MaxLookback(market.Interval1h))
	_, err := bf.Fill(ctx, "BTCUSDT", market.Interval1h, gap)
	require.NoError(t, err)

	count, _ := store.Count(ctx, "BTCUSDT", market.Interval1h)
	require.EqualValues(t, 48, count, "startup pass catches the store up")

	// A new bar closes; one live tick should pick it up without duplicating
	// the re-fetched previous bar.
	source.addBars("BTCUSDT", market.Interval1h, now, 1)
	sched := NewScheduler(store, source, stats, []string{"BTCUSDT"}, WithSymbolDelay(0))
	err = sched.tick(ctx, market.SyncSchedule{Interval: market.Interval1h, Every: time.Hour, FetchCount: 2})
	require.NoError(t, err)

	count, _ = store.Count(ctx, "BTCUSDT", market.Interval1h)
	assert.EqualValues(t, 49, count, "exactly one new row after the tick")
}

func TestEnsureMinimumTopsUpShortSeries(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	source := newFakeSource()
	now := alignedNow()
	source.addBars("MES", market.Interval1h, now.Add(-100*time.Hour), 100)

	bf := NewBackfiller(store, source, NewStats(), WithPageDelay(0))
	written, err := bf.EnsureMinimum(ctx, "MES", market.Interval1h, 50)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, written, 50, "the shortfall was fetched")

	count, _ := store.Count(ctx, "MES", market.Interval1h)
	assert.GreaterOrEqual(t, count, int64(50), "series meets the minimum")

	// Already satisfied: a second call is a no-op.
	written, err = bf.EnsureMinimum(ctx, "MES", market.Interval1h, 50)
	require.NoError(t, err)
	assert.Zero(t, written)
}

func TestCoordinatorConfigValidation(t *testing.T) {
	store, source := newMemStore(), newFakeSource()

	_, err := New(Config{Name: "crypto"}, store, source)
	assert.Error(t, err, "empty symbol list must fail startup")

	_, err = New(Config{
		Name:      "crypto",
		Symbols:   []string{"BTCUSDT"},
		Schedules: []market.SyncSchedule{{Interval: "3m", Every: time.Minute, FetchCount: 2}},
	}, store, source)
	assert.Error(t, err, "unsupported interval must fail startup")

	source.unsupported[market.Interval4h] = true
	_, err = New(Config{
		Name:      "futures",
		Symbols:   []string{"MES"},
		Schedules: []market.SyncSchedule{{Interval: market.Interval4h, Every: 4 * time.Hour, FetchCount: 2}},
	}, store, source)
	assert.Error(t, err,
		"a granularity the provider never serves must fail startup, not error on every tick")
}

// blockingSource parks every range fetch until the context is cancelled,
// simulating a startup backfill against a slow or hung provider.
type blockingSource struct {
	*fakeSource
	entered chan struct{}
	once    sync.Once
}

func (b *blockingSource) FetchRange(ctx context.Context, _ string, _ market.Interval, start, _ time.Time) ([]market.Candle, time.Time, error) {
	b.once.Do(func() { close(b.entered) })
	<-ctx.Done()
	return nil, start, ctx.Err()
}

func TestStopCancelsStartupBackfill(t *testing.T) {
	store := newMemStore()
	source := &blockingSource{fakeSource: newFakeSource(), entered: make(chan struct{})}

	coord, err := New(Config{
		Name:             "crypto",
		Symbols:          []string{"BTCUSDT"},
		Schedules:        []market.SyncSchedule{{Interval: market.Interval1h, Every: time.Hour, FetchCount: 2}},
		CheckGapsOnStart: true,
	}, store, source)
	require.NoError(t, err)

	startErr := make(chan error, 1)
	go func() { startErr <- coord.Start(context.Background()) }()

	select {
	case <-source.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("startup backfill never reached the source")
	}
	coord.Stop()

	select {
	case err := <-startErr:
		assert.ErrorIs(t, err, context.Canceled, "a stopped startup pass reports cancellation")
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop; the startup pass held the lock")
	}
	assert.False(t, coord.Health().Running)
}

func TestCoordinatorStartStop(t *testing.T) {
	store := newMemStore()
	source := newFakeSource()
	now := alignedNow()
	source.addBars("BTCUSDT", market.Interval1h, now.Add(-5*time.Hour), 6)

	coord, err := New(Config{
		Name:             "crypto",
		Symbols:          []string{"BTCUSDT"},
		Schedules:        []market.SyncSchedule{{Interval: market.Interval1h, Every: 10 * time.Millisecond, FetchCount: 2}},
		CheckGapsOnStart: true,
		SymbolDelay:      time.Nanosecond,
	}, store, source)
	require.NoError(t, err)

	require.NoError(t, coord.Start(context.Background()))
	assert.Error(t, coord.Start(context.Background()), "double start is rejected")

	assert.Eventually(t, func() bool {
		return coord.Stats().CandlesSynced >= 6
	}, 2*time.Second, 10*time.Millisecond, "startup pass plus ticks should sync bars")

	health := coord.Health()
	assert.True(t, health.Running)
	assert.True(t, health.Healthy)

	coord.Stop()
	assert.False(t, coord.Health().Running, "stopped coordinator reports not running")

	count, _ := store.Count(context.Background(), "BTCUSDT", market.Interval1h)
	assert.EqualValues(t, 6, count, "no duplicates despite backfill and ticks racing")
}
