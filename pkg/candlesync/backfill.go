package candlesync

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"tradepulse/pkg/market"
)

const (
	// maxPagesPerFill bounds the worst-case work one gap can cost.
	maxPagesPerFill = 50
	// pageRetries is the per-page retry budget before the page is skipped.
	pageRetries = 2
	// minimumFillRounds caps EnsureMinimum re-attempts. Weekends and holidays
	// thin out futures bars, so one fetch round can come up short.
	minimumFillRounds = 3

	defaultPageDelay = 250 * time.Millisecond
)

// Backfiller fills detected gaps with bounded, resumable fetch+store cycles.
type Backfiller struct {
	store     market.Store
	source    market.Source
	stats     *Stats
	pageDelay time.Duration
	maxPages  int
}

// BackfillOption configures a Backfiller.
type BackfillOption func(*Backfiller)

// WithPageDelay sets the politeness delay between paginated requests.
func WithPageDelay(d time.Duration) BackfillOption {
	return func(b *Backfiller) {
		if d >= 0 {
			b.pageDelay = d
		}
	}
}

// WithMaxPages overrides the per-gap request ceiling.
func WithMaxPages(n int) BackfillOption {
	return func(b *Backfiller) {
		if n > 0 {
			b.maxPages = n
		}
	}
}

func NewBackfiller(store market.Store, source market.Source, stats *Stats, opts ...BackfillOption) *Backfiller {
	b := &Backfiller{
		store:     store,
		source:    source,
		stats:     stats,
		pageDelay: defaultPageDelay,
		maxPages:  maxPagesPerFill,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Fill walks the gap newest-to-oldest one provider page at a time, bulk
// upserting each page. The gap start is clamped to the provider's history
// depth first; a page that keeps failing after retries is skipped, not fatal.
// Returns the number of rows written (inserted plus updated).
func (b *Backfiller) Fill(ctx context.Context, symbol string, interval market.Interval, gap market.GapInfo) (int, error) {
	if !gap.HasGap || gap.Missing == 0 {
		return 0, nil
	}

	start, end := gap.Start, gap.End
	if horizon := time.Now().UTC().Add(-b.source.MaxLookback(interval)); start.Before(horizon) {
		logx.WithContext(ctx).Infof("backfill %s %s: start %s clamped to provider horizon %s",
			symbol, interval, start.Format(time.RFC3339), horizon.Format(time.RFC3339))
		start = horizon
	}
	if !start.Before(end) {
		return 0, nil
	}

	pageSize := b.source.PageSize()
	pages := (gap.Missing + pageSize - 1) / pageSize
	if pages > b.maxPages {
		logx.WithContext(ctx).Infof("backfill %s %s: %d missing bars need %d pages, capping at %d",
			symbol, interval, gap.Missing, pages, b.maxPages)
		pages = b.maxPages
	}

	pageSpan := interval.Duration() * time.Duration(pageSize)
	written := 0
	cursor := end

	for page := 0; page < pages && cursor.After(start); page++ {
		windowStart := cursor.Add(-pageSpan)
		if windowStart.Before(start) {
			windowStart = start
		}

		candles, fetchErr := b.fetchPage(ctx, symbol, interval, windowStart, cursor)
		if fetchErr != nil {
			if ctx.Err() != nil {
				return written, ctx.Err()
			}
			logx.WithContext(ctx).Errorf("backfill %s %s: page [%s, %s) abandoned: %v",
				symbol, interval, windowStart.Format(time.RFC3339), cursor.Format(time.RFC3339), fetchErr)
			b.stats.AddError()
			cursor = windowStart
			continue
		}

		if len(candles) == 0 {
			// The provider ran out of history before the gap start.
			break
		}
		inserted, updated, err := b.store.BulkUpsert(ctx, candles, pageSize)
		if err != nil {
			return written, err
		}
		written += inserted + updated
		b.stats.AddSynced(inserted + updated)

		// Nothing older to page for once a page reaches the gap start.
		if !candles[0].OpenTime.After(start) {
			break
		}

		cursor = windowStart
		if cursor.After(start) && b.pageDelay > 0 {
			select {
			case <-time.After(b.pageDelay):
			case <-ctx.Done():
				return written, ctx.Err()
			}
		}
	}

	return written, nil
}

func (b *Backfiller) fetchPage(ctx context.Context, symbol string, interval market.Interval, start, end time.Time) ([]market.Candle, error) {
	var lastErr error
	for attempt := 0; attempt <= pageRetries; attempt++ {
		b.stats.AddAPICalls(1)
		candles, _, err := b.source.FetchRange(ctx, symbol, interval, start, end)
		if err == nil {
			return candles, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logx.WithContext(ctx).Infof("backfill %s %s: fetch attempt %d/%d failed: %v",
			symbol, interval, attempt+1, pageRetries+1, err)
	}
	return nil, lastErr
}

// EnsureMinimum tops a series up to at least min bars by synthesizing a gap
// over the shortfall and reusing Fill. The fetch window widens each round so
// thin trading calendars still converge.
func (b *Backfiller) EnsureMinimum(ctx context.Context, symbol string, interval market.Interval, min int) (int, error) {
	if min <= 0 {
		return 0, nil
	}
	written := 0
	for round := 1; round <= minimumFillRounds; round++ {
		count, err := b.store.Count(ctx, symbol, interval)
		if err != nil {
			return written, err
		}
		if count >= int64(min) {
			return written, nil
		}

		shortfall := min - int(count)
		now := time.Now().UTC()
		gap := market.GapInfo{
			HasGap:  true,
			Start:   now.Add(-interval.Duration() * time.Duration(shortfall*round)),
			End:     now,
			Missing: shortfall * round,
		}
		logx.WithContext(ctx).Infof("ensure-minimum %s %s: have %d of %d bars, round %d",
			symbol, interval, count, min, round)

		n, err := b.Fill(ctx, symbol, interval, gap)
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			// The provider has no more history to give.
			break
		}
	}
	return written, nil
}
