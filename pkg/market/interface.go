package market

import (
	"context"
	"time"
)

// Source is an external market-data provider. Implementations translate our
// symbols/intervals into provider vocabulary, paginate, throttle, and return
// validated candles oldest first.
type Source interface {
	// Name tags candles persisted from this source.
	Name() string
	// FetchRecent returns the most recent count bars. The newest bar may still be
	// open; callers are expected to upsert so the final values win later.
	FetchRecent(ctx context.Context, symbol string, interval Interval, count int) ([]Candle, error)
	// FetchRange returns all bars with open time in [start, end), issuing as many
	// paginated requests as the provider requires. When start predates the
	// provider's history window it is clamped upward, not failed; the returned
	// fetchedFrom reports the range actually requested.
	FetchRange(ctx context.Context, symbol string, interval Interval, start, end time.Time) (candles []Candle, fetchedFrom time.Time, err error)
	// MaxLookback is the provider-imposed history depth for an interval.
	MaxLookback(interval Interval) time.Duration
	// SupportsInterval reports whether the provider serves this granularity at
	// all. Schedules over unsupported intervals are rejected at startup instead
	// of erroring on every poll.
	SupportsInterval(interval Interval) bool
	// PageSize is the provider's maximum bars per request.
	PageSize() int
}

// Store is the persistent candle table shared by the sync services and every
// downstream consumer. Writes are idempotent upserts keyed by
// (symbol, interval, open_time); implementations must be safe for concurrent use.
type Store interface {
	Upsert(ctx context.Context, c Candle) (inserted bool, err error)
	// BulkUpsert applies Upsert semantics in batches. A single bad row is skipped,
	// never aborting rows already written.
	BulkUpsert(ctx context.Context, candles []Candle, batchSize int) (inserted, updated int, err error)
	Latest(ctx context.Context, symbol string, interval Interval) (*Candle, error)
	LatestOpenTime(ctx context.Context, symbol string, interval Interval) (*time.Time, error)
	Count(ctx context.Context, symbol string, interval Interval) (int64, error)
	// Range returns candles with open time in [start, end], oldest first, capped
	// at limit when limit > 0.
	Range(ctx context.Context, symbol string, interval Interval, start, end time.Time, limit int) ([]Candle, error)
}
