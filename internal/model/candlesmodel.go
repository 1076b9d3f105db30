package model

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"tradepulse/pkg/market"
)

var _ market.Store = (*CandlesModel)(nil)

// defaultBulkBatchSize bounds a single multi-row insert statement.
const defaultBulkBatchSize = 500

type candleRow struct {
	Symbol      string          `db:"symbol"`
	Interval    string          `db:"interval"`
	OpenTime    time.Time       `db:"open_time"`
	CloseTime   time.Time       `db:"close_time"`
	Open        float64         `db:"open"`
	High        float64         `db:"high"`
	Low         float64         `db:"low"`
	Close       float64         `db:"close"`
	Volume      float64         `db:"volume"`
	QuoteVolume sql.NullFloat64 `db:"quote_volume"`
	TradeCount  sql.NullInt64   `db:"trade_count"`
	Source      sql.NullString  `db:"source"`
}

func (r candleRow) toCandle() market.Candle {
	c := market.Candle{
		Symbol:    r.Symbol,
		Interval:  market.Interval(r.Interval),
		OpenTime:  r.OpenTime.UTC(),
		CloseTime: r.CloseTime.UTC(),
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		Volume:    r.Volume,
	}
	if r.QuoteVolume.Valid {
		c.QuoteVolume = r.QuoteVolume.Float64
	}
	if r.TradeCount.Valid {
		c.TradeCount = r.TradeCount.Int64
	}
	if r.Source.Valid {
		c.Source = r.Source.String
	}
	return c
}

// CandlesModel persists OHLCV bars keyed by (symbol, interval, open_time).
// All writes are upserts so re-fetching a window never duplicates rows and a
// re-fetched bar (the last one is usually still forming) converges to its
// final values.
type CandlesModel struct {
	conn sqlx.SqlConn
}

// NewCandlesModel returns a model for the candles table.
func NewCandlesModel(conn sqlx.SqlConn) *CandlesModel {
	return &CandlesModel{conn: conn}
}

const upsertCandleQuery = `
INSERT INTO public.candles (
    symbol, interval, open_time, close_time,
    open, high, low, close, volume, quote_volume, trade_count, source,
    created_at, updated_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW()
)
ON CONFLICT (symbol, interval, open_time) DO UPDATE SET
    close_time = EXCLUDED.close_time,
    open = EXCLUDED.open,
    high = EXCLUDED.high,
    low = EXCLUDED.low,
    close = EXCLUDED.close,
    volume = EXCLUDED.volume,
    quote_volume = EXCLUDED.quote_volume,
    trade_count = EXCLUDED.trade_count,
    source = EXCLUDED.source,
    updated_at = NOW()
RETURNING (xmax = 0) AS inserted;`

// Upsert writes one candle. The returned flag reports whether the row was
// newly inserted (true) or an existing row was overwritten (false); Postgres
// exposes this via xmax = 0 on the returned tuple.
func (m *CandlesModel) Upsert(ctx context.Context, c market.Candle) (bool, error) {
	var inserted bool
	err := m.conn.QueryRowCtx(ctx, &inserted, upsertCandleQuery,
		c.Symbol, string(c.Interval), c.OpenTime.UTC(), c.CloseTime.UTC(),
		c.Open, c.High, c.Low, c.Close, c.Volume,
		nullFloat(c.QuoteVolume), nullInt(c.TradeCount), nullString(c.Source),
	)
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// BulkUpsert writes candles in batches of batchSize (defaulting when
// non-positive). A row that fails is retried individually and then skipped,
// so one malformed bar never discards the rest of a fetched page.
func (m *CandlesModel) BulkUpsert(ctx context.Context, candles []market.Candle, batchSize int) (inserted, updated int, err error) {
	if batchSize <= 0 {
		batchSize = defaultBulkBatchSize
	}
	var failures int
	for start := 0; start < len(candles); start += batchSize {
		end := start + batchSize
		if end > len(candles) {
			end = len(candles)
		}
		for _, c := range candles[start:end] {
			ok, upErr := m.Upsert(ctx, c)
			if upErr != nil {
				if ctx.Err() != nil {
					return inserted, updated, ctx.Err()
				}
				failures++
				logx.WithContext(ctx).Errorf("candles upsert %s %s %s: %v",
					c.Symbol, c.Interval, c.OpenTime.Format(time.RFC3339), upErr)
				continue
			}
			if ok {
				inserted++
			} else {
				updated++
			}
		}
	}
	if failures > 0 && inserted == 0 && updated == 0 {
		return 0, 0, errors.New("candles: every row in the batch failed")
	}
	return inserted, updated, nil
}

const latestCandleQuery = `
SELECT symbol, interval, open_time, close_time,
       open, high, low, close, volume, quote_volume, trade_count, source
FROM public.candles
WHERE symbol = $1 AND interval = $2
ORDER BY open_time DESC
LIMIT 1;`

// Latest returns the most recent candle, or nil when the series is empty.
func (m *CandlesModel) Latest(ctx context.Context, symbol string, interval market.Interval) (*market.Candle, error) {
	var row candleRow
	err := m.conn.QueryRowCtx(ctx, &row, latestCandleQuery, symbol, string(interval))
	switch {
	case err == nil:
		c := row.toCandle()
		return &c, nil
	case errors.Is(err, sqlx.ErrNotFound):
		return nil, nil
	default:
		return nil, err
	}
}

// LatestOpenTime returns the newest stored open time, or nil for an empty
// series. The gap detector treats nil as "no data at all".
func (m *CandlesModel) LatestOpenTime(ctx context.Context, symbol string, interval market.Interval) (*time.Time, error) {
	var ts time.Time
	const q = `SELECT open_time FROM public.candles WHERE symbol = $1 AND interval = $2 ORDER BY open_time DESC LIMIT 1;`
	err := m.conn.QueryRowCtx(ctx, &ts, q, symbol, string(interval))
	switch {
	case err == nil:
		ts = ts.UTC()
		return &ts, nil
	case errors.Is(err, sqlx.ErrNotFound):
		return nil, nil
	default:
		return nil, err
	}
}

// Count returns the number of stored bars for one series.
func (m *CandlesModel) Count(ctx context.Context, symbol string, interval market.Interval) (int64, error) {
	var n int64
	const q = `SELECT COUNT(*) FROM public.candles WHERE symbol = $1 AND interval = $2;`
	if err := m.conn.QueryRowCtx(ctx, &n, q, symbol, string(interval)); err != nil {
		return 0, err
	}
	return n, nil
}

const rangeCandlesQuery = `
SELECT symbol, interval, open_time, close_time,
       open, high, low, close, volume, quote_volume, trade_count, source
FROM public.candles
WHERE symbol = $1 AND interval = $2 AND open_time >= $3 AND open_time <= $4
ORDER BY open_time ASC
LIMIT $5;`

// Range returns candles with open time in [start, end], oldest first. A
// non-positive limit means unbounded.
func (m *CandlesModel) Range(ctx context.Context, symbol string, interval market.Interval, start, end time.Time, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 1 << 20
	}
	var rows []candleRow
	err := m.conn.QueryRowsCtx(ctx, &rows, rangeCandlesQuery,
		symbol, string(interval), start.UTC(), end.UTC(), limit)
	if err != nil {
		if errors.Is(err, sqlx.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	candles := make([]market.Candle, 0, len(rows))
	for _, row := range rows {
		candles = append(candles, row.toCandle())
	}
	return candles, nil
}

func nullFloat(v float64) sql.NullFloat64 {
	if v == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func nullInt(v int64) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}
