package bybit

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"tradepulse/pkg/market"
)

// SourceName tags candles persisted from this client.
const SourceName = "bybit"

// History depth Bybit serves per interval. Requests older than this are clamped
// upward by FetchRange rather than failed.
var maxLookbacks = map[market.Interval]time.Duration{
	market.Interval1m:  30 * 24 * time.Hour,
	market.Interval5m:  60 * 24 * time.Hour,
	market.Interval15m: 120 * 24 * time.Hour,
	market.Interval1h:  730 * 24 * time.Hour,
	market.Interval4h:  4 * 365 * 24 * time.Hour,
	market.Interval1d:  10 * 365 * 24 * time.Hour,
	market.Interval1w:  10 * 365 * 24 * time.Hour,
}

// Safety cap on pages per FetchRange call; the backfiller already sub-windows
// large gaps, so hitting this means something is wrong upstream.
const maxPagesPerRange = 60

func (c *Client) Name() string { return SourceName }

func (c *Client) PageSize() int { return klinePageSize }

func (c *Client) MaxLookback(interval market.Interval) time.Duration {
	if lb, ok := maxLookbacks[interval]; ok {
		return lb
	}
	return 730 * 24 * time.Hour
}

type klineResult struct {
	Category string     `json:"category"`
	Symbol   string     `json:"symbol"`
	List     [][]string `json:"list"`
}

// FetchRecent returns the most recent count bars, oldest first. The newest bar
// may still be open and is expected to be upserted again once closed.
func (c *Client) FetchRecent(ctx context.Context, symbol string, interval market.Interval, count int) ([]market.Candle, error) {
	if count <= 0 || count > 1000 {
		return nil, fmt.Errorf("bybit: count must be in 1..1000, got %d", count)
	}
	code, err := intervalCode(interval)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("category", categoryLinear)
	params.Set("symbol", ToProviderSymbol(symbol))
	params.Set("interval", code)
	params.Set("limit", strconv.Itoa(count))

	var result klineResult
	if err := c.doGet(ctx, "/v5/market/kline", params, &result); err != nil {
		return nil, err
	}
	return c.parseRows(symbol, interval, result.List), nil
}

// FetchRange returns all bars with open time in [start, end), paging backwards
// from end until the window is covered. start is clamped to the provider's
// history depth; the clamped value is returned so callers can log it.
func (c *Client) FetchRange(ctx context.Context, symbol string, interval market.Interval, start, end time.Time) ([]market.Candle, time.Time, error) {
	code, err := intervalCode(interval)
	if err != nil {
		return nil, start, err
	}
	if horizon := time.Now().UTC().Add(-c.MaxLookback(interval)); start.Before(horizon) {
		start = horizon
	}
	if !start.Before(end) {
		return nil, start, nil
	}

	seen := make(map[int64]struct{})
	var candles []market.Candle
	cursor := end

	for page := 0; page < maxPagesPerRange; page++ {
		params := url.Values{}
		params.Set("category", categoryLinear)
		params.Set("symbol", ToProviderSymbol(symbol))
		params.Set("interval", code)
		params.Set("start", strconv.FormatInt(start.UnixMilli(), 10))
		params.Set("end", strconv.FormatInt(cursor.UnixMilli(), 10))
		params.Set("limit", strconv.Itoa(klinePageSize))

		var result klineResult
		if err := c.doGet(ctx, "/v5/market/kline", params, &result); err != nil {
			return candles, start, err
		}
		if len(result.List) == 0 {
			break
		}

		// Track the oldest raw timestamp, not the oldest parsed bar, so the
		// cursor always advances even when the oldest row was malformed.
		var oldest time.Time
		for _, row := range result.List {
			if len(row) == 0 {
				continue
			}
			if ms, err := strconv.ParseInt(row[0], 10, 64); err == nil {
				ts := time.UnixMilli(ms).UTC()
				if oldest.IsZero() || ts.Before(oldest) {
					oldest = ts
				}
			}
		}
		for _, cd := range c.parseRows(symbol, interval, result.List) {
			if _, dup := seen[cd.OpenTime.UnixMilli()]; dup {
				continue
			}
			seen[cd.OpenTime.UnixMilli()] = struct{}{}
			candles = append(candles, cd)
		}
		// The page's oldest bar reached the target: done.
		if oldest.IsZero() || !oldest.After(start) {
			break
		}
		cursor = oldest.Add(-time.Millisecond)
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].OpenTime.Before(candles[j].OpenTime) })
	return candles, start, nil
}

// parseRows converts Bybit's newest-first string arrays
// [startMs, open, high, low, close, volume, turnover] into validated candles,
// oldest first. A malformed row is dropped with a warning; the rest proceed.
func (c *Client) parseRows(symbol string, interval market.Interval, rows [][]string) []market.Candle {
	candles := make([]market.Candle, 0, len(rows))
	for _, row := range rows {
		cd, err := parseRow(symbol, interval, row)
		if err != nil {
			logx.Infof("bybit: skipping malformed bar %s %s: %v", symbol, interval, err)
			continue
		}
		candles = append(candles, cd)
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].OpenTime.Before(candles[j].OpenTime) })
	return candles
}

func parseRow(symbol string, interval market.Interval, row []string) (market.Candle, error) {
	if len(row) < 6 {
		return market.Candle{}, fmt.Errorf("short row: %d fields", len(row))
	}
	ms, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return market.Candle{}, fmt.Errorf("start time %q: %w", row[0], err)
	}
	var prices [5]float64
	for i := 0; i < 5; i++ {
		prices[i], err = strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return market.Candle{}, fmt.Errorf("field %d %q: %w", i+1, row[i+1], err)
		}
	}
	// Candles carry the caller's symbol, not the provider pair, so the rows a
	// fetch writes are found again by the same symbol the store is queried with.
	cd, err := market.NewCandle(
		symbol,
		interval,
		time.UnixMilli(ms).UTC(),
		prices[0], prices[1], prices[2], prices[3], prices[4],
	)
	if err != nil {
		return market.Candle{}, err
	}
	cd.Source = SourceName
	if len(row) >= 7 {
		if qv, err := strconv.ParseFloat(row[6], 64); err == nil {
			cd.QuoteVolume = qv
		}
	}
	return cd, nil
}
