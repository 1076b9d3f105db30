// Package backtest replays stored candles through a strategy and reports
// simulated performance.
package backtest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"tradepulse/pkg/market"
)

// Feeder yields candles one at a time, oldest first.
type Feeder interface {
	Next(ctx context.Context) (*market.Candle, bool, error)
}

// SliceFeeder replays an in-memory candle slice.
type SliceFeeder struct {
	candles []market.Candle
	idx     int
}

func NewSliceFeeder(candles []market.Candle) *SliceFeeder {
	return &SliceFeeder{candles: candles}
}

func (f *SliceFeeder) Next(context.Context) (*market.Candle, bool, error) {
	if f.idx >= len(f.candles) {
		return nil, false, nil
	}
	c := f.candles[f.idx]
	f.idx++
	return &c, true, nil
}

// StoreFeeder streams a time range from the candle store in pages.
type StoreFeeder struct {
	store    market.Store
	symbol   string
	interval market.Interval
	cursor   time.Time
	end      time.Time
	pageSize int
	buffer   []market.Candle
	idx      int
	drained  bool
}

func NewStoreFeeder(store market.Store, symbol string, interval market.Interval, start, end time.Time) *StoreFeeder {
	return &StoreFeeder{
		store:    store,
		symbol:   symbol,
		interval: interval,
		cursor:   start,
		end:      end,
		pageSize: 1000,
	}
}

func (f *StoreFeeder) Next(ctx context.Context) (*market.Candle, bool, error) {
	if f.idx >= len(f.buffer) {
		if f.drained {
			return nil, false, nil
		}
		page, err := f.store.Range(ctx, f.symbol, f.interval, f.cursor, f.end, f.pageSize)
		if err != nil {
			return nil, false, err
		}
		if len(page) == 0 {
			f.drained = true
			return nil, false, nil
		}
		if len(page) < f.pageSize {
			f.drained = true
		}
		f.cursor = page[len(page)-1].OpenTime.Add(f.interval.Duration())
		f.buffer, f.idx = page, 0
	}
	c := f.buffer[f.idx]
	f.idx++
	return &c, true, nil
}

// CSVFeeder reads bars from a CSV of
// open_time(unix seconds or RFC3339),open,high,low,close,volume rows.
// A header row is skipped when the first column is not parseable.
type CSVFeeder struct {
	SliceFeeder
}

func NewCSVFeederFromFile(symbol string, interval market.Interval, path string) (*CSVFeeder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewCSVFeeder(symbol, interval, f)
}

func NewCSVFeeder(symbol string, interval market.Interval, r io.Reader) (*CSVFeeder, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	var candles []market.Candle
	for i, rec := range records {
		if len(rec) < 6 {
			continue
		}
		ts, err := parseTimestamp(rec[0])
		if err != nil {
			if i == 0 {
				continue // header
			}
			return nil, fmt.Errorf("backtest: row %d: bad timestamp %q", i+1, rec[0])
		}
		var vals [5]float64
		for j := 0; j < 5; j++ {
			v, err := strconv.ParseFloat(rec[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("backtest: row %d col %d: %w", i+1, j+2, err)
			}
			vals[j] = v
		}
		c, err := market.NewCandle(symbol, interval, ts, vals[0], vals[1], vals[2], vals[3], vals[4])
		if err != nil {
			return nil, fmt.Errorf("backtest: row %d: %w", i+1, err)
		}
		candles = append(candles, c)
	}
	return &CSVFeeder{SliceFeeder: SliceFeeder{candles: candles}}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}
