package yahoo

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
const SourceName = "yahoo"

// Yahoo serves a whole window per call; this is the nominal page size the
// backfiller uses to budget its work.
const chartPageSize = 500

// History depth Yahoo serves per interval. Minute data is only a week deep.
var maxLookbacks = map[market.Interval]time.Duration{
	market.Interval1m:  7 * 24 * time.Hour,
	market.Interval5m:  60 * 24 * time.Hour,
	market.Interval15m: 60 * 24 * time.Hour,
	market.Interval1h:  730 * 24 * time.Hour,
	market.Interval1d:  100 * 365 * 24 * time.Hour,
	market.Interval1w:  100 * 365 * 24 * time.Hour,
}

// intervalCodes maps our identifiers to Yahoo's chart vocabulary. Yahoo has no
// 4h granularity; SupportsInterval exposes the table so coordinators reject a
// 4h schedule at startup.
var intervalCodes = map[market.Interval]string{
	market.Interval1m:  "1m",
	market.Interval5m:  "5m",
	market.Interval15m: "15m",
	market.Interval1h:  "60m",
	market.Interval1d:  "1d",
	market.Interval1w:  "1wk",
}

func (c *Client) Name() string { return SourceName }

func (c *Client) PageSize() int { return chartPageSize }

// SupportsInterval reports whether Yahoo serves this granularity (no 4h).
func (c *Client) SupportsInterval(interval market.Interval) bool {
	_, ok := intervalCodes[interval]
	return ok
}

func (c *Client) MaxLookback(interval market.Interval) time.Duration {
	if lb, ok := maxLookbacks[interval]; ok {
		return lb
	}
	return 60 * 24 * time.Hour
}

// chartResponse mirrors the v8 chart payload: parallel arrays keyed by the
// timestamp index. Pointer elements because Yahoo nulls out halted sessions.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchRecent returns the most recent count bars, oldest first.
func (c *Client) FetchRecent(ctx context.Context, symbol string, interval market.Interval, count int) ([]market.Candle, error) {
	if count <= 0 {
		return nil, fmt.Errorf("yahoo: count must be positive, got %d", count)
	}
	end := time.Now().UTC()
	// Pad the window: weekends and session halts thin out futures bars.
	start := end.Add(-interval.Duration() * time.Duration(count*3))
	candles, _, err := c.FetchRange(ctx, symbol, interval, start, end)
	if err != nil {
		return nil, err
	}
	if len(candles) > count {
		candles = candles[len(candles)-count:]
	}
	return candles, nil
}

// FetchRange returns all bars in [start, end). One request covers the whole
// window; start is clamped to Yahoo's history depth and the clamped value is
// returned for the caller to log.
func (c *Client) FetchRange(ctx context.Context, symbol string, interval market.Interval, start, end time.Time) ([]market.Candle, time.Time, error) {
	code, ok := intervalCodes[interval]
	if !ok {
		return nil, start, fmt.Errorf("yahoo: unsupported interval %q", interval)
	}
	if horizon := time.Now().UTC().Add(-c.MaxLookback(interval)); start.Before(horizon) {
		start = horizon
	}
	if !start.Before(end) {
		return nil, start, nil
	}

	params := url.Values{}
	params.Set("period1", strconv.FormatInt(start.Unix(), 10))
	params.Set("period2", strconv.FormatInt(end.Unix(), 10))
	params.Set("interval", code)
	params.Set("includePrePost", "false")
	params.Set("events", "history")

	var resp chartResponse
	if err := c.doGet(ctx, "/v8/finance/chart/"+url.PathEscape(ToProviderSymbol(symbol)), params, &resp); err != nil {
		return nil, start, err
	}
	if resp.Chart.Error != nil {
		return nil, start, fmt.Errorf("yahoo: chart error %s: %s", resp.Chart.Error.Code, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, start, nil
	}

	result := resp.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	candles := make([]market.Candle, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) || i >= len(quote.Close) {
			break
		}
		if quote.Open[i] == nil || quote.High[i] == nil || quote.Low[i] == nil || quote.Close[i] == nil {
			continue // halted session, no bar
		}
		var volume float64
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			volume = *quote.Volume[i]
		}
		cd, err := market.NewCandle(
			FromProviderSymbol(ToProviderSymbol(symbol)),
			interval,
			time.Unix(ts, 0).UTC(),
			*quote.Open[i], *quote.High[i], *quote.Low[i], *quote.Close[i], volume,
		)
		if err != nil {
			logx.Infof("yahoo: skipping malformed bar %s %s: %v", symbol, interval, err)
			continue
		}
		cd.Source = SourceName
		candles = append(candles, cd)
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].OpenTime.Before(candles[j].OpenTime) })
	return candles, start, nil
}
