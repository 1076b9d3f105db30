package yahoo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepulse/pkg/market"
)

func fptr(v float64) *float64 { return &v }

func chartPayload(timestamps []int64, opens, highs, lows, closes, volumes []*float64) map[string]interface{} {
	return map[string]interface{}{
		"chart": map[string]interface{}{
			"result": []interface{}{
				map[string]interface{}{
					"timestamp": timestamps,
					"indicators": map[string]interface{}{
						"quote": []interface{}{
							map[string]interface{}{
								"open": opens, "high": highs, "low": lows, "close": closes, "volume": volumes,
							},
						},
					},
				},
			},
			"error": nil,
		},
	}
}

func TestFetchRangeParsesParallelArrays(t *testing.T) {
	base := time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/MES=F", r.URL.Path, "continuous contract symbol used")
		assert.Equal(t, "60m", r.URL.Query().Get("interval"), "1h maps to 60m")
		payload := chartPayload(
			[]int64{base.Unix(), base.Add(time.Hour).Unix(), base.Add(2 * time.Hour).Unix()},
			[]*float64{fptr(5000), nil, fptr(5010)},
			[]*float64{fptr(5020), nil, fptr(5030)},
			[]*float64{fptr(4990), nil, fptr(5000)},
			[]*float64{fptr(5010), nil, fptr(5020)},
			[]*float64{fptr(1000), nil, fptr(1200)},
		)
		_ = json.NewEncoder(w).Encode(payload)
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithMaxRetries(0), WithRateLimit(1000))
	candles, _, err := client.FetchRange(context.Background(), "MES", market.Interval1h, base.Add(-time.Hour), base.Add(3*time.Hour))
	require.NoError(t, err, "FetchRange should succeed")
	require.Len(t, candles, 2, "null (halted) slot skipped")

	assert.Equal(t, "MES", candles[0].Symbol, "stored under the bare root symbol")
	assert.Equal(t, SourceName, candles[0].Source, "source tag set")
	assert.Equal(t, base, candles[0].OpenTime, "timestamp is unix seconds")
	assert.Equal(t, 5010.0, candles[0].Close, "close parsed")
}

func TestFetchRangeClampsMinuteHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chartPayload(nil, nil, nil, nil, nil, nil))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithMaxRetries(0), WithRateLimit(1000))
	ancient := time.Now().UTC().AddDate(0, -2, 0)
	_, from, err := client.FetchRange(context.Background(), "MNQ", market.Interval1m, ancient, time.Now().UTC())
	require.NoError(t, err, "clamped range is not an error")
	assert.WithinDuration(t, time.Now().UTC().Add(-7*24*time.Hour), from, time.Minute,
		"minute data clamps to a week of history")
}

func TestFetchRangeSurfacesChartError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"chart": map[string]interface{}{
				"result": nil,
				"error":  map[string]interface{}{"code": "Not Found", "description": "No data found"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithMaxRetries(0), WithRateLimit(1000))
	_, _, err := client.FetchRange(context.Background(), "BOGUS", market.Interval1d, time.Now().Add(-24*time.Hour), time.Now())
	assert.Error(t, err, "provider error surfaces to the caller")
}

func TestFetchRecentTailsWindow(t *testing.T) {
	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ts []int64
		var o, h, l, cl, v []*float64
		for i := 0; i < 10; i++ {
			ts = append(ts, base.Add(time.Duration(i)*24*time.Hour).Unix())
			o, h, l = append(o, fptr(100)), append(h, fptr(110)), append(l, fptr(95))
			cl, v = append(cl, fptr(105)), append(v, fptr(500))
		}
		_ = json.NewEncoder(w).Encode(chartPayload(ts, o, h, l, cl, v))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL), WithMaxRetries(0), WithRateLimit(1000))
	candles, err := client.FetchRecent(context.Background(), "MGC", market.Interval1d, 3)
	require.NoError(t, err, "FetchRecent should succeed")
	require.Len(t, candles, 3, "only the newest bars kept")
	assert.True(t, candles[2].OpenTime.After(candles[0].OpenTime), "oldest first")
}

func TestFuturesSymbolMapping(t *testing.T) {
	assert.Equal(t, "MES=F", ToProviderSymbol("mes"), "root maps to continuous contract")
	assert.Equal(t, "MES=F", ToProviderSymbol("MES=F"), "qualified form passes through")
	assert.Equal(t, "MES", FromProviderSymbol("MES=F"), "suffix stripped for storage")
}
