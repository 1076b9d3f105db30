package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCandleDerivesCloseTime(t *testing.T) {
	open := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c, err := NewCandle("btcusdt", Interval1h, open, 100, 110, 95, 105, 12.5)
	require.NoError(t, err, "valid candle should construct")

	assert.Equal(t, "BTCUSDT", c.Symbol, "symbol should be upper-cased")
	assert.Equal(t, open, c.OpenTime, "open time preserved")
	assert.Equal(t, open.Add(time.Hour-time.Millisecond), c.CloseTime, "close time is one tick before next bar")
	assert.True(t, c.CloseTime.After(c.OpenTime), "close must follow open")
}

func TestNewCandleRejectsBadOHLC(t *testing.T) {
	open := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name                string
		o, h, l, c, v       float64
	}{
		{"high below low", 100, 90, 95, 100, 1},
		{"high below close", 100, 101, 95, 102, 1},
		{"low above open", 100, 110, 101, 105, 1},
		{"zero price", 0, 110, 95, 105, 1},
		{"negative volume", 100, 110, 95, 105, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCandle("BTCUSDT", Interval1h, open, tc.o, tc.h, tc.l, tc.c, tc.v)
			require.Error(t, err, "constraint violation must be rejected")
			assert.ErrorIs(t, err, ErrInvalidCandle, "error should wrap ErrInvalidCandle")
		})
	}
}

func TestNewCandleRejectsUnknownInterval(t *testing.T) {
	_, err := NewCandle("BTCUSDT", Interval("3h"), time.Now(), 1, 1, 1, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidCandle, "unsupported interval should be rejected")
}

func TestIntervalDurations(t *testing.T) {
	assert.Equal(t, time.Minute, Interval1m.Duration(), "1m duration")
	assert.Equal(t, 4*time.Hour, Interval4h.Duration(), "4h duration")
	assert.Equal(t, int64(86400), Interval1d.Seconds(), "1d seconds")
	assert.False(t, Interval("2h").Valid(), "2h is not supported")

	for _, iv := range Intervals() {
		assert.True(t, iv.Valid(), "listed interval %s should be valid", iv)
	}
}

func TestDefaultSchedulesFetchAtLeastTwo(t *testing.T) {
	for _, s := range DefaultSchedules() {
		assert.GreaterOrEqual(t, s.FetchCount, 2, "%s must refetch the still-open bar", s.Interval)
		assert.Equal(t, s.Interval.Duration(), s.Every, "%s polls once per bar", s.Interval)
	}
}
