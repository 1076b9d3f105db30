package market

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidCandle indicates a candle whose fields violate OHLCV constraints.
var ErrInvalidCandle = errors.New("market: invalid candle")

// Candle is one OHLCV bar, identified by (Symbol, Interval, OpenTime).
// Values are validated at construction so nothing downstream has to re-check.
type Candle struct {
	Symbol      string    `json:"symbol" msgpack:"s"`
	Interval    Interval  `json:"interval" msgpack:"i"`
	OpenTime    time.Time `json:"openTime" msgpack:"ot"`
	CloseTime   time.Time `json:"closeTime" msgpack:"ct"`
	Open        float64   `json:"open" msgpack:"o"`
	High        float64   `json:"high" msgpack:"h"`
	Low         float64   `json:"low" msgpack:"l"`
	Close       float64   `json:"close" msgpack:"c"`
	Volume      float64   `json:"volume" msgpack:"v"`
	QuoteVolume float64   `json:"quoteVolume,omitempty" msgpack:"qv,omitempty"`
	TradeCount  int64     `json:"tradeCount,omitempty" msgpack:"tc,omitempty"`
	Source      string    `json:"source,omitempty" msgpack:"src,omitempty"` // provider tag, e.g. "bybit", "yahoo"
	Raw         []byte    `json:"-" msgpack:"-"`                            // raw provider payload, kept for debugging
}

// NewCandle builds a validated candle. CloseTime is derived from OpenTime and the
// interval duration (one millisecond before the next bar opens). The returned error
// wraps ErrInvalidCandle so callers can drop the row and continue a batch.
func NewCandle(symbol string, interval Interval, openTime time.Time, open, high, low, closePx, volume float64) (Candle, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return Candle{}, fmt.Errorf("%w: empty symbol", ErrInvalidCandle)
	}
	if !interval.Valid() {
		return Candle{}, fmt.Errorf("%w: unsupported interval %q", ErrInvalidCandle, interval)
	}
	if openTime.IsZero() {
		return Candle{}, fmt.Errorf("%w: zero open time", ErrInvalidCandle)
	}
	if open <= 0 || high <= 0 || low <= 0 || closePx <= 0 {
		return Candle{}, fmt.Errorf("%w: non-positive price o=%v h=%v l=%v c=%v", ErrInvalidCandle, open, high, low, closePx)
	}
	if volume < 0 {
		return Candle{}, fmt.Errorf("%w: negative volume %v", ErrInvalidCandle, volume)
	}
	if high < open || high < closePx || high < low {
		return Candle{}, fmt.Errorf("%w: high %v below open/close/low", ErrInvalidCandle, high)
	}
	if low > open || low > closePx {
		return Candle{}, fmt.Errorf("%w: low %v above open/close", ErrInvalidCandle, low)
	}
	openTime = openTime.UTC()
	return Candle{
		Symbol:    symbol,
		Interval:  interval,
		OpenTime:  openTime,
		CloseTime: openTime.Add(interval.Duration() - time.Millisecond),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePx,
		Volume:    volume,
	}, nil
}

// Key returns the uniqueness triple as a printable identifier.
func (c Candle) Key() string {
	return fmt.Sprintf("%s/%s/%d", c.Symbol, c.Interval, c.OpenTime.UnixMilli())
}
