package bybit

import (
	"fmt"
	"strings"

	"tradepulse/pkg/market"
)

// intervalCodes maps our interval identifiers to Bybit's kline vocabulary.
// Adding a provider never touches callers; this table is the whole translation.
var intervalCodes = map[market.Interval]string{
	market.Interval1m:  "1",
	market.Interval5m:  "5",
	market.Interval15m: "15",
	market.Interval1h:  "60",
	market.Interval4h:  "240",
	market.Interval1d:  "D",
	market.Interval1w:  "W",
}

// SupportsInterval reports whether Bybit serves this granularity.
func (c *Client) SupportsInterval(interval market.Interval) bool {
	_, ok := intervalCodes[interval]
	return ok
}

func intervalCode(interval market.Interval) (string, error) {
	code, ok := intervalCodes[interval]
	if !ok {
		return "", fmt.Errorf("bybit: unsupported interval %q", interval)
	}
	return code, nil
}

var quoteSuffixes = []string{"USDT", "USDC", "BTC", "ETH"}

// ToProviderSymbol maps a configured symbol to the linear-perp form Bybit
// expects. Bare base assets get the USDT quote appended ("BTC" -> "BTCUSDT");
// fully qualified pairs pass through unchanged.
func ToProviderSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	for _, q := range quoteSuffixes {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return s
		}
	}
	return s + "USDT"
}
