package backtest

import "math"

// book tracks a single-instrument position with fees and slippage. The engine
// trades a fixed size and only ever holds long, short, or flat.
type book struct {
	cash        float64
	pos         float64 // signed size in base units
	avgCost     float64
	realized    float64
	feeBps      float64
	slippageBps float64
}

// execPrice applies slippage against the taker.
func (b *book) execPrice(px float64, buying bool) float64 {
	if b.slippageBps == 0 {
		return px
	}
	m := 1 + b.slippageBps/10000.0
	if buying {
		return px * m
	}
	return px / m
}

func (b *book) fee(px, qty float64) float64 {
	return px * qty * (b.feeBps / 10000.0)
}

// target moves the position to want (signed size) at market price px.
// Returns the realized PnL of any closed portion and whether a close happened.
func (b *book) target(px, want float64) (realized float64, closed bool) {
	if want == b.pos {
		return 0, false
	}
	// Close the opposing portion first.
	if b.pos != 0 && (want == 0 || math.Signbit(want) != math.Signbit(b.pos)) {
		qty := math.Abs(b.pos)
		exec := b.execPrice(px, b.pos < 0)
		if b.pos > 0 {
			realized = (exec - b.avgCost) * qty
		} else {
			realized = (b.avgCost - exec) * qty
		}
		b.cash += realized - b.fee(exec, qty)
		b.realized += realized
		b.pos, b.avgCost = 0, 0
		closed = true
	}
	if want != 0 && b.pos == 0 {
		exec := b.execPrice(px, want > 0)
		b.cash -= b.fee(exec, math.Abs(want))
		b.pos, b.avgCost = want, exec
	}
	return realized, closed
}

// unrealized marks the open position against px.
func (b *book) unrealized(px float64) float64 {
	switch {
	case b.pos > 0:
		return (px - b.avgCost) * b.pos
	case b.pos < 0:
		return (b.avgCost - px) * math.Abs(b.pos)
	default:
		return 0
	}
}

func (b *book) equity(px float64) float64 {
	return b.cash + b.unrealized(px)
}
