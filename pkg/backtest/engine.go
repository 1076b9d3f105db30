package backtest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"tradepulse/pkg/market"
	"tradepulse/pkg/strategy"
	"tradepulse/pkg/ta"
)

const defaultWindow = 100

// Engine replays candles through one strategy, holding long, short, or flat
// at a fixed size depending on the latest signal.
type Engine struct {
	Feeder   Feeder
	Strategy strategy.Strategy
	Symbol   string
	Interval market.Interval

	// Window is how many bars of context each evaluation sees.
	Window int
	// Size is the traded quantity per signal, in base units.
	Size float64

	InitialEquity float64 // defaults to 100000
	FeeBps        float64 // per-trade fee in basis points
	SlippageBps   float64 // execution slippage in basis points

	// Optional: write a JSON report to this path.
	OutputPath string
}

// Result summarizes a simulation run.
type Result struct {
	Steps       int           `json:"steps"`
	Signals     int           `json:"signals"`
	Trades      int           `json:"trades"`
	Wins        int           `json:"wins"`
	WinRate     float64       `json:"winRate"`
	RealizedPNL float64       `json:"realizedPnl"`
	UnrealPNL   float64       `json:"unrealizedPnl"`
	TotalPNL    float64       `json:"totalPnl"`
	MaxDDPct    float64       `json:"maxDrawdownPct"`
	Sharpe      float64       `json:"sharpe"`
	EquityCurve []float64     `json:"equityCurve"`
	Details     []TradeDetail `json:"details"`
}

// TradeDetail records per-signal execution for analysis.
type TradeDetail struct {
	Step      int     `json:"step"`
	Strategy  string  `json:"strategy"`
	Direction string  `json:"direction"`
	Price     float64 `json:"price"`
	Realized  float64 `json:"realized"`
	Position  float64 `json:"position"`
}

func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if e.Feeder == nil || e.Strategy == nil || e.Symbol == "" {
		return nil, fmt.Errorf("backtest: engine not fully configured")
	}
	window := e.Window
	if window <= 0 {
		window = defaultWindow
	}
	size := e.Size
	if size <= 0 {
		size = 1
	}
	eq0 := e.InitialEquity
	if eq0 <= 0 {
		eq0 = 100000
	}

	res := &Result{}
	bk := &book{cash: eq0, feeBps: e.FeeBps, slippageBps: e.SlippageBps}
	var history []market.Candle

	for {
		candle, ok, err := e.Feeder.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		res.Steps++
		history = append(history, *candle)
		if len(history) > window {
			history = history[len(history)-window:]
		}

		snap := strategy.Snapshot{Symbol: e.Symbol, Interval: e.Interval, TA: ta.NewContext(history)}
		if snap.TA != nil {
			sig, err := e.Strategy.Evaluate(ctx, snap)
			if err != nil {
				return nil, err
			}
			if sig != nil {
				res.Signals++
				want := size
				if sig.Direction == strategy.Short {
					want = -size
				}
				realized, closed := bk.target(candle.Close, want)
				if closed {
					res.Trades++
					if realized > 0 {
						res.Wins++
					}
				}
				res.Details = append(res.Details, TradeDetail{
					Step:      res.Steps,
					Strategy:  sig.Strategy,
					Direction: string(sig.Direction),
					Price:     candle.Close,
					Realized:  realized,
					Position:  bk.pos,
				})
			}
		}
		res.EquityCurve = append(res.EquityCurve, bk.equity(candle.Close))
	}

	if len(history) > 0 {
		last := history[len(history)-1].Close
		res.UnrealPNL = bk.unrealized(last)
	}
	res.RealizedPNL = bk.realized
	res.TotalPNL = res.RealizedPNL + res.UnrealPNL
	if res.Trades > 0 {
		res.WinRate = float64(res.Wins) / float64(res.Trades)
	}
	res.MaxDDPct = maxDrawdownPct(append([]float64{eq0}, res.EquityCurve...))
	res.Sharpe = sharpe(res.EquityCurve)

	if e.OutputPath != "" {
		if err := writeReport(e.OutputPath, res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func maxDrawdownPct(series []float64) float64 {
	peak := series[0]
	mdd := 0.0
	for _, v := range series {
		if v > peak {
			peak = v
		}
		dd := (peak - v) / peak
		if dd > mdd {
			mdd = dd
		}
	}
	return mdd * 100
}

func sharpe(equity []float64) float64 {
	if len(equity) < 2 {
		return 0
	}
	rets := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			continue
		}
		rets = append(rets, equity[i]/equity[i-1]-1)
	}
	if len(rets) == 0 {
		return 0
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	variance := 0.0
	for _, r := range rets {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(rets))
	sd := math.Sqrt(variance)
	if sd == 0 {
		return 0
	}
	return mean / sd * math.Sqrt(float64(len(rets)))
}

func writeReport(path string, r *Result) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
