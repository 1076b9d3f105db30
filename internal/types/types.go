package types

import (
	"tradepulse/pkg/candlesync"
	"tradepulse/pkg/market"
)

type CandlesReq struct {
	Symbol   string `form:"symbol"`
	Interval string `form:"interval"`
	// Start/End are unix seconds bounding open time; both optional.
	Start int64 `form:"start,optional"`
	End   int64 `form:"end,optional"`
	Limit int   `form:"limit,default=500"`
}

type CandlesResp struct {
	Symbol   string          `json:"symbol"`
	Interval string          `json:"interval"`
	Candles  []market.Candle `json:"candles"`
}

type LatestCandleReq struct {
	Symbol   string `form:"symbol"`
	Interval string `form:"interval"`
}

type SignalsReq struct {
	Limit int `form:"limit,default=50"`
}

type SignalView struct {
	ID         string  `json:"id"`
	Symbol     string  `json:"symbol"`
	Interval   string  `json:"interval"`
	Strategy   string  `json:"strategy"`
	Direction  string  `json:"direction"`
	Price      float64 `json:"price"`
	Confidence float64 `json:"confidence,omitempty"`
	Narrative  string  `json:"narrative,omitempty"`
	CreatedAt  string  `json:"createdAt"`
}

type SignalsResp struct {
	Signals []SignalView `json:"signals"`
}

type CoordinatorStatus struct {
	Healthy bool                 `json:"healthy"`
	Stats   *candlesync.Snapshot `json:"stats,omitempty"`
}

type HealthResp struct {
	Status       string                       `json:"status"`
	Coordinators map[string]CoordinatorStatus `json:"coordinators"`
}

type StatsResp struct {
	Coordinators map[string]candlesync.Snapshot `json:"coordinators"`
}
