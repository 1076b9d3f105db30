// Package strategy holds the rule-based signal generators and the
// orchestrator that runs them over stored candles.
package strategy

import (
	"context"
	"time"

	"tradepulse/pkg/market"
	"tradepulse/pkg/ta"
)

// Direction of a generated signal.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Signal is one actionable observation emitted by a strategy.
type Signal struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Interval   market.Interval `json:"interval"`
	Strategy   string          `json:"strategy"`
	Direction  Direction       `json:"direction"`
	Price      float64         `json:"price"`
	Confidence float64         `json:"confidence"`
	Reason     string          `json:"reason"`
	Narrative  string          `json:"narrative,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Snapshot is the per-symbol input a strategy evaluates.
type Snapshot struct {
	Symbol   string
	Interval market.Interval
	TA       *ta.Context
}

// Strategy evaluates one snapshot. A nil signal with nil error means no setup.
type Strategy interface {
	Name() string
	Evaluate(ctx context.Context, snap Snapshot) (*Signal, error)
}
