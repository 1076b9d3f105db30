package model

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// SignalRecord is one persisted trade signal row.
type SignalRecord struct {
	ID         string          `db:"id"`
	Symbol     string          `db:"symbol"`
	Interval   string          `db:"interval"`
	Strategy   string          `db:"strategy"`
	Direction  string          `db:"direction"`
	Price      float64         `db:"price"`
	Confidence sql.NullFloat64 `db:"confidence"`
	Narrative  sql.NullString  `db:"narrative"`
	CreatedAt  time.Time       `db:"created_at"`
}

// SignalsModel persists emitted signals for the REST surface and for warming
// the dedupe window across restarts.
type SignalsModel struct {
	conn sqlx.SqlConn
}

func NewSignalsModel(conn sqlx.SqlConn) *SignalsModel {
	return &SignalsModel{conn: conn}
}

const insertSignalQuery = `
INSERT INTO public.signals (id, symbol, interval, strategy, direction, price, confidence, narrative, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING;`

// Insert stores one signal. Duplicate IDs are ignored.
func (m *SignalsModel) Insert(ctx context.Context, rec SignalRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := m.conn.ExecCtx(ctx, insertSignalQuery,
		rec.ID, rec.Symbol, rec.Interval, rec.Strategy, rec.Direction,
		rec.Price, rec.Confidence, rec.Narrative, rec.CreatedAt.UTC())
	return err
}

const recentSignalsQuery = `
SELECT id, symbol, interval, strategy, direction, price, confidence, narrative, created_at
FROM public.signals
ORDER BY created_at DESC
LIMIT $1;`

// Recent returns the newest signals, newest first. Limit defaults to 50 when
// non-positive.
func (m *SignalsModel) Recent(ctx context.Context, limit int) ([]SignalRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []SignalRecord
	if err := m.conn.QueryRowsCtx(ctx, &rows, recentSignalsQuery, limit); err != nil {
		if errors.Is(err, sqlx.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rows, nil
}

const latestByKeyQuery = `
SELECT id, symbol, interval, strategy, direction, price, confidence, narrative, created_at
FROM public.signals
WHERE symbol = $1 AND strategy = $2
ORDER BY created_at DESC
LIMIT 1;`

// LatestByKey returns the newest signal for (symbol, strategy), or nil.
// The signal manager uses it to rebuild cooldown state after a restart.
func (m *SignalsModel) LatestByKey(ctx context.Context, symbol, strategy string) (*SignalRecord, error) {
	var rec SignalRecord
	err := m.conn.QueryRowCtx(ctx, &rec, latestByKeyQuery, symbol, strategy)
	switch {
	case err == nil:
		return &rec, nil
	case errors.Is(err, sqlx.ErrNotFound):
		return nil, nil
	default:
		return nil, err
	}
}
