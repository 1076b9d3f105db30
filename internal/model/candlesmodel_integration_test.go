//go:build integration
// +build integration

package model_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "tradepulse/internal/config"
	"tradepulse/internal/model"
	"tradepulse/internal/svc"
	"tradepulse/pkg/market"
)

func newIntegrationServiceContext(t *testing.T) *svc.ServiceContext {
	t.Helper()
	cfg := appconfig.MustLoad("../../etc/tradepulse.yaml")
	return svc.NewServiceContext(*cfg)
}

func requireCandles(t *testing.T, svcCtx *svc.ServiceContext) *model.CandlesModel {
	t.Helper()
	if svcCtx.Candles == nil {
		t.Skip("Postgres not configured (Candles nil)")
	}
	return svcCtx.Candles
}

func integrationBar(t *testing.T, symbol string, openTime time.Time, closePx float64) market.Candle {
	t.Helper()
	c, err := market.NewCandle(symbol, market.Interval1h, openTime, closePx-1, closePx+2, closePx-3, closePx, 100)
	require.NoError(t, err)
	c.Source = "integration"
	return c
}

// TestUpsertIsIdempotent exercises the ON CONFLICT path against a real
// database: the first write inserts, every rewrite of the same key updates,
// and the row count never grows.
func TestUpsertIsIdempotent(t *testing.T) {
	svcCtx := newIntegrationServiceContext(t)
	candles := requireCandles(t, svcCtx)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	symbol := fmt.Sprintf("ITEST%d", time.Now().UnixNano()%1_000_000)
	openTime := time.Now().UTC().Truncate(time.Hour).Add(-24 * time.Hour)
	bar := integrationBar(t, symbol, openTime, 100)

	inserted, err := candles.Upsert(ctx, bar)
	require.NoError(t, err)
	assert.True(t, inserted, "first write must insert")

	bar.Close = 105
	bar.High = 107
	inserted, err = candles.Upsert(ctx, bar)
	require.NoError(t, err)
	assert.False(t, inserted, "rewrite of the same key must update")

	count, err := candles.Count(ctx, symbol, market.Interval1h)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count, "idempotent upsert never duplicates the key")

	latest, err := candles.Latest(ctx, symbol, market.Interval1h)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 105.0, latest.Close, "update must win")
}

// TestBulkUpsertSurvivesConstraintViolation verifies that one row rejected by
// the table's CHECK constraints does not poison the rest of the batch.
func TestBulkUpsertSurvivesConstraintViolation(t *testing.T) {
	svcCtx := newIntegrationServiceContext(t)
	candles := requireCandles(t, svcCtx)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	symbol := fmt.Sprintf("ITEST%d", time.Now().UnixNano()%1_000_000)
	base := time.Now().UTC().Truncate(time.Hour).Add(-48 * time.Hour)

	batch := []market.Candle{
		integrationBar(t, symbol, base, 100),
		integrationBar(t, symbol, base.Add(time.Hour), 101),
		integrationBar(t, symbol, base.Add(2*time.Hour), 102),
	}
	// Violates high >= low after construction; only the database can reject it.
	batch[1].High, batch[1].Low = 1, 1000

	inserted, updated, err := candles.BulkUpsert(ctx, batch, 100)
	require.NoError(t, err, "a partial failure is not a batch failure")
	assert.Equal(t, 2, inserted)
	assert.Equal(t, 0, updated)

	count, err := candles.Count(ctx, symbol, market.Interval1h)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

// TestRangeReturnsOldestFirst checks ordering and limit handling on a real
// table, where index order decides what the query plans return.
func TestRangeReturnsOldestFirst(t *testing.T) {
	svcCtx := newIntegrationServiceContext(t)
	candles := requireCandles(t, svcCtx)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	symbol := fmt.Sprintf("ITEST%d", time.Now().UnixNano()%1_000_000)
	base := time.Now().UTC().Truncate(time.Hour).Add(-72 * time.Hour)
	for i := 0; i < 5; i++ {
		_, err := candles.Upsert(ctx, integrationBar(t, symbol, base.Add(time.Duration(i)*time.Hour), 100+float64(i)))
		require.NoError(t, err)
	}

	rows, err := candles.Range(ctx, symbol, market.Interval1h, base, base.Add(10*time.Hour), 3)
	require.NoError(t, err)
	require.Len(t, rows, 3, "limit caps the result")
	assert.True(t, rows[0].OpenTime.Before(rows[1].OpenTime), "oldest first")
	assert.Equal(t, base, rows[0].OpenTime)
}
