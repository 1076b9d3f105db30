package svc

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"tradepulse/internal/cache"
	"tradepulse/internal/config"
	"tradepulse/internal/model"
	"tradepulse/pkg/strategy"
)

type ServiceContext struct {
	Config config.Config

	// DB-backed models; nil when no DSN is configured.
	DBConn  sqlx.SqlConn
	Candles *model.CandlesModel
	Signals *model.SignalsModel

	// Redis snapshot cache; a nil redis client yields a no-op cache.
	Cache *cache.Snapshots
}

func NewServiceContext(c config.Config) *ServiceContext {
	svc := &ServiceContext{Config: c}

	if c.Postgres.DSN != "" {
		conn := sqlx.NewSqlConn("pgx", c.Postgres.DSN)
		svc.DBConn = conn
		svc.Candles = model.NewCandlesModel(conn)
		svc.Signals = model.NewSignalsModel(conn)
	}

	ttl := cache.NewTTLSet(c.TTL.Short, c.TTL.Medium, c.TTL.Long)
	var rds *redis.Redis
	if c.Redis.Host != "" {
		rds = redis.MustNewRedis(c.Redis)
	}
	svc.Cache = cache.NewSnapshots(rds, ttl)

	return svc
}

// SignalArchive adapts the signals model to the signal manager's Archive
// interface. Nil-model instances archive nothing.
type SignalArchive struct {
	signals *model.SignalsModel
}

func NewSignalArchive(signals *model.SignalsModel) *SignalArchive {
	return &SignalArchive{signals: signals}
}

func (a *SignalArchive) Save(ctx context.Context, sig *strategy.Signal) error {
	if a == nil || a.signals == nil {
		return nil
	}
	rec := model.SignalRecord{
		ID:        sig.ID,
		Symbol:    sig.Symbol,
		Interval:  string(sig.Interval),
		Strategy:  sig.Strategy,
		Direction: string(sig.Direction),
		Price:     sig.Price,
		CreatedAt: sig.CreatedAt,
	}
	if sig.Confidence > 0 {
		rec.Confidence = sql.NullFloat64{Float64: sig.Confidence, Valid: true}
	}
	if sig.Narrative != "" {
		rec.Narrative = sql.NullString{String: sig.Narrative, Valid: true}
	}
	return a.signals.Insert(ctx, rec)
}
