package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/zeromicro/go-zero/rest/httpx"

	"tradepulse/internal/svc"
	"tradepulse/internal/types"
	"tradepulse/pkg/market"
)

const maxCandlesPerRequest = 5000

// CandlesHandler serves stored candles for one series, oldest first. The bar
// currently forming is never returned; only closed bars are served.
func CandlesHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.CandlesReq
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}

		interval := market.Interval(req.Interval)
		if !interval.Valid() {
			httpx.ErrorCtx(r.Context(), w, fmt.Errorf("unsupported interval %q", req.Interval))
			return
		}
		if svcCtx.Candles == nil {
			httpx.ErrorCtx(r.Context(), w, errors.New("candle storage is not configured"))
			return
		}
		if req.Limit <= 0 || req.Limit > maxCandlesPerRequest {
			req.Limit = maxCandlesPerRequest
		}

		// Cap the window at the newest closed bar.
		lastClosed := time.Now().UTC().Truncate(interval.Duration()).Add(-time.Second)
		end := lastClosed
		if req.End > 0 {
			if t := time.Unix(req.End, 0).UTC(); t.Before(end) {
				end = t
			}
		}
		start := end.Add(-time.Duration(req.Limit) * interval.Duration())
		if req.Start > 0 {
			start = time.Unix(req.Start, 0).UTC()
		}

		candles, err := svcCtx.Candles.Range(r.Context(), req.Symbol, interval, start, end, req.Limit)
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, types.CandlesResp{
			Symbol:   req.Symbol,
			Interval: string(interval),
			Candles:  candles,
		})
	}
}

// LatestCandleHandler serves the newest stored bar for a series, preferring
// the Redis snapshot over a Postgres round trip.
func LatestCandleHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.LatestCandleReq
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}

		interval := market.Interval(req.Interval)
		if !interval.Valid() {
			httpx.ErrorCtx(r.Context(), w, fmt.Errorf("unsupported interval %q", req.Interval))
			return
		}

		if c := svcCtx.Cache.GetLatest(r.Context(), req.Symbol, interval); c != nil {
			httpx.OkJsonCtx(r.Context(), w, c)
			return
		}
		if svcCtx.Candles == nil {
			httpx.ErrorCtx(r.Context(), w, errors.New("candle storage is not configured"))
			return
		}
		c, err := svcCtx.Candles.Latest(r.Context(), req.Symbol, interval)
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		if c == nil {
			httpx.ErrorCtx(r.Context(), w, fmt.Errorf("no candles stored for %s %s", req.Symbol, interval))
			return
		}
		httpx.OkJsonCtx(r.Context(), w, c)
	}
}
