package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/zeromicro/go-zero/rest/httpx"

	"tradepulse/internal/svc"
	"tradepulse/internal/types"
)

// SignalsHandler serves recently emitted signals, newest first.
func SignalsHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.SignalsReq
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}
		if svcCtx.Signals == nil {
			httpx.ErrorCtx(r.Context(), w, errors.New("signal storage is not configured"))
			return
		}

		records, err := svcCtx.Signals.Recent(r.Context(), req.Limit)
		if err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}

		views := make([]types.SignalView, 0, len(records))
		for _, rec := range records {
			view := types.SignalView{
				ID:        rec.ID,
				Symbol:    rec.Symbol,
				Interval:  rec.Interval,
				Strategy:  rec.Strategy,
				Direction: rec.Direction,
				Price:     rec.Price,
				CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
			}
			if rec.Confidence.Valid {
				view.Confidence = rec.Confidence.Float64
			}
			if rec.Narrative.Valid {
				view.Narrative = rec.Narrative.String
			}
			views = append(views, view)
		}
		httpx.OkJsonCtx(r.Context(), w, types.SignalsResp{Signals: views})
	}
}
