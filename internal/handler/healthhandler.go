package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"tradepulse/internal/svc"
	"tradepulse/internal/types"
	"tradepulse/pkg/candlesync"
)

// coordinatorNames lists the sync coordinators this deployment runs, derived
// from which config blocks carry symbols.
func coordinatorNames(svcCtx *svc.ServiceContext) []string {
	var names []string
	if len(svcCtx.Config.Crypto.Symbols) > 0 {
		names = append(names, "crypto")
	}
	if len(svcCtx.Config.Futures.Symbols) > 0 {
		names = append(names, "futures")
	}
	return names
}

// HealthHandler reports per-coordinator health from the stats the sync daemon
// publishes to Redis. A coordinator with no published stats counts as down;
// the published key has a TTL so a dead daemon goes dark on its own.
func HealthHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := types.HealthResp{
			Status:       "ok",
			Coordinators: make(map[string]types.CoordinatorStatus),
		}
		for _, name := range coordinatorNames(svcCtx) {
			var snap candlesync.Snapshot
			if !svcCtx.Cache.ReadStats(r.Context(), name, &snap) {
				resp.Coordinators[name] = types.CoordinatorStatus{Healthy: false}
				resp.Status = "degraded"
				continue
			}
			status := types.CoordinatorStatus{Healthy: snap.Healthy(), Stats: &snap}
			if !status.Healthy {
				resp.Status = "degraded"
			}
			resp.Coordinators[name] = status
		}
		httpx.OkJsonCtx(r.Context(), w, resp)
	}
}

// StatsHandler serves the raw sync counters for every coordinator that has
// published them.
func StatsHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := types.StatsResp{Coordinators: make(map[string]candlesync.Snapshot)}
		for _, name := range coordinatorNames(svcCtx) {
			var snap candlesync.Snapshot
			if svcCtx.Cache.ReadStats(r.Context(), name, &snap) {
				resp.Coordinators[name] = snap
			}
		}
		httpx.OkJsonCtx(r.Context(), w, resp)
	}
}
