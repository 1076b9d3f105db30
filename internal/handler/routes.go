package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest"

	"tradepulse/internal/svc"
)

func RegisterHandlers(server *rest.Server, serverCtx *svc.ServiceContext) {
	server.AddRoutes(
		[]rest.Route{
			{
				Method:  http.MethodGet,
				Path:    "/api/health",
				Handler: HealthHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/api/stats",
				Handler: StatsHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/api/candles",
				Handler: CandlesHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/api/candles/latest",
				Handler: LatestCandleHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/api/signals",
				Handler: SignalsHandler(serverCtx),
			},
		},
	)
}
