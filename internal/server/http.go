// Package server assembles the transport servers: the admin HTTP
// surface and the Discord gateway.
package server

import (
	nethttp "net/http"
	"strconv"

	"tux/internal/conf"
	"tux/internal/model"
	"tux/internal/server/middleware"
	"tux/internal/service"
	pkglog "tux/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/wire"
)

// ProviderSet is server providers.
var ProviderSet = wire.NewSet(NewHTTPServer)

// NewHTTPServer new an HTTP server carrying the admin API.
func NewHTTPServer(c *conf.Server, adminSvc *service.AdminService, logger log.Logger) *http.Server {
	logHelper := pkglog.NewLogHelper(logger)

	adminToken := ""
	if c.Http != nil {
		adminToken = c.Http.AdminToken
	}
	if adminToken == "" {
		logHelper.Security("admin API authentication is DISABLED (no admin token configured)")
	}

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
		),
		http.Filter(
			middleware.Logging(logHelper),
			middleware.Auth(adminToken, logHelper),
		),
	}
	if c.Http.Network != "" {
		opts = append(opts, http.Network(c.Http.Network))
	}
	if c.Http.Addr != "" {
		opts = append(opts, http.Address(c.Http.Addr))
	}
	if c.Http.Timeout > 0 {
		opts = append(opts, http.Timeout(c.Http.Timeout))
	}
	srv := http.NewServer(opts...)

	registerAdminRoutes(srv, adminSvc)

	return srv
}

// registerAdminRoutes wires the admin endpoints. Plain JSON routes;
// the service layer owns validation.
func registerAdminRoutes(srv *http.Server, svc *service.AdminService) {
	srv.HandleFunc("/healthz", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r := srv.Route("/admin/v1")

	r.GET("/breakers", func(ctx http.Context) error {
		return ctx.Result(nethttp.StatusOK, svc.BreakerMetrics(ctx))
	})

	r.POST("/breakers/{op}/reset", func(ctx http.Context) error {
		op := model.OperationType(ctx.Vars().Get("op"))
		if err := svc.ResetBreaker(ctx, op); err != nil {
			return badRequest(ctx, err)
		}
		return ctx.Result(nethttp.StatusOK, map[string]string{"status": "reset"})
	})

	r.GET("/retry/{op}", func(ctx http.Context) error {
		op := model.OperationType(ctx.Vars().Get("op"))
		view, err := svc.GetRetryConfig(ctx, op)
		if err != nil {
			return badRequest(ctx, err)
		}
		return ctx.Result(nethttp.StatusOK, view)
	})

	r.PUT("/retry/{op}", func(ctx http.Context) error {
		op := model.OperationType(ctx.Vars().Get("op"))
		var view service.RetryConfigView
		if err := ctx.Bind(&view); err != nil {
			return badRequest(ctx, err)
		}
		if err := svc.UpdateRetryConfig(ctx, op, &view); err != nil {
			return badRequest(ctx, err)
		}
		return ctx.Result(nethttp.StatusOK, map[string]string{"status": "updated"})
	})

	r.GET("/locks", func(ctx http.Context) error {
		return ctx.Result(nethttp.StatusOK, svc.LockStats(ctx))
	})

	r.GET("/cases", func(ctx http.Context) error {
		guildID := ctx.Query().Get("guild_id")
		targetID := ctx.Query().Get("target_id")
		limit, _ := strconv.Atoi(ctx.Query().Get("limit"))
		views, err := svc.ListCases(ctx, guildID, targetID, limit)
		if err != nil {
			return badRequest(ctx, err)
		}
		return ctx.Result(nethttp.StatusOK, views)
	})
}

func badRequest(ctx http.Context, err error) error {
	return ctx.Result(nethttp.StatusBadRequest, map[string]string{"error": err.Error()})
}
