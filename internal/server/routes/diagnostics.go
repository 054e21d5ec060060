package routes

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"

	"github.com/vidcache/vidcache/internal/server"
	"github.com/vidcache/vidcache/internal/version"
)

// RegisterDiagnosticsRoutes 暴露 /-/status、/-/players 与 /-/metrics，供 SRE 查询运行状态。
func RegisterDiagnosticsRoutes(app *fiber.App, opts server.AppOptions) {
	if app == nil || opts.Players == nil || opts.Handles == nil || opts.Store == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"version":        version.Current(),
			"store_backend":  opts.Store.Backend(),
			"listen_port":    opts.ListenPort,
			"players":        opts.Players.Len(),
			"active_handles": opts.Handles.Len(),
		})
	})

	app.Get("/-/players", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"players": opts.Players.List()})
	})

	if opts.Metrics != nil {
		refresh := func() {
			opts.Metrics.SetActivePlayers(opts.Players.Len())
			opts.Metrics.SetActiveHandles(opts.Handles.Len())
		}
		app.Get("/-/metrics", adaptor.HTTPHandler(opts.Metrics.Handler(refresh)))
	}
}

// RegisterAll 按固定顺序挂载全部路由。
func RegisterAll(app *fiber.App, opts server.AppOptions) {
	RegisterPlayerRoutes(app, opts.Players)
	RegisterBlobRoutes(app, opts.Handles)
	RegisterDiagnosticsRoutes(app, opts)
}
