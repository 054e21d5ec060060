package routes

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/vidcache/vidcache/internal/loader"
	"github.com/vidcache/vidcache/internal/render"
	"github.com/vidcache/vidcache/internal/server"
)

type mountRequest struct {
	URL        *string            `json:"url"`
	Attributes *render.Attributes `json:"attributes"`
}

type sourceRequest struct {
	URL        *string            `json:"url"`
	Attributes *render.Attributes `json:"attributes"`
}

// RegisterPlayerRoutes 暴露播放器挂载、换源、渲染与卸载接口。
func RegisterPlayerRoutes(app *fiber.App, players *server.PlayerRegistry) {
	if app == nil || players == nil {
		return
	}

	app.Post("/players", func(c fiber.Ctx) error {
		var req mountRequest
		if len(c.Body()) > 0 {
			if err := c.Bind().JSON(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
			}
		}
		attrs := render.DefaultAttributes()
		if req.Attributes != nil {
			attrs = *req.Attributes
		}

		player, err := players.Create(attrs)
		if err != nil {
			if errors.Is(err, server.ErrRegistryClosed) {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "shutting_down"})
			}
			return err
		}
		if req.URL != nil {
			if _, err := player.Loader.Resolve(c.Context(), *req.URL); err != nil {
				return resolveError(c, err)
			}
		}
		return c.Status(fiber.StatusCreated).JSON(player.Snapshot())
	})

	app.Put("/players/:id/source", func(c fiber.Ctx) error {
		player, ok := players.Lookup(c.Params("id"))
		if !ok {
			return playerNotFound(c)
		}
		var req sourceRequest
		if err := c.Bind().JSON(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
		}
		if req.URL == nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "url_required"})
		}
		if req.Attributes != nil {
			player.SetAttributes(*req.Attributes)
		}
		if _, err := player.Loader.Resolve(c.Context(), *req.URL); err != nil {
			return resolveError(c, err)
		}
		return c.JSON(player.Snapshot())
	})

	app.Get("/players/:id", func(c fiber.Ctx) error {
		player, ok := players.Lookup(c.Params("id"))
		if !ok {
			return playerNotFound(c)
		}
		return c.JSON(player.Snapshot())
	})

	app.Get("/players/:id/render", func(c fiber.Ctx) error {
		player, ok := players.Lookup(c.Params("id"))
		if !ok {
			return playerNotFound(c)
		}
		html, err := player.Plan().HTML()
		if err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		c.Set(fiber.HeaderCacheControl, "no-store")
		return c.SendString(string(html))
	})

	app.Delete("/players/:id", func(c fiber.Ctx) error {
		if !players.Remove(c.Params("id")) {
			return playerNotFound(c)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func playerNotFound(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "player_not_found"})
}

// resolveError 只可能来自并发卸载；其他降级路径都体现在状态中而不是错误。
func resolveError(c fiber.Ctx, err error) error {
	if errors.Is(err, loader.ErrClosed) {
		return c.Status(fiber.StatusGone).JSON(fiber.Map{"error": "player_unmounted"})
	}
	return err
}
