package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/vidcache/vidcache/internal/handle"
)

// RegisterBlobRoutes 通过句柄 URL 提供本地缓存字节；句柄撤销后立即返回 404。
func RegisterBlobRoutes(app *fiber.App, handles *handle.Registry) {
	if app == nil || handles == nil {
		return
	}

	app.Get("/blob/:id", func(c fiber.Ctx) error {
		blob, ok := handles.Open(c.Params("id"))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "handle_not_found"})
		}
		c.Set(fiber.HeaderContentType, blob.ContentType)
		c.Set(fiber.HeaderCacheControl, "no-store")
		c.Set("X-Vidcache-Key", blob.Key)
		return c.Send(blob.Data)
	})
}
