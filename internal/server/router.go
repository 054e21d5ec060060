package server

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vidcache/vidcache/internal/blobstore"
	"github.com/vidcache/vidcache/internal/handle"
	"github.com/vidcache/vidcache/internal/logging"
	"github.com/vidcache/vidcache/internal/metrics"
)

// AppOptions 汇总 HTTP 层依赖，便于测试注入。
type AppOptions struct {
	Logger     *logrus.Logger
	Players    *PlayerRegistry
	Handles    *handle.Registry
	Store      blobstore.Store
	Metrics    *metrics.Metrics
	ListenPort int
}

const contextKeyRequestID = "_vidcache_request_id"

// NewApp builds a Fiber application with request-id, access logging and
// JSON error handling. Routes are attached by the routes package.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Players == nil {
		return nil, errors.New("player registry is required")
	}
	if opts.Handles == nil {
		return nil, errors.New("handle registry is required")
	}
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		ErrorHandler:  jsonErrorHandler(opts.Logger),
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts.Logger))

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID 并输出访问日志；诊断路径只记 debug。
func requestContextMiddleware(logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		started := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
		path := string(c.Request().URI().Path())
		entry := logger.WithFields(logging.RequestFields(reqID, c.Method(), path, status)).
			WithField("elapsed_ms", time.Since(started).Milliseconds())
		if isDiagnosticsPath(path) {
			entry.Debug("request_served")
		} else {
			entry.Info("request_served")
		}
		return err
	}
}

func jsonErrorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "internal_error"
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
			if code == fiber.StatusNotFound {
				message = "route_not_found"
			}
		} else {
			logger.WithError(err).WithField("request_id", RequestID(c)).Error("request_failed")
		}
		return c.Status(code).JSON(fiber.Map{"error": message})
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
