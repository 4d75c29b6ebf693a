package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/homework-tracker-api/internal/config"
	"github.com/noah-isme/homework-tracker-api/internal/handler"
	"github.com/noah-isme/homework-tracker-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	HomeworkHandler *handler.HomeworkHandler
	JWTMiddleware   fiber.Handler
	WriteLimiter    fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.HomeworkHandler != nil {
		var writeGuards []fiber.Handler
		if deps.WriteLimiter != nil {
			writeGuards = append(writeGuards, deps.WriteLimiter)
		}

		homework := app.Group("/api/v2/homeworks", jwtMiddleware)
		deps.HomeworkHandler.Register(homework, writeGuards...)
	}
}
