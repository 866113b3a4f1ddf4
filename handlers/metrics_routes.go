// handlers/metrics_routes.go
package handlers

import (
	"github.com/gofiber/fiber/v2"
	metrics "github.com/rcrowley/go-metrics"
)

// SetupMetricsRoutes exposes the metrics registry as JSON
func SetupMetricsRoutes(app *fiber.App, registry metrics.Registry) {
	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		metrics.WriteJSONOnce(registry, c)
		return nil
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}
