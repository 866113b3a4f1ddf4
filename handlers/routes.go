// handlers/routes.go
package handlers

import (
	"duel-match-system/middleware"
	"duel-match-system/services"

	"github.com/gofiber/fiber/v2"
	metrics "github.com/rcrowley/go-metrics"
)

// Services groups the handlers the routes are bound to
type Services struct {
	Offers     *services.OfferService
	Matches    *services.MatchService
	Affiliates *services.AffiliateService
	Compliance *services.ComplianceService
	Auth       *services.AuthServiceClient
	Metrics    metrics.Registry
}

// SetupRoutes registers the public routes first: the user context group
// below matches every path registered after it.
func SetupRoutes(app *fiber.App, s Services) {
	SetupMetricsRoutes(app, s.Metrics)

	// 🔓 Provider callback, forwarded by the gateway without a user context
	app.Post("/compliance/kyc-webhook", s.Compliance.KYCWebhook)
	// 📡 EventSource can't set headers, the stream authenticates from the query string
	app.Get("/matches/:id/events", middleware.SSEAuthMiddleware(s.Auth), s.Matches.StreamMatchEvents)

	// 🔐 Secured routes: require user context (userID, roles)
	secured := app.Group("/", middleware.UserContextMiddleware())
	SetupMatchRoutes(secured, s.Offers, s.Matches)
	SetupAffiliateRoutes(secured, s.Affiliates)
	SetupComplianceRoutes(secured, s.Compliance)
}
