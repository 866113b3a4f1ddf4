// handlers/compliance_routes.go
package handlers

import (
	"duel-match-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupComplianceRoutes(secured fiber.Router, complianceService *services.ComplianceService) {
	secured.Get("/compliance/status", complianceService.GetStatus)
	secured.Get("/admin/compliance", complianceService.ListPlayers)
}
