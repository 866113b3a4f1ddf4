// handlers/affiliate_routes.go
package handlers

import (
	"duel-match-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAffiliateRoutes(secured fiber.Router, affiliateService *services.AffiliateService) {
	secured.Post("/affiliates", affiliateService.CreateAffiliate)
	secured.Get("/affiliates/me/stats", affiliateService.GetMyStats)
	secured.Post("/referrals", affiliateService.UseReferralCode)

	// Admin (role checked in the handler)
	secured.Get("/admin/affiliates", affiliateService.ListAffiliates)
}
