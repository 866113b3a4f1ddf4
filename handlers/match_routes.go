// handlers/match_routes.go
package handlers

import (
	"duel-match-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupMatchRoutes(secured fiber.Router, offerService *services.OfferService, matchService *services.MatchService) {
	// Lobby
	secured.Get("/offers", offerService.ListOffers)
	secured.Post("/offers", offerService.CreateOffer)
	secured.Post("/offers/:id/join", offerService.JoinOffer)
	secured.Post("/offers/:id/cancel", offerService.CancelOffer)
	secured.Get("/offers/:id/match", offerService.GetOfferMatch)

	// Play
	secured.Get("/matches/:id", matchService.GetMatch)
	secured.Post("/matches/:id/moves", matchService.SubmitMove)
	secured.Get("/players/me/matches", matchService.GetMyMatches)
}
