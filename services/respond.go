package services

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/text/language"

	"duel-match-system/engine"
	"duel-match-system/utils"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{engine.ErrInvalidMove, fiber.StatusBadRequest},
	{engine.ErrInvalidRequest, fiber.StatusBadRequest},
	{engine.ErrStakeOutOfRange, fiber.StatusBadRequest},
	{engine.ErrUnknownGame, fiber.StatusBadRequest},
	{engine.ErrNotEligible, fiber.StatusForbidden},
	{engine.ErrNotAPlayer, fiber.StatusForbidden},
	{engine.ErrMatchNotFound, fiber.StatusNotFound},
	{engine.ErrOfferNotFound, fiber.StatusNotFound},
	{engine.ErrInvalidState, fiber.StatusConflict},
	{engine.ErrAlreadyMoved, fiber.StatusConflict},
	{engine.ErrOfferTaken, fiber.StatusConflict},
	{engine.ErrSelfJoin, fiber.StatusConflict},
}

// StatusFor maps an engine error to its HTTP status
func StatusFor(err error) (int, error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status, e.err
		}
	}
	return fiber.StatusInternalServerError, nil
}

// Lang is the language the user context middleware negotiated
func Lang(c *fiber.Ctx) language.Tag {
	if tag, ok := c.Locals("lang").(language.Tag); ok {
		return tag
	}
	return language.English
}

// respondError renders {"error", "cause"}. The error text is localized, the
// cause keeps the full wrapped message.
func respondError(c *fiber.Ctx, err error) error {
	status, sentinel := StatusFor(err)
	key := "internal error"
	if sentinel != nil {
		key = sentinel.Error()
	} else {
		log.Printf("❌ [%s %s] %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{
		"error": utils.Localize(Lang(c), key),
		"cause": err.Error(),
	})
}

func badRequest(c *fiber.Ctx, cause string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": utils.Localize(Lang(c), "invalid request"),
		"cause": cause,
	})
}

func hasRole(c *fiber.Ctx, role string) bool {
	roles, _ := c.Locals("user_roles").([]string)
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
