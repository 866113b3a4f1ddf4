package services

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"duel-match-system/engine"
	"duel-match-system/models"
)

// OfferService exposes the lobby: creating, listing, joining and cancelling offers
type OfferService struct {
	DB       *gorm.DB
	Registry *engine.Registry
	Oracle   *PriceOracle
	MinStake int64 // MIN_BET_EUR converted at startup
}

func NewOfferService(db *gorm.DB, registry *engine.Registry, oracle *PriceOracle, minBetEUR decimal.Decimal) *OfferService {
	return &OfferService{
		DB:       db,
		Registry: registry,
		Oracle:   oracle,
		MinStake: oracle.EURToUnits(minBetEUR),
	}
}

// CreateOfferRequest carries the stake as a decimal string of smallest units,
// so it survives JSON clients that only have float64.
type CreateOfferRequest struct {
	GameType       string `json:"game_type"`
	StakeAmount    string `json:"stake_amount"`
	MoveTimeoutSec int    `json:"move_timeout_sec"`
}

// ParseStake accepts a whole number of smallest units
func ParseStake(raw string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: stake_amount must be a decimal string", engine.ErrInvalidRequest)
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("%w: stake_amount must be a whole number of units", engine.ErrInvalidRequest)
	}
	if !d.IsPositive() || d.GreaterThan(decimal.NewFromInt(engine.MaxStake)) {
		return 0, fmt.Errorf("%w: %s", engine.ErrStakeOutOfRange, raw)
	}
	return d.IntPart(), nil
}

// CreateOffer handles POST /offers
func (s *OfferService) CreateOffer(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req CreateOfferRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	stake, err := ParseStake(req.StakeAmount)
	if err != nil {
		return respondError(c, err)
	}
	if stake < s.MinStake {
		return respondError(c, fmt.Errorf("%w: minimum stake is %d (%s EUR)",
			engine.ErrStakeOutOfRange, s.MinStake, s.Oracle.UnitsToEUR(s.MinStake).StringFixed(2)))
	}

	view, err := s.Registry.Open(c.UserContext(), engine.OpenRequest{
		CreatorID:      userID,
		GameType:       models.GameType(strings.ToUpper(req.GameType)),
		StakeAmount:    stake,
		MoveTimeoutSec: req.MoveTimeoutSec,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(view)
}

// ListOffers handles GET /offers: open offers, newest first
func (s *OfferService) ListOffers(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	size := c.QueryInt("size", 20)
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	query := s.DB.WithContext(c.UserContext()).Model(&models.Offer{}).
		Where("status = ? AND expires_at > ?", models.OfferStatusOpen, s.Registry.Now())
	if gameType := c.Query("game_type"); gameType != "" {
		query = query.Where("game_type = ?", strings.ToUpper(gameType))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return respondError(c, err)
	}
	var offers []models.Offer
	if err := query.Order("created_at DESC").Limit(size).Offset((page - 1) * size).Find(&offers).Error; err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"offers":      offers,
		"page":        page,
		"size":        size,
		"total_items": total,
		"total_pages": int((total + int64(size) - 1) / int64(size)),
	})
}

// JoinOffer handles POST /offers/:id/join
func (s *OfferService) JoinOffer(c *fiber.Ctx) error {
	view, err := s.Registry.Join(c.UserContext(), c.Params("id"), c.Locals("user_id").(string))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

// CancelOffer handles POST /offers/:id/cancel
func (s *OfferService) CancelOffer(c *fiber.Ctx) error {
	view, err := s.Registry.CancelOffer(c.UserContext(), c.Params("id"), c.Locals("user_id").(string))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

// GetOfferMatch handles GET /offers/:id/match
func (s *OfferService) GetOfferMatch(c *fiber.Ctx) error {
	view, err := s.Registry.GetByOffer(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}
