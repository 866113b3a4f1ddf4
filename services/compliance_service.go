package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"duel-match-system/engine"
	"duel-match-system/models"
	"duel-match-system/utils"
)

// ComplianceService gates play on the locally mirrored KYC data
type ComplianceService struct {
	DB               *gorm.DB
	BlockedCountries []string
	L1MaxStake       int64 // stake ceiling for KYC tier L1
}

func NewComplianceService(db *gorm.DB, blockedCountries []string, l1MaxStake int64) *ComplianceService {
	upper := make([]string, 0, len(blockedCountries))
	for _, c := range blockedCountries {
		upper = append(upper, strings.ToUpper(c))
	}
	return &ComplianceService{DB: db, BlockedCountries: upper, L1MaxStake: l1MaxStake}
}

var _ engine.ComplianceGate = (*ComplianceService)(nil)

// StakeCeiling is the largest stake a KYC tier may play
func (s *ComplianceService) StakeCeiling(tier models.KYCTier) int64 {
	switch tier {
	case models.KYCTierL1:
		return s.L1MaxStake
	case models.KYCTierL2:
		return engine.MaxStake
	}
	return 0
}

// restrictions lists the message keys that keep a player from playing, with
// their format arguments
func (s *ComplianceService) restrictions(p *models.Player) [][]interface{} {
	var out [][]interface{}
	if p.IsBanned {
		out = append(out, []interface{}{"Account suspended"})
	}
	if p.KYCTier == models.KYCTierNone || p.KYCTier == "" {
		out = append(out, []interface{}{"Must complete KYC verification to play"})
	}
	if !p.IsOver18 {
		out = append(out, []interface{}{"Players must be 18 or older"})
	}
	if p.Country != nil && slices.Contains(s.BlockedCountries, strings.ToUpper(*p.Country)) {
		out = append(out, []interface{}{"Gaming not available in %s", *p.Country})
	}
	return out
}

func (s *ComplianceService) loadPlayer(ctx context.Context, playerID string) (*models.Player, error) {
	var p models.Player
	err := s.DB.WithContext(ctx).Where("external_user_id = ?", playerID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: no compliance record for %s", engine.ErrNotEligible, playerID)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CheckEligible is the yes/no gate the registry calls before opening or joining
func (s *ComplianceService) CheckEligible(ctx context.Context, playerID string, stake int64) error {
	p, err := s.loadPlayer(ctx, playerID)
	if err != nil {
		return err
	}
	if r := s.restrictions(p); len(r) > 0 {
		return fmt.Errorf("%w: %s", engine.ErrNotEligible, fmt.Sprintf(r[0][0].(string), r[0][1:]...))
	}
	if ceiling := s.StakeCeiling(p.KYCTier); stake > ceiling {
		return fmt.Errorf("%w: stake %d exceeds the %s limit of %d", engine.ErrNotEligible, stake, p.KYCTier, ceiling)
	}
	return nil
}

// GetStatus handles GET /compliance/status
func (s *ComplianceService) GetStatus(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	p, err := s.loadPlayer(c.UserContext(), userID)
	if errors.Is(err, engine.ErrNotEligible) {
		p = &models.Player{ExternalUserID: userID, KYCTier: models.KYCTierNone}
	} else if err != nil {
		return respondError(c, err)
	}

	lang := Lang(c)
	restrictions := []string{}
	for _, r := range s.restrictions(p) {
		restrictions = append(restrictions, utils.Localize(lang, r[0].(string), r[1:]...))
	}

	return c.JSON(fiber.Map{
		"kyc_tier":     p.KYCTier,
		"country":      p.Country,
		"is_verified":  p.KYCTier != models.KYCTierNone && p.KYCTier != "",
		"can_play":     len(restrictions) == 0,
		"max_stake":    fmt.Sprint(s.StakeCeiling(p.KYCTier)),
		"restrictions": restrictions,
	})
}

// KYCWebhookRequest is sent by the KYC provider through the gateway
type KYCWebhookRequest struct {
	UserID         string  `json:"user_id"`
	Tier           string  `json:"tier"`
	Status         string  `json:"status"`
	VerificationID string  `json:"verification_id"`
	Country        *string `json:"country,omitempty"`
	IsOver18       *bool   `json:"is_over_18,omitempty"`
}

// KYCWebhook handles POST /compliance/kyc-webhook. Only approved
// verifications change the player's tier.
func (s *ComplianceService) KYCWebhook(c *fiber.Ctx) error {
	var req KYCWebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if req.UserID == "" {
		return badRequest(c, "user_id is required")
	}
	tier := models.KYCTier(strings.ToUpper(req.Tier))
	switch tier {
	case models.KYCTierNone, models.KYCTierL1, models.KYCTierL2:
	default:
		return badRequest(c, fmt.Sprintf("unknown tier %q", req.Tier))
	}

	if !strings.EqualFold(req.Status, "approved") {
		log.Printf("[Compliance] KYC %s for %s ignored (status=%s)", req.VerificationID, req.UserID, req.Status)
		return c.JSON(fiber.Map{"received": true})
	}

	player := models.Player{
		ID:             uuid.NewString(),
		ExternalUserID: req.UserID,
		KYCTier:        tier,
	}
	columns := []string{"kyc_tier", "updated_at"}
	if req.Country != nil {
		country := strings.ToUpper(*req.Country)
		player.Country = &country
		columns = append(columns, "country")
	}
	if req.IsOver18 != nil {
		player.IsOver18 = *req.IsOver18
		columns = append(columns, "is_over_18")
	}

	if err := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_user_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&player).Error; err != nil {
		log.Printf("[Compliance] ❌ failed to store KYC result for %s: %v", req.UserID, err)
		return respondError(c, err)
	}

	log.Printf("[Compliance] ✅ KYC %s approved for %s: tier %s", req.VerificationID, req.UserID, tier)
	return c.JSON(fiber.Map{"received": true})
}

// ListPlayers handles GET /admin/compliance
func (s *ComplianceService) ListPlayers(c *fiber.Ctx) error {
	if !hasRole(c, "admin") {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin role required"})
	}
	query := s.DB.Order("updated_at DESC").Limit(200)
	if tier := c.Query("tier"); tier != "" {
		query = query.Where("kyc_tier = ?", strings.ToUpper(tier))
	}
	var players []models.Player
	if err := query.Find(&players).Error; err != nil {
		return respondError(c, err)
	}
	return c.JSON(players)
}
