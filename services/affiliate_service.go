package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/gosimple/unidecode"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"duel-match-system/engine"
	"duel-match-system/models"
)

var (
	ErrCodeTaken         = errors.New("affiliate code already taken")
	ErrInvalidCode       = errors.New("affiliate code must be 3-20 characters of a-z, 0-9, _ or -")
	ErrUnknownCode       = errors.New("unknown affiliate code")
	ErrAlreadyReferred   = errors.New("player already has a referrer")
	ErrSelfReferral      = errors.New("cannot use your own affiliate code")
	ErrAffiliateNotFound = errors.New("no affiliate code for this user")
)

var codePattern = regexp.MustCompile(`^[a-z0-9_-]{3,20}$`)

const codeAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NormalizeCode transliterates a code to ASCII, lower-cases it and checks its
// shape. Codes compare case-insensitively because they are always stored
// normalized, so "Zoë" and "ZOE" name the same code.
func NormalizeCode(code string) (string, error) {
	code = strings.ToLower(strings.TrimSpace(unidecode.Unidecode(code)))
	if !codePattern.MatchString(code) {
		return "", ErrInvalidCode
	}
	return code, nil
}

// SuggestCode derives a readable code from a username, e.g. "Zoë Ünal" -> "zoe-unal-k3x9"
func SuggestCode(username string) string {
	base := slug.Make(username)
	base = strings.Trim(base, "-_")
	if len(base) > 14 {
		base = strings.Trim(base[:14], "-_")
	}
	if len(base) < 3 {
		return randomSuffix(8)
	}
	return base + "-" + randomSuffix(4)
}

func randomSuffix(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}
	return string(b)
}

// AffiliateService owns affiliate codes and referrals and serves the
// commission stats. Commission events themselves are written by the engine.
type AffiliateService struct {
	DB     *gorm.DB
	Oracle *PriceOracle
	Clock  clockwork.Clock
}

func NewAffiliateService(db *gorm.DB, oracle *PriceOracle) *AffiliateService {
	return &AffiliateService{DB: db, Oracle: oracle, Clock: clockwork.NewRealClock()}
}

var _ engine.ReferralLookup = (*AffiliateService)(nil)

// ReferralsFor returns the referral of each referred player, keyed by player id
func (s *AffiliateService) ReferralsFor(ctx context.Context, playerIDs ...string) (map[string]models.Referral, error) {
	out := map[string]models.Referral{}
	if len(playerIDs) == 0 {
		return out, nil
	}
	var refs []models.Referral
	if err := s.DB.WithContext(ctx).Preload("Affiliate").Where("referred_id IN ?", playerIDs).Find(&refs).Error; err != nil {
		return nil, fmt.Errorf("failed to load referrals: %w", err)
	}
	for _, r := range refs {
		out[r.ReferredID] = r
	}
	return out, nil
}

// CreateAffiliateCode registers the owner's code. A blank code is generated
// from the username. An owner who already has a code gets it back.
func (s *AffiliateService) CreateAffiliateCode(ctx context.Context, ownerID, code, username string) (*models.Affiliate, bool, error) {
	db := s.DB.WithContext(ctx)

	var existing models.Affiliate
	err := db.Where("owner_id = ?", ownerID).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	candidates := []string{}
	if strings.TrimSpace(code) != "" {
		normalized, err := NormalizeCode(code)
		if err != nil {
			return nil, false, err
		}
		candidates = append(candidates, normalized)
	} else {
		for i := 0; i < 10; i++ {
			candidates = append(candidates, SuggestCode(username))
		}
	}

	for _, candidate := range candidates {
		var count int64
		if err := db.Model(&models.Affiliate{}).Unscoped().Where("code = ?", candidate).Count(&count).Error; err != nil {
			return nil, false, err
		}
		if count > 0 {
			continue
		}
		aff := &models.Affiliate{ID: uuid.NewString(), Code: candidate, OwnerID: ownerID}
		if err := db.Create(aff).Error; err != nil {
			return nil, false, fmt.Errorf("failed to create affiliate: %w", err)
		}
		log.Printf("[Affiliates] 🆕 code %s created for %s", aff.Code, ownerID)
		return aff, true, nil
	}
	return nil, false, ErrCodeTaken
}

// LinkReferral permanently attaches a player to the affiliate owning code
func (s *AffiliateService) LinkReferral(ctx context.Context, playerID, code string) (*models.Referral, error) {
	normalized, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}

	var ref *models.Referral
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var aff models.Affiliate
		if err := tx.Where("code = ?", normalized).First(&aff).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnknownCode
			}
			return err
		}
		if aff.OwnerID == playerID {
			return ErrSelfReferral
		}

		var count int64
		if err := tx.Model(&models.Referral{}).Where("referred_id = ?", playerID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyReferred
		}

		ref = &models.Referral{
			ID:          uuid.NewString(),
			AffiliateID: aff.ID,
			ReferredID:  playerID,
			ReferredAt:  s.Clock.Now(),
		}
		return tx.Create(ref).Error
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Affiliates] 🔗 %s referred by code %s", playerID, normalized)
	return ref, nil
}

// AffiliateStats is the owner's dashboard. Amounts are in the smallest unit.
type AffiliateStats struct {
	Code              string  `json:"code"`
	TotalReferrals    int64   `json:"total_referrals"`
	ActiveReferrals   int64   `json:"active_referrals"`
	LifetimeEarnings  int64   `json:"lifetime_earnings,string"`
	Last7DaysEarnings int64   `json:"last_7_days_earnings,string"`
	InitialEarnings   int64   `json:"initial_tier_earnings,string"`
	LifetimeTierEarns int64   `json:"lifetime_tier_earnings,string"`
	LifetimeEUR       string  `json:"lifetime_earnings_eur,omitempty"`
	ConversionRate    float64 `json:"conversion_rate"`
}

func (s *AffiliateService) commissions(db *gorm.DB, affiliateID string) *gorm.DB {
	return db.Model(&models.CommissionEvent{}).
		Joins("JOIN referrals ON referrals.id = commission_events.referral_id").
		Where("referrals.affiliate_id = ?", affiliateID)
}

// Stats aggregates the commission events of an owner's referrals
func (s *AffiliateService) Stats(ctx context.Context, ownerID string) (*AffiliateStats, error) {
	db := s.DB.WithContext(ctx)

	var aff models.Affiliate
	if err := db.Where("owner_id = ?", ownerID).First(&aff).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAffiliateNotFound
		}
		return nil, err
	}

	stats := &AffiliateStats{Code: aff.Code}
	if err := db.Model(&models.Referral{}).Where("affiliate_id = ?", aff.ID).Count(&stats.TotalReferrals).Error; err != nil {
		return nil, err
	}
	if err := s.commissions(db, aff.ID).
		Distinct("commission_events.referral_id").
		Count(&stats.ActiveReferrals).Error; err != nil {
		return nil, err
	}

	var byTier []struct {
		Tier  models.CommissionTier
		Total int64
	}
	if err := s.commissions(db, aff.ID).
		Select("commission_events.tier AS tier, COALESCE(SUM(commission_events.amount), 0) AS total").
		Group("commission_events.tier").
		Scan(&byTier).Error; err != nil {
		return nil, err
	}
	for _, t := range byTier {
		stats.LifetimeEarnings += t.Total
		switch t.Tier {
		case models.CommissionTierInitial:
			stats.InitialEarnings = t.Total
		case models.CommissionTierLifetime:
			stats.LifetimeTierEarns = t.Total
		}
	}

	since := s.Clock.Now().Add(-7 * 24 * time.Hour)
	if err := s.commissions(db, aff.ID).
		Where("commission_events.created_at >= ?", since).
		Select("COALESCE(SUM(commission_events.amount), 0)").
		Scan(&stats.Last7DaysEarnings).Error; err != nil {
		return nil, err
	}

	if stats.TotalReferrals > 0 {
		stats.ConversionRate = float64(stats.ActiveReferrals) / float64(stats.TotalReferrals) * 100
	}
	if s.Oracle != nil {
		stats.LifetimeEUR = s.Oracle.UnitsToEUR(stats.LifetimeEarnings).StringFixed(2)
	}
	return stats, nil
}

func (s *AffiliateService) respond(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrInvalidCode):
		return badRequest(c, err.Error())
	case errors.Is(err, ErrUnknownCode), errors.Is(err, ErrAffiliateNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrCodeTaken), errors.Is(err, ErrAlreadyReferred), errors.Is(err, ErrSelfReferral):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	return respondError(c, err)
}

// CreateAffiliate handles POST /affiliates
func (s *AffiliateService) CreateAffiliate(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		Code string `json:"code"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON body")
		}
	}

	var username string
	s.DB.Model(&models.Player{}).Where("external_user_id = ?", userID).Select("username").Scan(&username)

	aff, created, err := s.CreateAffiliateCode(c.UserContext(), userID, req.Code, username)
	if err != nil {
		return s.respond(c, err)
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(aff)
}

// GetMyStats handles GET /affiliates/me/stats
func (s *AffiliateService) GetMyStats(c *fiber.Ctx) error {
	stats, err := s.Stats(c.UserContext(), c.Locals("user_id").(string))
	if err != nil {
		return s.respond(c, err)
	}
	return c.JSON(stats)
}

// UseReferralCode handles POST /referrals
func (s *AffiliateService) UseReferralCode(c *fiber.Ctx) error {
	var req struct {
		Code string `json:"code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	ref, err := s.LinkReferral(c.UserContext(), c.Locals("user_id").(string), req.Code)
	if err != nil {
		return s.respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ref)
}

// AffiliateSummary is one row of the admin listing
type AffiliateSummary struct {
	ID             string    `json:"id"`
	Code           string    `json:"code"`
	OwnerID        string    `json:"owner_id"`
	TotalReferrals int64     `json:"total_referrals"`
	TotalEarnings  int64     `json:"total_earnings,string"`
	CreatedAt      time.Time `json:"created_at"`
}

// ListAffiliates handles GET /admin/affiliates
func (s *AffiliateService) ListAffiliates(c *fiber.Ctx) error {
	if !hasRole(c, "admin") {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin role required"})
	}

	var rows []AffiliateSummary
	err := s.DB.WithContext(c.UserContext()).Raw(`
		SELECT a.id, a.code, a.owner_id, a.created_at,
			(SELECT COUNT(*) FROM referrals r WHERE r.affiliate_id = a.id) AS total_referrals,
			(SELECT COALESCE(SUM(ce.amount), 0) FROM commission_events ce
				JOIN referrals r ON r.id = ce.referral_id
				WHERE r.affiliate_id = a.id) AS total_earnings
		FROM affiliates a
		WHERE a.deleted_at IS NULL
		ORDER BY a.created_at DESC`).Scan(&rows).Error
	if err != nil {
		return respondError(c, err)
	}
	if rows == nil {
		rows = []AffiliateSummary{}
	}
	return c.JSON(rows)
}
