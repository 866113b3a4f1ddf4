package services

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"duel-match-system/engine"
	"duel-match-system/models"
	"duel-match-system/utils"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "match.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.Player{},
		&models.Affiliate{},
		&models.Referral{},
		&models.Offer{},
		&models.Match{},
		&models.Round{},
		&models.CommissionEvent{},
		&models.LedgerEntry{},
	))
	return db
}

func seedPlayer(t *testing.T, db *gorm.DB, id string, tier models.KYCTier, country string) {
	t.Helper()
	p := models.Player{
		ID:             id + "-uuid",
		ExternalUserID: id,
		Username:       id,
		KYCTier:        tier,
		IsOver18:       true,
	}
	if country != "" {
		p.Country = &country
	}
	require.NoError(t, db.Create(&p).Error)
}

const testUnitsPerCoin = 1_000_000_000

func testOracle(t *testing.T) *PriceOracle {
	t.Helper()
	o, err := NewPriceOracle(decimal.NewFromInt(150), testUnitsPerCoin)
	require.NoError(t, err)
	return o
}

// stack is the whole service wired on SQLite and a real timer scheduler
type stack struct {
	db         *gorm.DB
	registry   *engine.Registry
	hub        *EventHub
	affiliates *AffiliateService
	compliance *ComplianceService
	app        *fiber.App
}

func newStack(t *testing.T) *stack {
	t.Helper()
	db := newTestDB(t)
	oracle := testOracle(t)

	timers, err := engine.NewCronScheduler(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = timers.Shutdown() })

	cfg := engine.DefaultConfig()
	cfg.Rules = map[models.GameType]engine.Rules{
		models.GameTypeRockPaperScissors: {WinsNeeded: 2, MaxRounds: 4, MoveTimeout: time.Minute},
		models.GameTypeCoinFlip:          {WinsNeeded: 1, MaxRounds: 1, MoveTimeout: time.Minute},
	}
	cfg.SettlementBackoff = 0

	s := &stack{
		db:         db,
		hub:        NewEventHub(16),
		affiliates: NewAffiliateService(db, oracle),
		compliance: NewComplianceService(db, []string{"us", "kp"}, testUnitsPerCoin),
	}
	s.registry, err = engine.NewRegistry(cfg, engine.Deps{
		Store:      NewMatchStore(db),
		Referrals:  s.affiliates,
		Compliance: s.compliance,
		Notifier:   s.hub,
		Scheduler:  timers,
	})
	require.NoError(t, err)
	t.Cleanup(s.registry.Shutdown)

	offers := NewOfferService(db, s.registry, oracle, decimal.RequireFromString("0.10"))
	matches := NewMatchService(db, s.registry, s.hub)

	s.app = fiber.New()
	// stands in for the gateway user context middleware
	s.app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", c.Get("X-User-ID"))
		var roles []string
		if r := c.Get("X-User-Roles"); r != "" {
			roles = strings.Split(r, ",")
		}
		c.Locals("user_roles", roles)
		c.Locals("lang", utils.MatchLanguage(c.Get("Accept-Language")))
		return c.Next()
	})
	s.app.Get("/offers", offers.ListOffers)
	s.app.Post("/offers", offers.CreateOffer)
	s.app.Post("/offers/:id/join", offers.JoinOffer)
	s.app.Post("/offers/:id/cancel", offers.CancelOffer)
	s.app.Get("/offers/:id/match", offers.GetOfferMatch)
	s.app.Get("/matches/:id", matches.GetMatch)
	s.app.Get("/matches/:id/events", matches.StreamMatchEvents)
	s.app.Post("/matches/:id/moves", matches.SubmitMove)
	s.app.Get("/players/me/matches", matches.GetMyMatches)
	s.app.Post("/affiliates", s.affiliates.CreateAffiliate)
	s.app.Get("/affiliates/me/stats", s.affiliates.GetMyStats)
	s.app.Post("/referrals", s.affiliates.UseReferralCode)
	s.app.Get("/admin/affiliates", s.affiliates.ListAffiliates)
	s.app.Get("/compliance/status", s.compliance.GetStatus)
	s.app.Post("/compliance/kyc-webhook", s.compliance.KYCWebhook)
	return s
}

type response struct {
	status int
	body   []byte
}

func (r response) decode(t *testing.T, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.body, v), string(r.body))
}

func (r response) errorText(t *testing.T) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	r.decode(t, &body)
	return body.Error
}

func call(t *testing.T, app *fiber.App, method, path, user string, body interface{}, headers ...string) response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{status: resp.StatusCode, body: data}
}
