// workers/player_sync_worker.go
package workers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"duel-match-system/models"
	"duel-match-system/services"
	"duel-match-system/utils"
)

// RemotePlayer is one record of the sync service's player feed
type RemotePlayer struct {
	ExternalID        string    `json:"external_id"`
	Username          string    `json:"username"`
	WalletAddress     string    `json:"wallet_address"`
	KYCTier           string    `json:"kyc_tier"`
	Country           *string   `json:"country,omitempty"`
	PreferredLanguage *string   `json:"preferred_language,omitempty"`
	IsOver18          bool      `json:"is_over_18"`
	AccountStatus     string    `json:"account_status"`
	ReferredByCode    *string   `json:"referred_by_code,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type GetPlayerChangesResponse struct {
	Players []RemotePlayer `json:"players"`
}

// PlayerSyncWorker mirrors the compliance fields the engine gates on and
// turns sign-up referral codes into permanent referrals.
type PlayerSyncWorker struct {
	db           *gorm.DB
	affiliates   *services.AffiliateService
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client
	since        time.Time
}

func NewPlayerSyncWorker(db *gorm.DB, affiliates *services.AffiliateService, syncServiceBaseURL, serviceToken string, interval time.Duration) *PlayerSyncWorker {
	return &PlayerSyncWorker{
		db:           db,
		affiliates:   affiliates,
		interval:     interval,
		baseURL:      syncServiceBaseURL,
		endpointPath: "/api/v1/public/players",
		serviceToken: serviceToken,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *PlayerSyncWorker) Run(ctx context.Context) {
	log.Println("🔁 Starting Player Sync Worker (sync-service → players)…")
	if err := w.SyncOnce(ctx); err != nil {
		log.Printf("⚠️ Initial player sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := w.SyncOnce(ctx); err != nil {
				log.Printf("❌ Player sync batch failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Player Sync Worker stopped")
			return
		}
	}
}

func (w *PlayerSyncWorker) fetch(ctx context.Context) ([]RemotePlayer, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid sync service URL '%s': %w", w.baseURL, err)
	}
	endpoint := base.JoinPath(w.endpointPath)
	q := endpoint.Query()
	q.Set("since", w.since.UTC().Format(time.RFC3339))
	endpoint.RawQuery = q.Encode()

	var resp GetPlayerChangesResponse
	if err := utils.DoJSON(ctx, w.httpClient, http.MethodGet, endpoint.String(), w.serviceToken, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Players, nil
}

func toPlayer(r RemotePlayer) models.Player {
	p := models.Player{
		ID:             uuid.NewString(),
		ExternalUserID: r.ExternalID,
		Username:       r.Username,
		WalletAddress:  r.WalletAddress,
		KYCTier:        models.KYCTierNone,
		IsOver18:       r.IsOver18,
		IsBanned:       r.AccountStatus == "banned" || r.AccountStatus == "suspended",
		ReferredByCode: r.ReferredByCode,
		Language:       utils.SupportedLanguages[0].String(),
	}
	switch tier := models.KYCTier(strings.ToUpper(r.KYCTier)); tier {
	case models.KYCTierL1, models.KYCTierL2:
		p.KYCTier = tier
	}
	if r.Country != nil && *r.Country != "" {
		country := strings.ToUpper(*r.Country)
		p.Country = &country
	}
	if r.PreferredLanguage != nil {
		p.Language = utils.MatchLanguage(*r.PreferredLanguage).String()
	}
	return p
}

// SyncOnce pulls the changes since the last successful batch
func (w *PlayerSyncWorker) SyncOnce(ctx context.Context) error {
	remote, err := w.fetch(ctx)
	if err != nil {
		return err
	}
	if len(remote) == 0 {
		return nil
	}

	var upserted, linked, failed int
	latest := w.since
	for _, r := range remote {
		if r.ExternalID == "" {
			continue
		}
		p := toPlayer(r)
		if err := w.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"username", "wallet_address", "kyc_tier", "country", "language",
				"is_over_18", "is_banned", "referred_by_code", "updated_at",
			}),
		}).Create(&p).Error; err != nil {
			failed++
			log.Printf("[SYNC] ⚠️ Failed to upsert player %q: %v", r.ExternalID, err)
			continue
		}
		upserted++
		if r.UpdatedAt.After(latest) {
			latest = r.UpdatedAt
		}

		if r.ReferredByCode == nil || *r.ReferredByCode == "" || w.affiliates == nil {
			continue
		}
		_, err := w.affiliates.LinkReferral(ctx, r.ExternalID, *r.ReferredByCode)
		switch {
		case err == nil:
			linked++
		case errors.Is(err, services.ErrAlreadyReferred):
		default:
			log.Printf("[SYNC] ⚠️ Referral code %q for %s not applied: %v", *r.ReferredByCode, r.ExternalID, err)
		}
	}

	if failed == 0 {
		w.since = latest
	}
	log.Printf("[SYNC] ✅ Synced %d player(s) (%d upserted, %d referrals linked, %d errors)", len(remote), upserted, linked, failed)
	return nil
}
