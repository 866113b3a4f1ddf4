package workers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"duel-match-system/models"
	"duel-match-system/utils"
)

// TransferDispatcher delivers pending ledger entries to the wallet service.
// The ledger entry id is the idempotency key, so a retry after a lost
// response never moves money twice.
type TransferDispatcher struct {
	DB          *gorm.DB
	BaseURL     string
	Token       string
	HTTPClient  *http.Client
	BatchSize   int
	MaxAttempts int
}

func NewTransferDispatcher(db *gorm.DB, baseURL, token string) *TransferDispatcher {
	return &TransferDispatcher{
		DB:          db,
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Token:       token,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
		BatchSize:   100,
		MaxAttempts: 10,
	}
}

// TransferRequest is transfer(amount, from, to) on the wallet service
type TransferRequest struct {
	IdempotencyKey string            `json:"idempotency_key"`
	MatchID        string            `json:"match_id"`
	Kind           models.LedgerKind `json:"kind"`
	From           string            `json:"from"`
	To             string            `json:"to"`
	Amount         string            `json:"amount"`
}

func (d *TransferDispatcher) send(ctx context.Context, e models.LedgerEntry) error {
	return utils.DoJSON(ctx, d.HTTPClient, http.MethodPost, d.BaseURL+"/api/v1/internal/transfers", d.Token, TransferRequest{
		IdempotencyKey: e.ID,
		MatchID:        e.MatchID,
		Kind:           e.Kind,
		From:           e.FromAccount,
		To:             e.ToAccount,
		Amount:         fmt.Sprint(e.Amount),
	}, nil)
}

// DispatchPending sends one batch of PENDING entries, oldest first
func (d *TransferDispatcher) DispatchPending(ctx context.Context) (sent, failed int, err error) {
	var entries []models.LedgerEntry
	if err := d.DB.WithContext(ctx).
		Where("status = ?", models.TransferStatusPending).
		Order("created_at ASC").
		Limit(d.BatchSize).
		Find(&entries).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to load pending transfers: %w", err)
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			return sent, failed, ctx.Err()
		}

		now := time.Now()
		updates := map[string]interface{}{
			"attempts":   e.Attempts + 1,
			"updated_at": now,
		}
		if sendErr := d.send(ctx, e); sendErr != nil {
			failed++
			updates["last_error"] = sendErr.Error()
			if e.Attempts+1 >= d.MaxAttempts {
				updates["status"] = models.TransferStatusFailed
				log.Printf("❌ [TransferWorker] %s %d %s→%s for match %s gave up after %d attempts: %v",
					e.Kind, e.Amount, e.FromAccount, e.ToAccount, e.MatchID, e.Attempts+1, sendErr)
			} else {
				log.Printf("⚠️ [TransferWorker] %s for match %s failed (attempt %d): %v", e.Kind, e.MatchID, e.Attempts+1, sendErr)
			}
		} else {
			sent++
			updates["status"] = models.TransferStatusSent
			updates["sent_at"] = now
			updates["last_error"] = ""
		}

		if err := d.DB.WithContext(ctx).Model(&models.LedgerEntry{}).
			Where("id = ? AND status = ?", e.ID, models.TransferStatusPending).
			Updates(updates).Error; err != nil {
			log.Printf("❌ [TransferWorker] failed to record transfer %s: %v", e.ID, err)
		}
	}
	return sent, failed, nil
}

// PollTransfers runs DispatchPending on every tick until ctx is done
func PollTransfers(ctx context.Context, d *TransferDispatcher, pollInterval time.Duration) {
	log.Println("🔁 Starting transfer dispatcher (ledger → wallet service)…")
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("⏹️ Transfer dispatcher stopped.")
			return
		case <-ticker.C:
			sent, failed, err := d.DispatchPending(ctx)
			if err != nil {
				log.Printf("❌ [TransferWorker] %v", err)
				continue
			}
			if sent+failed > 0 {
				log.Printf("📤 [TransferWorker] %d sent, %d failed", sent, failed)
			}
		}
	}
}
