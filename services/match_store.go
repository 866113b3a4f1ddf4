package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"duel-match-system/engine"
	"duel-match-system/models"
)

// MatchStore is the Postgres-backed engine.Store. Every state transition is
// one transaction; the conditional updates are what keep a late timer or a
// second server from writing over a finished match.
type MatchStore struct {
	DB *gorm.DB
}

func NewMatchStore(db *gorm.DB) *MatchStore {
	return &MatchStore{DB: db}
}

var _ engine.Store = (*MatchStore)(nil)

func terminalStates() []string {
	out := make([]string, 0, len(models.TerminalStates))
	for _, s := range models.TerminalStates {
		out = append(out, string(s))
	}
	return out
}

func progress(m *models.Match) map[string]interface{} {
	return map[string]interface{}{
		"state":         m.State,
		"current_round": m.CurrentRound,
		"score_a":       m.ScoreA,
		"score_b":       m.ScoreB,
		"updated_at":    time.Now(),
	}
}

func (s *MatchStore) CreateOffer(ctx context.Context, offer *models.Offer, match *models.Match, stake models.LedgerEntry) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(offer).Error; err != nil {
			return fmt.Errorf("insert offer: %w", err)
		}
		if err := tx.Omit("Rounds").Create(match).Error; err != nil {
			return fmt.Errorf("insert match: %w", err)
		}
		if err := tx.Create(&stake).Error; err != nil {
			return fmt.Errorf("insert stake: %w", err)
		}
		return nil
	})
}

func (s *MatchStore) JoinOffer(ctx context.Context, match *models.Match, stake models.LedgerEntry) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Offer{}).
			Where("id = ? AND status = ?", match.OfferID, models.OfferStatusOpen).
			Updates(map[string]interface{}{"status": models.OfferStatusMatched, "updated_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return engine.ErrOfferTaken
		}

		updates := progress(match)
		updates["player_b_id"] = match.PlayerBID
		updates["started_at"] = match.StartedAt
		updates["deadline_at"] = match.DeadlineAt
		res = tx.Model(&models.Match{}).
			Where("id = ? AND state = ?", match.ID, models.MatchStateAwaitingPlayers).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return engine.ErrOfferTaken
		}
		return tx.Create(&stake).Error
	})
}

func (s *MatchStore) SaveMatch(ctx context.Context, match *models.Match) error {
	return s.saveProgress(s.DB.WithContext(ctx), match)
}

func (s *MatchStore) saveProgress(tx *gorm.DB, match *models.Match) error {
	res := tx.Model(&models.Match{}).
		Where("id = ? AND state NOT IN ?", match.ID, terminalStates()).
		Updates(progress(match))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return engine.ErrAlreadyFinalized
	}
	return nil
}

func (s *MatchStore) AppendRound(ctx context.Context, match *models.Match, round *models.Round) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.saveProgress(tx, match); err != nil {
			return err
		}
		return tx.Create(round).Error
	})
}

func (s *MatchStore) Finalize(ctx context.Context, match *models.Match, final *models.Round, st *engine.Settlement) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Match{}).
			Where("id = ? AND state NOT IN ?", match.ID, terminalStates()).
			Updates(map[string]interface{}{
				"state":         st.FinalState,
				"result":        st.Result,
				"score_a":       match.ScoreA,
				"score_b":       match.ScoreB,
				"current_round": match.CurrentRound,
				"pending_a":     nil,
				"pending_b":     nil,
				"void_reason":   st.VoidReason,
				"payout_to":     st.PayoutTo,
				"payout_amount": st.PayoutAmount,
				"fee_amount":    st.FeeAmount,
				"ended_at":      st.SettledAt,
				"updated_at":    time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return engine.ErrAlreadyFinalized
		}

		if final != nil {
			if err := tx.Create(final).Error; err != nil {
				return fmt.Errorf("insert final round: %w", err)
			}
		}
		if len(st.Ledger) > 0 {
			if err := tx.Create(&st.Ledger).Error; err != nil {
				return fmt.Errorf("insert ledger: %w", err)
			}
		}
		if len(st.Commissions) > 0 {
			if err := tx.Create(&st.Commissions).Error; err != nil {
				return fmt.Errorf("insert commissions: %w", err)
			}
		}
		if st.OfferStatus != "" {
			if err := tx.Model(&models.Offer{}).
				Where("id = ?", match.OfferID).
				Updates(map[string]interface{}{"status": st.OfferStatus, "updated_at": time.Now()}).Error; err != nil {
				return fmt.Errorf("update offer: %w", err)
			}
		}
		return nil
	})
}

func orderedRounds(db *gorm.DB) *gorm.DB {
	return db.Order("round_index ASC")
}

func (s *MatchStore) LoadMatch(ctx context.Context, matchID string) (*models.Match, error) {
	var m models.Match
	err := s.DB.WithContext(ctx).Preload("Rounds", orderedRounds).First(&m, "id = ?", matchID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, engine.ErrMatchNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MatchStore) LoadOffer(ctx context.Context, offerID string) (*models.Offer, error) {
	var o models.Offer
	err := s.DB.WithContext(ctx).First(&o, "id = ?", offerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, engine.ErrOfferNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *MatchStore) ActiveMatches(ctx context.Context) ([]models.Match, error) {
	var matches []models.Match
	err := s.DB.WithContext(ctx).
		Preload("Rounds", orderedRounds).
		Where("state NOT IN ?", terminalStates()).
		Order("created_at ASC").
		Find(&matches).Error
	return matches, err
}
