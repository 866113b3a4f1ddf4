package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"duel-match-system/models"
)

// MaxStake keeps the two-player pool inside int64
const MaxStake int64 = math.MaxInt64 / 2

// SettlementPolicy holds the money rates. Amounts are always integers in the
// smallest currency unit; rates are exact decimals.
type SettlementPolicy struct {
	FeeRate       decimal.Decimal
	InitialRate   decimal.Decimal
	LifetimeRate  decimal.Decimal
	InitialPeriod time.Duration
}

func DefaultSettlementPolicy() SettlementPolicy {
	return SettlementPolicy{
		FeeRate:       decimal.RequireFromString("0.10"),
		InitialRate:   decimal.RequireFromString("0.70"),
		LifetimeRate:  decimal.RequireFromString("0.50"),
		InitialPeriod: 7 * 24 * time.Hour,
	}
}

func (p SettlementPolicy) Validate() error {
	one := decimal.NewFromInt(1)
	if p.FeeRate.IsNegative() || p.FeeRate.GreaterThanOrEqual(one) {
		return fmt.Errorf("fee rate must be in [0, 1), got %s", p.FeeRate)
	}
	for name, rate := range map[string]decimal.Decimal{"initial": p.InitialRate, "lifetime": p.LifetimeRate} {
		if rate.IsNegative() || rate.GreaterThan(one) {
			return fmt.Errorf("%s commission rate must be in [0, 1], got %s", name, rate)
		}
	}
	if p.InitialPeriod < 0 {
		return fmt.Errorf("initial commission period must not be negative")
	}
	return nil
}

// FeePerPlayer is the fee charged on one seat's stake, rounded down
func (p SettlementPolicy) FeePerPlayer(stake int64) int64 {
	return decimal.NewFromInt(stake).Mul(p.FeeRate).Floor().IntPart()
}

// Tier picks the commission bracket from the referral age at settlement time
func (p SettlementPolicy) Tier(referredAt, settledAt time.Time) (models.CommissionTier, decimal.Decimal) {
	if settledAt.Sub(referredAt) < p.InitialPeriod {
		return models.CommissionTierInitial, p.InitialRate
	}
	return models.CommissionTierLifetime, p.LifetimeRate
}

// CheckStake rejects stakes whose pool would not fit the ledger
func CheckStake(stake int64) error {
	if stake < 1 || stake > MaxStake {
		return fmt.Errorf("%w: %d", ErrStakeOutOfRange, stake)
	}
	return nil
}

// Settlement is the money side of a terminal transition. The store writes it
// in the same transaction as the terminal match state.
type Settlement struct {
	MatchID     string
	FinalState  models.MatchState
	Result      models.MatchResult
	OfferStatus models.OfferStatus // set only when the offer itself changes status
	VoidReason  string

	PayoutTo     string // empty for refunds
	PayoutAmount int64  // winner payout, or the total refunded
	FeeAmount    int64

	Commissions []models.CommissionEvent
	Ledger      []models.LedgerEntry
	SettledAt   time.Time
}

// Pool is the total money the settlement distributes
func (s *Settlement) Pool() int64 {
	return s.PayoutAmount + s.FeeAmount
}

// Settle splits the pool of a finished match. referrals is keyed by the
// referred player id and must carry the Affiliate.
func (p SettlementPolicy) Settle(m *models.Match, result models.MatchResult, referrals map[string]models.Referral, at time.Time) (*Settlement, error) {
	if err := CheckStake(m.StakeAmount); err != nil {
		return nil, err
	}
	if m.PlayerBID == "" {
		return nil, fmt.Errorf("%w: match %s has no second player", ErrInvalidState, m.ID)
	}

	s := &Settlement{
		MatchID:    m.ID,
		FinalState: models.MatchStateFinished,
		Result:     result,
		SettledAt:  at,
	}

	switch result {
	case models.ResultDraw:
		s.refund(m, at)
		return s, nil
	case models.ResultPlayerA:
		s.PayoutTo = m.PlayerAID
	case models.ResultPlayerB:
		s.PayoutTo = m.PlayerBID
	default:
		return nil, fmt.Errorf("cannot settle match %s with result %q", m.ID, result)
	}

	feePerPlayer := p.FeePerPlayer(m.StakeAmount)
	pool := m.StakeAmount * 2
	s.FeeAmount = feePerPlayer * 2
	s.PayoutAmount = pool - s.FeeAmount

	s.Ledger = append(s.Ledger, ledgerEntry(m.ID, models.LedgerKindPayout, models.AccountEscrow, s.PayoutTo, s.PayoutAmount, at))
	if s.FeeAmount > 0 {
		s.Ledger = append(s.Ledger, ledgerEntry(m.ID, models.LedgerKindFee, models.AccountEscrow, models.AccountPlatform, s.FeeAmount, at))
	}

	for _, c := range p.commissions(m, feePerPlayer, referrals, at) {
		s.Commissions = append(s.Commissions, c.event)
		s.Ledger = append(s.Ledger, ledgerEntry(m.ID, models.LedgerKindCommission, models.AccountPlatform, c.ownerID, c.event.Amount, at))
	}
	return s, nil
}

// Refund returns every escrowed stake in full: no fee, no commission
func (p SettlementPolicy) Refund(m *models.Match, state models.MatchState, reason string, at time.Time) *Settlement {
	s := &Settlement{
		MatchID:    m.ID,
		FinalState: state,
		Result:     models.ResultVoid,
		VoidReason: reason,
		SettledAt:  at,
	}
	if state == models.MatchStateExpired {
		s.Result = ""
		s.OfferStatus = models.OfferStatusExpired
	}
	s.refund(m, at)
	return s
}

func (s *Settlement) refund(m *models.Match, at time.Time) {
	for _, player := range []string{m.PlayerAID, m.PlayerBID} {
		if player == "" {
			continue
		}
		s.PayoutAmount += m.StakeAmount
		s.Ledger = append(s.Ledger, ledgerEntry(m.ID, models.LedgerKindRefund, models.AccountEscrow, player, m.StakeAmount, at))
	}
}

type commission struct {
	event   models.CommissionEvent
	ownerID string
}

// commissions attributes the fee to at most one event per affiliate. When
// both seats were referred by different affiliates, each earns on the fee
// charged to its own player.
func (p SettlementPolicy) commissions(m *models.Match, feePerPlayer int64, referrals map[string]models.Referral, at time.Time) []commission {
	type share struct {
		ref  models.Referral
		base int64
	}
	var shares []share
	byAffiliate := map[string]int{}

	for _, player := range []string{m.PlayerAID, m.PlayerBID} {
		ref, ok := referrals[player]
		if !ok || ref.Affiliate == nil {
			continue
		}
		// an affiliate never earns on their own games
		if ref.Affiliate.OwnerID == m.PlayerAID || ref.Affiliate.OwnerID == m.PlayerBID {
			continue
		}
		if i, seen := byAffiliate[ref.AffiliateID]; seen {
			shares[i].base += feePerPlayer
			continue
		}
		byAffiliate[ref.AffiliateID] = len(shares)
		shares = append(shares, share{ref: ref, base: feePerPlayer})
	}

	// a single referred seat earns on the whole match fee
	if len(shares) == 1 {
		shares[0].base = feePerPlayer * 2
	}

	out := make([]commission, 0, len(shares))
	for _, sh := range shares {
		tier, rate := p.Tier(sh.ref.ReferredAt, at)
		amount := decimal.NewFromInt(sh.base).Mul(rate).Floor().IntPart()
		if amount <= 0 {
			continue
		}
		out = append(out, commission{
			ownerID: sh.ref.Affiliate.OwnerID,
			event: models.CommissionEvent{
				ID:         uuid.NewString(),
				ReferralID: sh.ref.ID,
				MatchID:    m.ID,
				Amount:     amount,
				Tier:       tier,
				CreatedAt:  at,
			},
		})
	}
	return out
}

func ledgerEntry(matchID string, kind models.LedgerKind, from, to string, amount int64, at time.Time) models.LedgerEntry {
	return models.LedgerEntry{
		ID:          uuid.NewString(),
		MatchID:     matchID,
		Kind:        kind,
		FromAccount: from,
		ToAccount:   to,
		Amount:      amount,
		Status:      models.TransferStatusPending,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

// StakeEntry escrows one seat's stake
func StakeEntry(matchID, playerID string, stake int64, at time.Time) models.LedgerEntry {
	return ledgerEntry(matchID, models.LedgerKindStake, playerID, models.AccountEscrow, stake, at)
}
