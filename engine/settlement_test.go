package engine

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duel-match-system/models"
)

func finishedMatch(stake int64) *models.Match {
	return &models.Match{
		ID:          "match-1",
		OfferID:     "offer-1",
		PlayerAID:   "alice",
		PlayerBID:   "bob",
		GameType:    models.GameTypeRockPaperScissors,
		StakeAmount: stake,
	}
}

func referral(id, affiliateID, owner string, referredAt time.Time) models.Referral {
	return models.Referral{
		ID:          id,
		AffiliateID: affiliateID,
		ReferredAt:  referredAt,
		Affiliate:   &models.Affiliate{ID: affiliateID, OwnerID: owner},
	}
}

func sumLedger(s *Settlement, kind models.LedgerKind) int64 {
	var total int64
	for _, e := range s.Ledger {
		if e.Kind == kind {
			total += e.Amount
		}
	}
	return total
}

func TestSettle_WinnerScenario(t *testing.T) {
	clock := clockwork.NewFakeClock()
	policy := DefaultSettlementPolicy()
	m := finishedMatch(1_000_000)
	refs := map[string]models.Referral{
		"bob": referral("ref-1", "aff-1", "carol", clock.Now().Add(-24*time.Hour)),
	}

	s, err := policy.Settle(m, models.ResultPlayerA, refs, clock.Now())
	require.NoError(t, err)

	assert.Equal(t, "alice", s.PayoutTo)
	assert.Equal(t, int64(1_800_000), s.PayoutAmount)
	assert.Equal(t, int64(200_000), s.FeeAmount)
	assert.Equal(t, int64(2_000_000), s.Pool())

	require.Len(t, s.Commissions, 1)
	assert.Equal(t, int64(140_000), s.Commissions[0].Amount)
	assert.Equal(t, models.CommissionTierInitial, s.Commissions[0].Tier)
	assert.Equal(t, "ref-1", s.Commissions[0].ReferralID)

	assert.Equal(t, int64(1_800_000), sumLedger(s, models.LedgerKindPayout))
	assert.Equal(t, int64(200_000), sumLedger(s, models.LedgerKindFee))
	assert.Equal(t, int64(140_000), sumLedger(s, models.LedgerKindCommission))
	for _, e := range s.Ledger {
		if e.Kind == models.LedgerKindCommission {
			assert.Equal(t, models.AccountPlatform, e.FromAccount)
			assert.Equal(t, "carol", e.ToAccount)
		}
	}
}

func TestSettle_ConservesPool(t *testing.T) {
	policy := DefaultSettlementPolicy()
	now := time.Now()
	stakes := []int64{1, 2, 9, 10, 11, 333, 1_000_000, 123_456_789_013, MaxStake - 1, MaxStake}
	for _, stake := range stakes {
		for _, result := range []models.MatchResult{models.ResultPlayerA, models.ResultPlayerB, models.ResultDraw} {
			s, err := policy.Settle(finishedMatch(stake), result, nil, now)
			require.NoError(t, err, "stake %d", stake)
			assert.Equal(t, stake*2, s.PayoutAmount+s.FeeAmount, "stake %d result %s", stake, result)
			assert.GreaterOrEqual(t, s.FeeAmount, int64(0))
		}
	}
}

func TestSettle_OddRates(t *testing.T) {
	policy := DefaultSettlementPolicy()
	policy.FeeRate = decimal.RequireFromString("0.0333")

	s, err := policy.Settle(finishedMatch(1001), models.ResultPlayerB, nil, time.Now())
	require.NoError(t, err)
	// floor(1001 * 0.0333) = 33 per player
	assert.Equal(t, int64(66), s.FeeAmount)
	assert.Equal(t, int64(2002-66), s.PayoutAmount)
	assert.Equal(t, "bob", s.PayoutTo)
}

func TestSettle_DrawRefundsEverything(t *testing.T) {
	now := time.Now()
	refs := map[string]models.Referral{
		"alice": referral("ref-1", "aff-1", "carol", now.Add(-time.Hour)),
	}
	s, err := DefaultSettlementPolicy().Settle(finishedMatch(500), models.ResultDraw, refs, now)
	require.NoError(t, err)

	assert.Equal(t, models.ResultDraw, s.Result)
	assert.Zero(t, s.FeeAmount)
	assert.Empty(t, s.Commissions)
	assert.Empty(t, s.PayoutTo)

	refunds := map[string]int64{}
	for _, e := range s.Ledger {
		require.Equal(t, models.LedgerKindRefund, e.Kind)
		refunds[e.ToAccount] += e.Amount
	}
	assert.Equal(t, map[string]int64{"alice": 500, "bob": 500}, refunds)
}

func TestSettle_TierBoundaries(t *testing.T) {
	clock := clockwork.NewFakeClock()
	policy := DefaultSettlementPolicy()
	day := 24 * time.Hour

	cases := []struct {
		age  time.Duration
		tier models.CommissionTier
		want int64
	}{
		{6 * day, models.CommissionTierInitial, 140_000},
		{7*day - time.Second, models.CommissionTierInitial, 140_000},
		{7 * day, models.CommissionTierLifetime, 100_000},
		{8 * day, models.CommissionTierLifetime, 100_000},
	}
	for _, tc := range cases {
		refs := map[string]models.Referral{
			"alice": referral("ref-1", "aff-1", "carol", clock.Now().Add(-tc.age)),
		}
		s, err := policy.Settle(finishedMatch(1_000_000), models.ResultPlayerB, refs, clock.Now())
		require.NoError(t, err)
		require.Len(t, s.Commissions, 1, "age %s", tc.age)
		assert.Equal(t, tc.tier, s.Commissions[0].Tier, "age %s", tc.age)
		assert.Equal(t, tc.want, s.Commissions[0].Amount, "age %s", tc.age)
	}
}

func TestSettle_SharedAffiliateEarnsOnce(t *testing.T) {
	now := time.Now()
	refs := map[string]models.Referral{
		"alice": referral("ref-a", "aff-1", "carol", now.Add(-time.Hour)),
		"bob":   referral("ref-b", "aff-1", "carol", now.Add(-30*24*time.Hour)),
	}
	s, err := DefaultSettlementPolicy().Settle(finishedMatch(1_000_000), models.ResultPlayerA, refs, now)
	require.NoError(t, err)

	require.Len(t, s.Commissions, 1)
	assert.Equal(t, "ref-a", s.Commissions[0].ReferralID, "seat A's referral is used")
	assert.Equal(t, int64(140_000), s.Commissions[0].Amount)
}

func TestSettle_TwoAffiliatesSplitTheFee(t *testing.T) {
	now := time.Now()
	refs := map[string]models.Referral{
		"alice": referral("ref-a", "aff-1", "carol", now.Add(-time.Hour)),
		"bob":   referral("ref-b", "aff-2", "dave", now.Add(-30*24*time.Hour)),
	}
	s, err := DefaultSettlementPolicy().Settle(finishedMatch(1_000_000), models.ResultPlayerA, refs, now)
	require.NoError(t, err)

	require.Len(t, s.Commissions, 2)
	byRef := map[string]models.CommissionEvent{}
	for _, c := range s.Commissions {
		byRef[c.ReferralID] = c
	}
	assert.Equal(t, int64(70_000), byRef["ref-a"].Amount)
	assert.Equal(t, models.CommissionTierInitial, byRef["ref-a"].Tier)
	assert.Equal(t, int64(50_000), byRef["ref-b"].Amount)
	assert.Equal(t, models.CommissionTierLifetime, byRef["ref-b"].Tier)
	assert.LessOrEqual(t, sumLedger(s, models.LedgerKindCommission), s.FeeAmount)
}

func TestSettle_AffiliatePlayingOwnMatchEarnsNothing(t *testing.T) {
	now := time.Now()
	refs := map[string]models.Referral{
		"alice": referral("ref-a", "aff-1", "bob", now.Add(-time.Hour)),
	}
	s, err := DefaultSettlementPolicy().Settle(finishedMatch(1_000_000), models.ResultPlayerA, refs, now)
	require.NoError(t, err)
	assert.Empty(t, s.Commissions)
}

func TestSettle_Rejects(t *testing.T) {
	policy := DefaultSettlementPolicy()
	_, err := policy.Settle(finishedMatch(0), models.ResultPlayerA, nil, time.Now())
	assert.ErrorIs(t, err, ErrStakeOutOfRange)

	_, err = policy.Settle(finishedMatch(MaxStake+1), models.ResultPlayerA, nil, time.Now())
	assert.ErrorIs(t, err, ErrStakeOutOfRange)

	m := finishedMatch(100)
	m.PlayerBID = ""
	_, err = policy.Settle(m, models.ResultPlayerA, nil, time.Now())
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = policy.Settle(finishedMatch(100), models.ResultVoid, nil, time.Now())
	assert.Error(t, err)
}

func TestRefund(t *testing.T) {
	policy := DefaultSettlementPolicy()
	now := time.Now()

	s := policy.Refund(finishedMatch(750), models.MatchStateVoided, "store failure", now)
	assert.Equal(t, models.ResultVoid, s.Result)
	assert.Equal(t, "store failure", s.VoidReason)
	assert.Equal(t, int64(1500), s.PayoutAmount)
	assert.Zero(t, s.FeeAmount)
	assert.Empty(t, s.Commissions)
	assert.Len(t, s.Ledger, 2)

	awaiting := finishedMatch(750)
	awaiting.PlayerBID = ""
	s = policy.Refund(awaiting, models.MatchStateExpired, "offer expired unmatched", now)
	assert.Equal(t, models.OfferStatusExpired, s.OfferStatus)
	require.Len(t, s.Ledger, 1)
	assert.Equal(t, "alice", s.Ledger[0].ToAccount)
	assert.Equal(t, int64(750), s.Ledger[0].Amount)
}

func TestSettlementPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultSettlementPolicy().Validate())

	p := DefaultSettlementPolicy()
	p.FeeRate = decimal.NewFromInt(1)
	assert.Error(t, p.Validate())

	p = DefaultSettlementPolicy()
	p.LifetimeRate = decimal.RequireFromString("1.5")
	assert.Error(t, p.Validate())
}
