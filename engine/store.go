package engine

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"duel-match-system/models"
)

// Store persists offers, matches and the ledger. Implementations must make
// Finalize atomic: the terminal match state, its rounds, ledger entries and
// commission events are written together or not at all.
type Store interface {
	// CreateOffer writes an OPEN offer, its AWAITING_PLAYERS match and the creator's stake
	CreateOffer(ctx context.Context, offer *models.Offer, match *models.Match, stake models.LedgerEntry) error
	// JoinOffer moves the offer from OPEN to MATCHED, starts the match and escrows the joiner's stake.
	// Returns ErrOfferTaken if the offer is no longer OPEN.
	JoinOffer(ctx context.Context, match *models.Match, stake models.LedgerEntry) error
	// SaveMatch writes the progress fields of a live match
	SaveMatch(ctx context.Context, match *models.Match) error
	// AppendRound stores a resolved round together with the match progress
	AppendRound(ctx context.Context, match *models.Match, round *models.Round) error
	// Finalize writes the terminal transition. final is the last resolved round, if any.
	// Returns ErrAlreadyFinalized if the match already left the live states.
	Finalize(ctx context.Context, match *models.Match, final *models.Round, s *Settlement) error

	LoadMatch(ctx context.Context, matchID string) (*models.Match, error)
	LoadOffer(ctx context.Context, offerID string) (*models.Offer, error)
	// ActiveMatches lists every match not yet in a terminal state
	ActiveMatches(ctx context.Context) ([]models.Match, error)
}

// ReferralLookup returns the referrals of the given players keyed by player id,
// with the Affiliate loaded.
type ReferralLookup interface {
	ReferralsFor(ctx context.Context, playerIDs ...string) (map[string]models.Referral, error)
}

// ComplianceGate is the yes/no eligibility check plus the stake ceiling
type ComplianceGate interface {
	CheckEligible(ctx context.Context, playerID string, stake int64) error
}

// Archiver receives terminal matches once they leave the retention window
type Archiver interface {
	Archive(ctx context.Context, v View) error
}

// Config tunes the registry and the machines it owns
type Config struct {
	Rules  map[models.GameType]Rules
	Policy SettlementPolicy

	OfferTTL        time.Duration // unmatched offers expire after this
	RetentionWindow time.Duration // terminal matches stay in memory this long
	RetentionSize   int           // cap on retained terminal matches (0 = no cap)
	DeadlineSlack   time.Duration // added to the rules' worst case before a match is voided

	SettlementRetries int
	SettlementBackoff time.Duration
	StoreTimeout      time.Duration
}

func DefaultConfig() Config {
	return Config{
		Rules:             DefaultRules(),
		Policy:            DefaultSettlementPolicy(),
		OfferTTL:          15 * time.Minute,
		RetentionWindow:   10 * time.Minute,
		RetentionSize:     10000,
		DeadlineSlack:     30 * time.Second,
		SettlementRetries: 3,
		SettlementBackoff: 200 * time.Millisecond,
		StoreTimeout:      5 * time.Second,
	}
}

// Deps are the collaborators of the registry. Store, Referrals and
// Scheduler are required.
type Deps struct {
	Store      Store
	Referrals  ReferralLookup
	Compliance ComplianceGate
	Notifier   Notifier
	Archiver   Archiver
	Scheduler  Scheduler
	Clock      clockwork.Clock
	Metrics    *Metrics
}
