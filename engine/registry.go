package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jonboulle/clockwork"

	"duel-match-system/models"
)

// OpenRequest describes a new offer
type OpenRequest struct {
	CreatorID      string
	GameType       models.GameType
	StakeAmount    int64
	MoveTimeoutSec int // 0 keeps the game default
}

// Registry holds every live match and the recently finished ones. Lookups go
// through concurrent maps; mutations are serialized per match by its Machine.
type Registry struct {
	cfg      Config
	deps     Deps
	clock    clockwork.Clock
	notifier Notifier
	metrics  *Metrics

	ctx  context.Context
	stop context.CancelFunc

	live      sync.Map // match id -> *Machine
	byOffer   sync.Map // offer id -> match id
	liveCount atomic.Int64

	retained *expirable.LRU[string, View]
}

func NewRegistry(cfg Config, deps Deps) (*Registry, error) {
	if deps.Store == nil || deps.Referrals == nil || deps.Scheduler == nil {
		return nil, errors.New("registry needs a store, a referral lookup and a scheduler")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settlement policy: %w", err)
	}
	for gameType, rules := range cfg.Rules {
		if err := rules.Validate(); err != nil {
			return nil, fmt.Errorf("invalid rules for %s: %w", gameType, err)
		}
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if cfg.SettlementRetries < 0 {
		cfg.SettlementRetries = 0
	}

	r := &Registry{
		cfg:      cfg,
		deps:     deps,
		clock:    deps.Clock,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
	}
	if r.clock == nil {
		r.clock = clockwork.NewRealClock()
	}
	if r.notifier == nil {
		r.notifier = nopNotifier{}
	}
	if r.metrics == nil {
		r.metrics = NewMetrics(nil)
	}
	r.ctx, r.stop = context.WithCancel(context.Background())
	r.retained = expirable.NewLRU[string, View](cfg.RetentionSize, r.onEvict, cfg.RetentionWindow)
	return r, nil
}

func (r *Registry) onEvict(matchID string, v View) {
	if r.deps.Archiver == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.deps.Archiver.Archive(ctx, v); err != nil {
			log.Printf("[Registry] ⚠️ failed to archive match %s: %v", matchID, err)
		}
	}()
}

func (r *Registry) register(mc *Machine) {
	r.live.Store(mc.match.ID, mc)
	r.byOffer.Store(mc.match.OfferID, mc.match.ID)
	r.metrics.Live.Update(r.liveCount.Add(1))
}

// retire is called by a machine once it reached a terminal state
func (r *Registry) retire(matchID, offerID string, v View) {
	if _, loaded := r.live.LoadAndDelete(matchID); loaded {
		r.metrics.Live.Update(r.liveCount.Add(-1))
	}
	r.byOffer.Delete(offerID)
	r.retained.Add(matchID, v)
}

func (r *Registry) machine(matchID string) (*Machine, bool) {
	v, ok := r.live.Load(matchID)
	if !ok {
		return nil, false
	}
	return v.(*Machine), true
}

func (r *Registry) checkEligible(ctx context.Context, playerID string, stake int64) error {
	if r.deps.Compliance == nil {
		return nil
	}
	return r.deps.Compliance.CheckEligible(ctx, playerID, stake)
}

// Now is the registry's clock, for callers that compare against match times
func (r *Registry) Now() time.Time {
	return r.clock.Now()
}

// LiveCount is the number of matches not yet terminal
func (r *Registry) LiveCount() int64 {
	return r.liveCount.Load()
}

// Open creates an offer and its match in AWAITING_PLAYERS
func (r *Registry) Open(ctx context.Context, req OpenRequest) (View, error) {
	if _, ok := r.cfg.Rules[req.GameType]; !ok || !SupportedGame(req.GameType) {
		return View{}, fmt.Errorf("%w: %s", ErrUnknownGame, req.GameType)
	}
	if err := CheckStake(req.StakeAmount); err != nil {
		return View{}, err
	}
	if req.MoveTimeoutSec != 0 {
		d := time.Duration(req.MoveTimeoutSec) * time.Second
		if d < MinMoveTimeout || d > MaxMoveTimeout {
			return View{}, fmt.Errorf("%w: move_timeout_sec must be between %d and %d",
				ErrInvalidRequest, int(MinMoveTimeout.Seconds()), int(MaxMoveTimeout.Seconds()))
		}
	}
	if err := r.checkEligible(ctx, req.CreatorID, req.StakeAmount); err != nil {
		return View{}, err
	}

	now := r.clock.Now()
	fee := r.cfg.Policy.FeePerPlayer(req.StakeAmount)
	offer := &models.Offer{
		ID:             uuid.NewString(),
		CreatorID:      req.CreatorID,
		GameType:       req.GameType,
		StakeAmount:    req.StakeAmount,
		FeeAmount:      fee,
		Status:         models.OfferStatusOpen,
		MoveTimeoutSec: req.MoveTimeoutSec,
		ExpiresAt:      now.Add(r.cfg.OfferTTL),
		Timestamps:     models.Timestamps{CreatedAt: now, UpdatedAt: now},
	}
	match := &models.Match{
		ID:             uuid.NewString(),
		OfferID:        offer.ID,
		PlayerAID:      req.CreatorID,
		GameType:       req.GameType,
		StakeAmount:    req.StakeAmount,
		FeePerPlayer:   fee,
		State:          models.MatchStateAwaitingPlayers,
		TossSeed:       rand.Int64(),
		MoveTimeoutSec: req.MoveTimeoutSec,
		Timestamps:     models.Timestamps{CreatedAt: now, UpdatedAt: now},
	}
	offer.MatchID = match.ID

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.StoreTimeout)
	defer cancel()
	if err := r.deps.Store.CreateOffer(sctx, offer, match, StakeEntry(match.ID, req.CreatorID, req.StakeAmount, now)); err != nil {
		return View{}, fmt.Errorf("failed to create offer: %w", err)
	}

	mc, err := newMachine(r, offer, match)
	if err != nil {
		return View{}, err
	}
	// joins and cancels wait until the offer timer is armed
	mc.mu.Lock()
	defer mc.mu.Unlock()
	r.register(mc)
	r.metrics.Opened.Inc(1)

	if err := mc.armOfferTimerLocked(); err != nil {
		mc.logf("❌ failed to arm offer timer: %v", err)
		if err := mc.expireLocked(ctx, models.OfferStatusExpired, "scheduler unavailable"); err != nil {
			mc.logf("⚠️ failed to expire offer, the sweep will retry: %v", err)
		}
		return mc.viewLocked(), nil
	}
	mc.logf("🆕 offer %s opened by %s: %s, stake %d", offer.ID, req.CreatorID, req.GameType, req.StakeAmount)
	mc.publishLocked(EventMatchState)
	return mc.viewLocked(), nil
}

// Join pairs a second player with an open offer and starts the match
func (r *Registry) Join(ctx context.Context, offerID, playerID string) (View, error) {
	mc, err := r.machineByOffer(ctx, offerID)
	if err != nil {
		return View{}, err
	}
	if err := r.checkEligible(ctx, playerID, mc.stake); err != nil {
		return View{}, err
	}
	return mc.join(ctx, playerID)
}

// CreateMatch opens an offer and immediately pairs it
func (r *Registry) CreateMatch(ctx context.Context, req OpenRequest, playerB string) (View, error) {
	if req.CreatorID == playerB {
		return View{}, ErrSelfJoin
	}
	v, err := r.Open(ctx, req)
	if err != nil {
		return View{}, err
	}
	return r.Join(ctx, v.OfferID, playerB)
}

func (r *Registry) machineByOffer(ctx context.Context, offerID string) (*Machine, error) {
	if id, ok := r.byOffer.Load(offerID); ok {
		if mc, ok := r.machine(id.(string)); ok {
			return mc, nil
		}
	}
	offer, err := r.deps.Store.LoadOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: offer %s is %s", ErrOfferTaken, offerID, offer.Status)
}

// Get returns the current view of a match
func (r *Registry) Get(ctx context.Context, matchID string) (View, error) {
	if mc, ok := r.machine(matchID); ok {
		return mc.View(), nil
	}
	if v, ok := r.retained.Get(matchID); ok {
		return v, nil
	}
	m, err := r.deps.Store.LoadMatch(ctx, matchID)
	if err != nil {
		return View{}, err
	}
	return NewView(m), nil
}

// GetByOffer returns the match created for an offer
func (r *Registry) GetByOffer(ctx context.Context, offerID string) (View, error) {
	if id, ok := r.byOffer.Load(offerID); ok {
		return r.Get(ctx, id.(string))
	}
	offer, err := r.deps.Store.LoadOffer(ctx, offerID)
	if err != nil {
		return View{}, err
	}
	return r.Get(ctx, offer.MatchID)
}

// SubmitMove routes a choice to the owning machine
func (r *Registry) SubmitMove(ctx context.Context, matchID, playerID string, choice Choice) (View, error) {
	if mc, ok := r.machine(matchID); ok {
		return mc.submit(ctx, playerID, choice)
	}
	v, err := r.Get(ctx, matchID)
	if err != nil {
		return View{}, err
	}
	return View{}, fmt.Errorf("%w: match %s is %s", ErrInvalidState, matchID, v.State)
}

// CancelOffer lets the creator withdraw an unmatched offer
func (r *Registry) CancelOffer(ctx context.Context, offerID, playerID string) (View, error) {
	mc, err := r.machineByOffer(ctx, offerID)
	if err != nil {
		return View{}, err
	}
	return mc.cancelOffer(ctx, playerID)
}

// Recover rebuilds the registry from the store after a restart. Open offers
// still inside their TTL come back with a fresh expiry timer; matches that
// were being played lost their timers and are voided with refunds.
func (r *Registry) Recover(ctx context.Context) (int, error) {
	matches, err := r.deps.Store.ActiveMatches(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load active matches: %w", err)
	}

	now := r.clock.Now()
	recovered := 0
	for i := range matches {
		m := &matches[i]
		if _, ok := r.machine(m.ID); ok {
			continue
		}
		offer, err := r.deps.Store.LoadOffer(ctx, m.OfferID)
		if err != nil {
			log.Printf("[Registry] ⚠️ skipping match %s, offer unavailable: %v", m.ID, err)
			continue
		}
		mc, err := newMachine(r, offer, m)
		if err != nil {
			log.Printf("[Registry] ⚠️ skipping match %s: %v", m.ID, err)
			continue
		}
		mc.mu.Lock()
		r.register(mc)
		recovered++

		switch {
		case m.State != models.MatchStateAwaitingPlayers:
			mc.voidLocked(ctx, "server restarted during the match")
		case now.Before(offer.ExpiresAt):
			if err := mc.armOfferTimerLocked(); err != nil {
				mc.voidLocked(ctx, "scheduler unavailable: "+err.Error())
			}
		default:
			if err := mc.expireLocked(ctx, models.OfferStatusExpired, "offer expired unmatched"); err != nil {
				mc.logf("⚠️ failed to expire offer, the sweep will retry: %v", err)
			}
		}
		mc.mu.Unlock()
	}
	log.Printf("[Registry] ♻️ recovered %d active matches, %d still live", recovered, r.liveCount.Load())
	return recovered, nil
}

// Sweep applies overdue expiries and voids matches past their deadline.
// Timers normally do this; the sweep covers timers that were lost.
func (r *Registry) Sweep(ctx context.Context) int {
	now := r.clock.Now()
	swept := 0
	r.live.Range(func(_, v any) bool {
		if ctx.Err() != nil {
			return false
		}
		if v.(*Machine).sweep(now) {
			swept++
		}
		return true
	})
	if swept > 0 {
		log.Printf("[Registry] 🧹 sweep closed %d overdue matches", swept)
	}
	return swept
}

// Shutdown cancels every pending timer. Live matches stay in the store and
// are handled by Recover on the next start.
func (r *Registry) Shutdown() {
	r.stop()
}
