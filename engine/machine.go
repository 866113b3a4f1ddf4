package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"duel-match-system/models"
)

// Machine owns the lifecycle of one match. Every transition, whether it comes
// from a client call or a timer, runs under mu. Timers capture the epoch they
// were scheduled in and do nothing once the machine has moved past it.
type Machine struct {
	mu sync.Mutex

	reg   *Registry
	match *models.Match
	offer *models.Offer
	rules Rules
	toss  Toss
	stake int64 // fixed at creation, safe to read without mu

	ctx    context.Context // cancel token for every timer of this match
	cancel context.CancelFunc
	epoch  uint64

	offerTimer    *Timer
	moveTimer     *Timer
	delayTimer    *Timer
	deadlineTimer *Timer
	moveDeadline  *time.Time

	// last resolved round not yet persisted
	unsaved *models.Round

	// set when a void could not be written; the sweep retries it
	voidPending *pendingVoid
}

type pendingVoid struct {
	reason string
	at     time.Time
}

func newMachine(r *Registry, offer *models.Offer, m *models.Match) (*Machine, error) {
	rules, ok := r.cfg.Rules[m.GameType]
	if !ok || !SupportedGame(m.GameType) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGame, m.GameType)
	}
	ctx, cancel := context.WithCancel(r.ctx)
	return &Machine{
		reg:    r,
		match:  m,
		offer:  offer,
		rules:  rules.WithMoveTimeout(m.MoveTimeoutSec),
		toss:   DrawToss(m.TossSeed),
		stake:  m.StakeAmount,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (mc *Machine) logf(format string, args ...any) {
	log.Printf("[Match %s] "+format, append([]any{mc.match.ID}, args...)...)
}

// View returns a snapshot of the match
func (mc *Machine) View() View {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.viewLocked()
}

func (mc *Machine) viewLocked() View {
	v := NewView(mc.match)
	if mc.match.State == models.MatchStateInProgress {
		v.MoveDeadline = mc.moveDeadline
	}
	return v
}

func (mc *Machine) publishLocked(t EventType) {
	mc.reg.notifier.Publish(Event{
		Type:    t,
		MatchID: mc.match.ID,
		OfferID: mc.match.OfferID,
		Match:   mc.viewLocked(),
		At:      mc.reg.clock.Now(),
	})
}

// storeCtx detaches store writes from the caller so a dropped request
// cannot abort a transition halfway.
func (mc *Machine) storeCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(context.WithoutCancel(parent), mc.reg.cfg.StoreTimeout)
}

// after schedules fn inside the exclusive section, bound to the current epoch
func (mc *Machine) after(delay time.Duration, fn func()) (*Timer, error) {
	epoch := mc.epoch
	return mc.reg.deps.Scheduler.ScheduleOnce(mc.ctx, delay, func() {
		mc.mu.Lock()
		defer mc.mu.Unlock()
		if mc.epoch != epoch || mc.match.State.Terminal() {
			return
		}
		fn()
	})
}

func (mc *Machine) armOfferTimerLocked() error {
	delay := mc.offer.ExpiresAt.Sub(mc.reg.clock.Now())
	t, err := mc.after(delay, func() {
		if err := mc.expireLocked(context.Background(), models.OfferStatusExpired, "offer expired unmatched"); err != nil {
			mc.logf("⚠️ failed to expire offer, the sweep will retry: %v", err)
		}
	})
	if err != nil {
		return err
	}
	mc.offerTimer = t
	return nil
}

func (mc *Machine) seat(playerID string) (Seat, bool) {
	switch {
	case playerID == mc.match.PlayerAID:
		return SeatA, true
	case mc.match.PlayerBID != "" && playerID == mc.match.PlayerBID:
		return SeatB, true
	}
	return 0, false
}

func (mc *Machine) join(ctx context.Context, playerID string) (View, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	m := mc.match
	if m.State != models.MatchStateAwaitingPlayers {
		return View{}, fmt.Errorf("%w: offer %s", ErrOfferTaken, m.OfferID)
	}
	if playerID == m.PlayerAID {
		return View{}, ErrSelfJoin
	}

	now := mc.reg.clock.Now()
	deadline := now.Add(mc.rules.MaxDuration(mc.reg.cfg.DeadlineSlack))
	joined := *m
	joined.PlayerBID = playerID
	joined.State = models.MatchStateInProgress
	joined.CurrentRound = 1
	joined.StartedAt = &now
	joined.DeadlineAt = &deadline

	sctx, cancel := mc.storeCtx(ctx)
	defer cancel()
	if err := mc.reg.deps.Store.JoinOffer(sctx, &joined, StakeEntry(m.ID, playerID, m.StakeAmount, now)); err != nil {
		return View{}, fmt.Errorf("failed to join offer %s: %w", m.OfferID, err)
	}

	mc.epoch++
	mc.offerTimer.Cancel()
	mc.match = &joined
	mc.offer.Status = models.OfferStatusMatched
	mc.reg.metrics.Started.Inc(1)
	mc.logf("✅ %s joined offer %s, round 1 started", playerID, m.OfferID)
	mc.publishLocked(EventOfferMatched)

	t, err := mc.reg.deps.Scheduler.ScheduleOnce(mc.ctx, deadline.Sub(now), func() {
		mc.mu.Lock()
		defer mc.mu.Unlock()
		if !mc.match.State.Terminal() {
			mc.voidLocked(context.Background(), "match exceeded its maximum duration")
		}
	})
	if err != nil {
		mc.voidLocked(ctx, "scheduler unavailable: "+err.Error())
		return mc.viewLocked(), nil
	}
	mc.deadlineTimer = t

	if err := mc.startRoundLocked(); err != nil {
		mc.voidLocked(ctx, "scheduler unavailable: "+err.Error())
		return mc.viewLocked(), nil
	}
	mc.publishLocked(EventMatchState)
	return mc.viewLocked(), nil
}

func (mc *Machine) startRoundLocked() error {
	round := mc.match.CurrentRound
	t, err := mc.after(mc.rules.MoveTimeout, func() { mc.onMoveTimeoutLocked(round) })
	if err != nil {
		return err
	}
	deadline := mc.reg.clock.Now().Add(mc.rules.MoveTimeout)
	mc.moveTimer = t
	mc.moveDeadline = &deadline
	return nil
}

func (mc *Machine) submit(ctx context.Context, playerID string, choice Choice) (View, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	m := mc.match
	if m.State != models.MatchStateInProgress || mc.voidPending != nil {
		return View{}, fmt.Errorf("%w: match %s is %s", ErrInvalidState, m.ID, m.State)
	}
	seat, ok := mc.seat(playerID)
	if !ok {
		return View{}, ErrNotAPlayer
	}
	if err := Validate(m.GameType, choice); err != nil {
		return View{}, err
	}

	pending := &m.PendingA
	if seat == SeatB {
		pending = &m.PendingB
	}
	if *pending != nil {
		return View{}, fmt.Errorf("%w: round %d", ErrAlreadyMoved, m.CurrentRound)
	}
	c := string(choice)
	*pending = &c
	mc.reg.metrics.Moves.Inc(1)

	if m.PendingA != nil && m.PendingB != nil {
		mc.moveTimer.Cancel()
		mc.resolveLocked(ctx, false, false)
	} else {
		mc.publishLocked(EventMatchState)
	}
	return mc.viewLocked(), nil
}

func (mc *Machine) onMoveTimeoutLocked(round int) {
	m := mc.match
	if m.State != models.MatchStateInProgress || m.CurrentRound != round {
		return
	}
	missingA, missingB := m.PendingA == nil, m.PendingB == nil
	mc.reg.metrics.Timeouts.Inc(1)
	mc.logf("⏰ move timeout in round %d (A missing: %t, B missing: %t)", round, missingA, missingB)
	mc.resolveLocked(context.Background(), missingA, missingB)
}

// resolveLocked closes the current round. Missing choices forfeit.
func (mc *Machine) resolveLocked(ctx context.Context, timedOutA, timedOutB bool) {
	m := mc.match
	mc.epoch++
	mc.moveDeadline = nil
	m.State = models.MatchStateRoundResolving

	a, b := ChoiceForfeit, ChoiceForfeit
	if m.PendingA != nil {
		a = Choice(*m.PendingA)
	}
	if m.PendingB != nil {
		b = Choice(*m.PendingB)
	}
	outcome, err := Resolve(m.GameType, a, b, mc.toss)
	if err != nil {
		mc.voidLocked(ctx, "round could not be resolved: "+err.Error())
		return
	}

	choiceA, choiceB := string(a), string(b)
	round := models.Round{
		ID:         uuid.NewString(),
		MatchID:    m.ID,
		RoundIndex: m.CurrentRound,
		ChoiceA:    &choiceA,
		ChoiceB:    &choiceB,
		TimedOutA:  timedOutA,
		TimedOutB:  timedOutB,
		ResolvedAt: mc.reg.clock.Now(),
	}
	switch outcome {
	case OutcomeWinA:
		round.Winner = models.ResultPlayerA
		m.ScoreA++
	case OutcomeWinB:
		round.Winner = models.ResultPlayerB
		m.ScoreB++
	default:
		round.Winner = models.ResultDraw
	}
	m.PendingA, m.PendingB = nil, nil
	m.Rounds = append(m.Rounds, round)
	mc.unsaved = &round

	if result := mc.rules.decide(m.ScoreA, m.ScoreB, m.CurrentRound); result != "" {
		mc.finishLocked(ctx, result)
		return
	}

	sctx, cancel := mc.storeCtx(ctx)
	err = mc.reg.deps.Store.AppendRound(sctx, m, &round)
	cancel()
	if err != nil {
		mc.voidLocked(ctx, "failed to store round: "+err.Error())
		return
	}
	mc.unsaved = nil
	mc.publishLocked(EventMatchState)

	if mc.rules.InterRoundDelay <= 0 {
		mc.nextRoundLocked(ctx)
		return
	}
	t, err := mc.after(mc.rules.InterRoundDelay, func() { mc.nextRoundLocked(context.Background()) })
	if err != nil {
		mc.voidLocked(ctx, "scheduler unavailable: "+err.Error())
		return
	}
	mc.delayTimer = t
}

func (mc *Machine) nextRoundLocked(ctx context.Context) {
	m := mc.match
	if m.State != models.MatchStateRoundResolving {
		return
	}
	mc.epoch++
	m.CurrentRound++
	m.State = models.MatchStateInProgress

	sctx, cancel := mc.storeCtx(ctx)
	err := mc.reg.deps.Store.SaveMatch(sctx, m)
	cancel()
	if err != nil {
		mc.voidLocked(ctx, "failed to store match: "+err.Error())
		return
	}
	if err := mc.startRoundLocked(); err != nil {
		mc.voidLocked(ctx, "scheduler unavailable: "+err.Error())
		return
	}
	mc.publishLocked(EventMatchState)
}

func (mc *Machine) finishLocked(ctx context.Context, result models.MatchResult) {
	m := mc.match
	at := mc.reg.clock.Now()
	s, err := mc.persistTerminalLocked(ctx, func(sctx context.Context) (*Settlement, error) {
		refs, err := mc.reg.deps.Referrals.ReferralsFor(sctx, m.PlayerAID, m.PlayerBID)
		if err != nil {
			return nil, fmt.Errorf("failed to load referrals: %w", err)
		}
		return mc.reg.cfg.Policy.Settle(m, result, refs, at)
	})
	if err != nil {
		mc.logf("❌ %v, voiding with refunds", err)
		mc.voidLocked(ctx, "settlement failed")
		return
	}
	mc.logf("🏁 finished %d-%d (%s): payout %d to %q, fee %d, %d commission event(s)",
		mc.match.ScoreA, mc.match.ScoreB, result, s.PayoutAmount, s.PayoutTo, s.FeeAmount, len(s.Commissions))
	mc.teardownLocked()
}

func (mc *Machine) voidLocked(ctx context.Context, reason string) {
	if mc.match.State.Terminal() {
		return
	}
	if mc.match.State == models.MatchStateAwaitingPlayers {
		if err := mc.expireLocked(ctx, models.OfferStatusExpired, reason); err != nil {
			mc.logf("⚠️ failed to expire offer, the sweep will retry: %v", err)
		}
		return
	}

	mc.epoch++
	mc.moveTimer.Cancel()
	mc.delayTimer.Cancel()
	mc.moveDeadline = nil
	pv := mc.voidPending
	if pv == nil {
		pv = &pendingVoid{reason: reason, at: mc.reg.clock.Now()}
	}
	_, err := mc.persistTerminalLocked(ctx, func(context.Context) (*Settlement, error) {
		return mc.reg.cfg.Policy.Refund(mc.match, models.MatchStateVoided, pv.reason, pv.at), nil
	})
	if err != nil {
		// stay live until the refunds are stored
		mc.voidPending = pv
		mc.logf("❌ could not persist void (%s), the sweep will retry: %v", pv.reason, err)
		return
	}
	mc.voidPending = nil
	mc.logf("🛑 voided (%s), stakes refunded", pv.reason)
	mc.teardownLocked()
}

func (mc *Machine) expireLocked(ctx context.Context, status models.OfferStatus, reason string) error {
	if mc.match.State != models.MatchStateAwaitingPlayers {
		return fmt.Errorf("%w: offer %s", ErrOfferTaken, mc.match.OfferID)
	}
	at := mc.reg.clock.Now()
	_, err := mc.persistTerminalLocked(ctx, func(context.Context) (*Settlement, error) {
		s := mc.reg.cfg.Policy.Refund(mc.match, models.MatchStateExpired, reason, at)
		s.OfferStatus = status
		return s, nil
	})
	if err != nil {
		return err
	}
	mc.offer.Status = status
	mc.logf("⌛ offer %s %s (%s), stake refunded", mc.match.OfferID, status, reason)
	mc.teardownLocked()
	return nil
}

func (mc *Machine) cancelOffer(ctx context.Context, playerID string) (View, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if playerID != mc.match.PlayerAID {
		return View{}, ErrNotAPlayer
	}
	if err := mc.expireLocked(ctx, models.OfferStatusCancelled, "offer cancelled by creator"); err != nil {
		return View{}, err
	}
	return mc.viewLocked(), nil
}

// persistTerminalLocked writes a terminal transition, retrying with backoff.
// The machine adopts the terminal match only once the write committed.
func (mc *Machine) persistTerminalLocked(ctx context.Context, build func(context.Context) (*Settlement, error)) (*Settlement, error) {
	attempts := mc.reg.cfg.SettlementRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			mc.reg.metrics.SettlementRetries.Inc(1)
			mc.reg.clock.Sleep(mc.reg.cfg.SettlementBackoff * time.Duration(attempt-1))
		}

		sctx, cancel := mc.storeCtx(ctx)
		s, err := build(sctx)
		if err == nil {
			terminal := mc.terminalCopy(s)
			err = mc.reg.deps.Store.Finalize(sctx, terminal, mc.unsaved, s)
			switch {
			case err == nil:
				cancel()
				mc.match = terminal
				mc.unsaved = nil
				return s, nil
			case errors.Is(err, ErrAlreadyFinalized):
				mc.logf("terminal write skipped, match was already finalized")
				if stored, lerr := mc.reg.deps.Store.LoadMatch(sctx, mc.match.ID); lerr == nil {
					terminal = stored
				}
				cancel()
				mc.match = terminal
				mc.unsaved = nil
				return s, nil
			}
		}
		cancel()
		lastErr = err
		mc.logf("⚠️ terminal write attempt %d/%d failed: %v", attempt, attempts, err)
	}
	return nil, fmt.Errorf("%w: %v", ErrSettlementFailure, lastErr)
}

func (mc *Machine) terminalCopy(s *Settlement) *models.Match {
	t := *mc.match
	ended := s.SettledAt
	t.State = s.FinalState
	t.Result = s.Result
	t.VoidReason = s.VoidReason
	t.PayoutTo = s.PayoutTo
	t.PayoutAmount = s.PayoutAmount
	t.FeeAmount = s.FeeAmount
	t.PendingA, t.PendingB = nil, nil
	t.EndedAt = &ended
	return &t
}

func (mc *Machine) teardownLocked() {
	mc.epoch++
	for _, t := range []*Timer{mc.offerTimer, mc.moveTimer, mc.delayTimer, mc.deadlineTimer} {
		t.Cancel()
	}
	mc.cancel()
	mc.moveDeadline = nil

	mc.reg.metrics.terminal(mc.match.State)
	if mc.match.State != models.MatchStateExpired {
		mc.publishLocked(EventMatchResult)
	}
	mc.publishLocked(EventMatchState)
	mc.reg.retire(mc.match.ID, mc.match.OfferID, mc.viewLocked())
}

// sweep applies overdue transitions whose timers did not fire
func (mc *Machine) sweep(now time.Time) bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	m := mc.match
	switch {
	case mc.voidPending != nil:
		mc.voidLocked(context.Background(), mc.voidPending.reason)
		return mc.match.State.Terminal()
	case m.State == models.MatchStateAwaitingPlayers && !now.Before(mc.offer.ExpiresAt):
		if err := mc.expireLocked(context.Background(), models.OfferStatusExpired, "offer expired unmatched"); err != nil {
			mc.logf("⚠️ sweep failed to expire offer: %v", err)
			return false
		}
	case !m.State.Terminal() && m.DeadlineAt != nil && now.After(*m.DeadlineAt):
		mc.voidLocked(context.Background(), "match exceeded its maximum duration")
	default:
		return false
	}
	return true
}
