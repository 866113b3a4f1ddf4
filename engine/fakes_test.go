package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"duel-match-system/models"
)

var errStoreDown = errors.New("store unavailable")

type memStore struct {
	mu          sync.Mutex
	offers      map[string]models.Offer
	matches     map[string]models.Match
	rounds      map[string][]models.Round
	ledger      []models.LedgerEntry
	commissions []models.CommissionEvent

	failFinalize int // number of upcoming Finalize calls to fail
	failAppend   bool
	finalized    int
}

func newMemStore() *memStore {
	return &memStore{
		offers:  map[string]models.Offer{},
		matches: map[string]models.Match{},
		rounds:  map[string][]models.Round{},
	}
}

func (s *memStore) CreateOffer(_ context.Context, offer *models.Offer, match *models.Match, stake models.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers[offer.ID] = *offer
	m := *match
	m.Rounds = nil
	s.matches[m.ID] = m
	s.ledger = append(s.ledger, stake)
	return nil
}

func (s *memStore) JoinOffer(_ context.Context, match *models.Match, stake models.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	offer := s.offers[match.OfferID]
	if offer.Status != models.OfferStatusOpen {
		return ErrOfferTaken
	}
	offer.Status = models.OfferStatusMatched
	s.offers[offer.ID] = offer
	m := *match
	m.Rounds = nil
	s.matches[m.ID] = m
	s.ledger = append(s.ledger, stake)
	return nil
}

func (s *memStore) SaveMatch(_ context.Context, match *models.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := *match
	m.Rounds = nil
	s.matches[m.ID] = m
	return nil
}

func (s *memStore) AppendRound(_ context.Context, match *models.Match, round *models.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAppend {
		return errStoreDown
	}
	m := *match
	m.Rounds = nil
	s.matches[m.ID] = m
	s.rounds[m.ID] = append(s.rounds[m.ID], *round)
	return nil
}

func (s *memStore) Finalize(_ context.Context, match *models.Match, final *models.Round, st *Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFinalize > 0 {
		s.failFinalize--
		return errStoreDown
	}
	if s.matches[match.ID].State.Terminal() {
		return ErrAlreadyFinalized
	}
	m := *match
	m.Rounds = nil
	s.matches[m.ID] = m
	if final != nil {
		s.rounds[m.ID] = append(s.rounds[m.ID], *final)
	}
	s.ledger = append(s.ledger, st.Ledger...)
	s.commissions = append(s.commissions, st.Commissions...)
	if st.OfferStatus != "" {
		offer := s.offers[m.OfferID]
		offer.Status = st.OfferStatus
		s.offers[offer.ID] = offer
	}
	s.finalized++
	return nil
}

func (s *memStore) LoadMatch(_ context.Context, matchID string) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return nil, ErrMatchNotFound
	}
	m.Rounds = append([]models.Round(nil), s.rounds[matchID]...)
	return &m, nil
}

func (s *memStore) LoadOffer(_ context.Context, offerID string) (*models.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[offerID]
	if !ok {
		return nil, ErrOfferNotFound
	}
	return &o, nil
}

func (s *memStore) ActiveMatches(context.Context) ([]models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Match
	for _, m := range s.matches {
		if !m.State.Terminal() {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) match(t *testing.T, id string) models.Match {
	t.Helper()
	m, err := s.LoadMatch(context.Background(), id)
	require.NoError(t, err)
	return *m
}

func (s *memStore) entries(matchID string, kind models.LedgerKind) []models.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.LedgerEntry
	for _, e := range s.ledger {
		if e.MatchID == matchID && e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (s *memStore) commissionsFor(matchID string) []models.CommissionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CommissionEvent
	for _, c := range s.commissions {
		if c.MatchID == matchID {
			out = append(out, c)
		}
	}
	return out
}

type staticReferrals map[string]models.Referral

func (r staticReferrals) ReferralsFor(_ context.Context, playerIDs ...string) (map[string]models.Referral, error) {
	out := map[string]models.Referral{}
	for _, id := range playerIDs {
		if ref, ok := r[id]; ok {
			out[id] = ref
		}
	}
	return out, nil
}

type denyGate struct{ player string }

func (g denyGate) CheckEligible(_ context.Context, playerID string, _ int64) error {
	if playerID == g.player {
		return ErrNotEligible
	}
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Publish(e Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) types(matchID string) []EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []EventType
	for _, e := range n.events {
		if e.MatchID == matchID {
			out = append(out, e.Type)
		}
	}
	return out
}

// manualScheduler hands out timers that only fire when the test says so
type manualScheduler struct {
	mu      sync.Mutex
	pending []manualTimer
	fail    bool
}

type manualTimer struct {
	delay time.Duration
	fn    func()
	timer *Timer
}

func (s *manualScheduler) ScheduleOnce(ctx context.Context, delay time.Duration, fn func()) (*Timer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, ErrSchedulerClosed
	}
	t := &Timer{}
	t.release = context.AfterFunc(ctx, func() { t.Cancel() })
	s.pending = append(s.pending, manualTimer{delay: delay, fn: fn, timer: t})
	return t, nil
}

// fire runs every timer scheduled with the given delay and returns how many callbacks started
func (s *manualScheduler) fire(delay time.Duration) int {
	s.mu.Lock()
	var due []manualTimer
	for _, mt := range s.pending {
		if mt.delay == delay {
			due = append(due, mt)
		}
	}
	s.mu.Unlock()

	fired := 0
	for _, mt := range due {
		if !mt.timer.Fired() && mt.timer.state.Load() == timerPending {
			mt.timer.fire(mt.fn)
			fired++
		}
	}
	return fired
}
