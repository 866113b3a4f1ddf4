package engine

import (
	"time"

	"duel-match-system/models"
)

// Notices attached to views of matches that ended without a game result
const (
	NoticeVoided  = "voided, stakes refunded"
	NoticeExpired = "expired, stake refunded"
)

// View is the read model served by GET /matches/:id and carried by events.
// Choices of the round in progress are never exposed.
type View struct {
	ID           string             `json:"id"`
	OfferID      string             `json:"offer_id"`
	PlayerA      string             `json:"player_a"`
	PlayerB      string             `json:"player_b,omitempty"`
	GameType     models.GameType    `json:"game_type"`
	StakeAmount  int64              `json:"stake_amount,string"`
	FeePerPlayer int64              `json:"fee_per_player,string"`
	State        models.MatchState  `json:"state"`
	Result       models.MatchResult `json:"result,omitempty"`
	ScoreA       int                `json:"score_a"`
	ScoreB       int                `json:"score_b"`
	CurrentRound int                `json:"current_round"`
	MovedA       bool               `json:"moved_a"`
	MovedB       bool               `json:"moved_b"`

	Rounds    []models.Round `json:"rounds"`
	LastRound *models.Round  `json:"last_round,omitempty"`

	PayoutTo     string `json:"payout_to,omitempty"`
	PayoutAmount int64  `json:"payout_amount,string"`
	FeeAmount    int64  `json:"fee_amount,string"`
	VoidReason   string `json:"void_reason,omitempty"`
	Notice       string `json:"notice,omitempty"`

	MoveDeadline *time.Time `json:"move_deadline,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

// NewView builds the read model of a match. The rounds are copied.
func NewView(m *models.Match) View {
	v := View{
		ID:           m.ID,
		OfferID:      m.OfferID,
		PlayerA:      m.PlayerAID,
		PlayerB:      m.PlayerBID,
		GameType:     m.GameType,
		StakeAmount:  m.StakeAmount,
		FeePerPlayer: m.FeePerPlayer,
		State:        m.State,
		Result:       m.Result,
		ScoreA:       m.ScoreA,
		ScoreB:       m.ScoreB,
		CurrentRound: m.CurrentRound,
		MovedA:       m.PendingA != nil,
		MovedB:       m.PendingB != nil,
		Rounds:       append([]models.Round(nil), m.Rounds...),
		PayoutTo:     m.PayoutTo,
		PayoutAmount: m.PayoutAmount,
		FeeAmount:    m.FeeAmount,
		VoidReason:   m.VoidReason,
		CreatedAt:    m.CreatedAt,
		StartedAt:    m.StartedAt,
		EndedAt:      m.EndedAt,
	}
	if v.Rounds == nil {
		v.Rounds = []models.Round{}
	}
	if n := len(v.Rounds); n > 0 {
		last := v.Rounds[n-1]
		v.LastRound = &last
	}
	switch m.State {
	case models.MatchStateVoided:
		v.Notice = NoticeVoided
	case models.MatchStateExpired:
		v.Notice = NoticeExpired
	}
	return v
}

// Seat returns the seat of a player, or false if they are not in the match
func (v View) Seat(playerID string) (Seat, bool) {
	switch playerID {
	case v.PlayerA:
		return SeatA, true
	case v.PlayerB:
		return SeatB, v.PlayerB != ""
	}
	return 0, false
}
