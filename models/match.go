package models

import "time"

// MatchState is the lifecycle state of a match
type MatchState string

const (
	MatchStateAwaitingPlayers MatchState = "AWAITING_PLAYERS"
	MatchStateInProgress      MatchState = "IN_PROGRESS"
	MatchStateRoundResolving  MatchState = "ROUND_RESOLVING"
	MatchStateFinished        MatchState = "FINISHED"
	MatchStateExpired         MatchState = "EXPIRED"
	MatchStateVoided          MatchState = "VOIDED"
)

// TerminalStates lists the states a match never leaves
var TerminalStates = []MatchState{MatchStateFinished, MatchStateExpired, MatchStateVoided}

func (s MatchState) Terminal() bool {
	switch s {
	case MatchStateFinished, MatchStateExpired, MatchStateVoided:
		return true
	}
	return false
}

// MatchResult is the outcome of a round or of the whole match
type MatchResult string

const (
	ResultPlayerA MatchResult = "PLAYER_A"
	ResultPlayerB MatchResult = "PLAYER_B"
	ResultDraw    MatchResult = "DRAW"
	ResultVoid    MatchResult = "VOID"
)

// Match records one 1v1 staked contest from pairing to settlement
type Match struct {
	ID        string `gorm:"primaryKey;type:uuid" json:"id"`
	OfferID   string `gorm:"type:uuid;uniqueIndex;not null" json:"offer_id"`
	PlayerAID string `gorm:"column:player_a_id;index;not null" json:"player_a"`
	PlayerBID string `gorm:"column:player_b_id;index" json:"player_b,omitempty"` // empty until someone joins

	GameType     GameType `gorm:"type:varchar(32);not null" json:"game_type"`
	StakeAmount  int64    `gorm:"not null" json:"stake_amount,string"`
	FeePerPlayer int64    `gorm:"not null" json:"fee_per_player,string"`

	State  MatchState  `gorm:"type:varchar(24);index;not null" json:"state"`
	Result MatchResult `gorm:"type:varchar(16)" json:"result,omitempty"`

	// Running score, 1-based round counter and the hidden choices of the open round
	ScoreA       int     `json:"score_a" gorm:"default:0"`
	ScoreB       int     `json:"score_b" gorm:"default:0"`
	CurrentRound int     `json:"current_round" gorm:"default:0"`
	PendingA     *string `json:"-" gorm:"type:varchar(16)"`
	PendingB     *string `json:"-" gorm:"type:varchar(16)"`

	// Chance inputs are drawn once per match from this seed
	TossSeed       int64  `json:"-"`
	MoveTimeoutSec int    `json:"move_timeout_sec" gorm:"default:0"`
	VoidReason     string `json:"void_reason,omitempty"`

	// Settlement summary, filled on the terminal transition
	PayoutTo     string `json:"payout_to,omitempty"`
	PayoutAmount int64  `json:"payout_amount,string"`
	FeeAmount    int64  `json:"fee_amount,string"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	DeadlineAt *time.Time `json:"deadline_at,omitempty"`

	Rounds []Round `gorm:"foreignKey:MatchID" json:"rounds"`

	Timestamps
}

// Round is one decision exchange. Append-only, immutable once resolved.
type Round struct {
	ID         string      `gorm:"primaryKey;type:uuid" json:"id"`
	MatchID    string      `gorm:"type:uuid;not null;uniqueIndex:idx_match_round" json:"match_id"`
	RoundIndex int         `gorm:"not null;uniqueIndex:idx_match_round" json:"round_index"`
	ChoiceA    *string     `gorm:"type:varchar(16)" json:"choice_a"`
	ChoiceB    *string     `gorm:"type:varchar(16)" json:"choice_b"`
	TimedOutA  bool        `json:"timed_out_a"`
	TimedOutB  bool        `json:"timed_out_b"`
	Winner     MatchResult `gorm:"type:varchar(16)" json:"winner"`
	ResolvedAt time.Time   `json:"resolved_at"`
}
