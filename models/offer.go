package models

import "time"

// GameType identifies one of the supported 1v1 game variants
type GameType string

const (
	GameTypeRockPaperScissors GameType = "ROCK_PAPER_SCISSORS"
	GameTypeCoinFlip          GameType = "COIN_FLIP"
)

// OfferStatus tracks an offer from creation until it is matched or dropped
type OfferStatus string

const (
	OfferStatusOpen      OfferStatus = "OPEN"
	OfferStatusMatched   OfferStatus = "MATCHED"
	OfferStatusCancelled OfferStatus = "CANCELLED"
	OfferStatusExpired   OfferStatus = "EXPIRED"
)

// Offer is a proposal to play at a fixed stake. Immutable once MATCHED.
type Offer struct {
	ID          string      `gorm:"primaryKey;type:uuid" json:"id"`
	CreatorID   string      `gorm:"index;not null" json:"creator_id"`
	GameType    GameType    `gorm:"type:varchar(32);not null" json:"game_type"`
	StakeAmount int64       `gorm:"not null" json:"stake_amount,string"` // smallest currency unit
	FeeAmount   int64       `gorm:"not null" json:"fee_amount,string"`   // fee charged on the creator's side
	Status      OfferStatus `gorm:"type:varchar(16);index;not null" json:"status"`

	// Optional per-offer move timeout override (0 = game default)
	MoveTimeoutSec int `json:"move_timeout_sec,omitempty" gorm:"default:0"`

	MatchID   string    `gorm:"type:uuid;index" json:"match_id"`
	ExpiresAt time.Time `json:"expires_at"`

	Timestamps
}
