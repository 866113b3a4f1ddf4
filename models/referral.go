package models

import "time"

// Affiliate owns a referral code. Codes are stored lower-cased so lookups are case-insensitive.
type Affiliate struct {
	ID      string `gorm:"primaryKey;type:uuid" json:"id"`
	Code    string `gorm:"uniqueIndex;not null;size:20" json:"code"`
	OwnerID string `gorm:"uniqueIndex;not null" json:"owner_id"` // ExternalUserID

	Referrals []Referral `gorm:"foreignKey:AffiliateID" json:"referrals,omitempty"`

	Timestamps
}

// Referral permanently links a referred player to an affiliate
type Referral struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	AffiliateID string    `gorm:"type:uuid;index;not null" json:"affiliate_id"`
	ReferredID  string    `gorm:"uniqueIndex;not null" json:"referred_id"` // ExternalUserID
	ReferredAt  time.Time `gorm:"not null" json:"referred_at"`

	Affiliate *Affiliate `gorm:"foreignKey:AffiliateID" json:"affiliate,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// CommissionTier is fixed when the event is written and never recomputed
type CommissionTier string

const (
	CommissionTierInitial  CommissionTier = "INITIAL"
	CommissionTierLifetime CommissionTier = "LIFETIME"
)

// CommissionEvent is an append-only ledger entry; at most one per (referral, match)
type CommissionEvent struct {
	ID         string         `gorm:"primaryKey;type:uuid" json:"id"`
	ReferralID string         `gorm:"type:uuid;not null;uniqueIndex:idx_commission_referral_match" json:"referral_id"`
	MatchID    string         `gorm:"type:uuid;not null;uniqueIndex:idx_commission_referral_match" json:"match_id"`
	Amount     int64          `gorm:"not null" json:"amount,string"`
	Tier       CommissionTier `gorm:"type:varchar(16);not null" json:"tier"`
	CreatedAt  time.Time      `gorm:"not null;index" json:"created_at"`
}
