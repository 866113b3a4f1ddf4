package models

import (
	"time"

	"gorm.io/gorm"
)

// KYCTier is the verification level reported by the compliance provider
type KYCTier string

const (
	KYCTierNone KYCTier = "NONE"
	KYCTierL1   KYCTier = "L1"
	KYCTierL2   KYCTier = "L2"
)

// Player is a local snapshot of the compliance data the match engine gates on.
// Populated via sync worker from the profile service and by the KYC webhook.
type Player struct {
	ID             string  `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string  `gorm:"uniqueIndex;not null" json:"external_user_id"`
	Username       string  `gorm:"index" json:"username"`
	WalletAddress  string  `gorm:"type:varchar(128)" json:"wallet_address,omitempty"`
	KYCTier        KYCTier `gorm:"type:varchar(8);not null;default:'NONE'" json:"kyc_tier"`
	Country        *string `gorm:"type:varchar(2)" json:"country,omitempty"`
	Language       string  `gorm:"type:varchar(8);default:'en'" json:"language"`
	IsOver18       bool    `gorm:"column:is_over_18;default:false" json:"is_over_18"`
	IsBanned       bool    `gorm:"default:false" json:"is_banned"`

	// Affiliate code the player signed up with, as reported by the profile service
	ReferredByCode *string `gorm:"size:20" json:"referred_by_code,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Soft delete (if needed for history)
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
