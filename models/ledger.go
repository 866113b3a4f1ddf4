package models

import "time"

// LedgerKind classifies a money movement produced by the match engine
type LedgerKind string

const (
	LedgerKindStake      LedgerKind = "STAKE"      // player -> escrow
	LedgerKindPayout     LedgerKind = "PAYOUT"     // escrow -> winner
	LedgerKindRefund     LedgerKind = "REFUND"     // escrow -> player
	LedgerKindFee        LedgerKind = "FEE"        // escrow -> platform
	LedgerKindCommission LedgerKind = "COMMISSION" // platform -> affiliate owner
)

// TransferStatus tracks delivery of a ledger entry to the wallet service
type TransferStatus string

const (
	TransferStatusPending TransferStatus = "PENDING"
	TransferStatusSent    TransferStatus = "SENT"
	TransferStatusFailed  TransferStatus = "FAILED"
)

// Well-known accounts used by the engine
const (
	AccountEscrow   = "escrow"
	AccountPlatform = "platform"
)

// LedgerEntry is one transfer(amount, from, to). Entries are written in the same
// transaction as the match transition that produced them and dispatched later.
// Table name: ledger_entries
type LedgerEntry struct {
	ID          string         `gorm:"primaryKey;type:uuid;not null" json:"id"`
	MatchID     string         `gorm:"type:uuid;not null;uniqueIndex:idx_ledger_unique" json:"match_id"`
	Kind        LedgerKind     `gorm:"type:varchar(16);not null;uniqueIndex:idx_ledger_unique" json:"kind"`
	FromAccount string         `gorm:"type:varchar(128);not null;uniqueIndex:idx_ledger_unique" json:"from"`
	ToAccount   string         `gorm:"type:varchar(128);not null;uniqueIndex:idx_ledger_unique" json:"to"`
	Amount      int64          `gorm:"not null" json:"amount,string"`
	Status      TransferStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	Attempts    int            `gorm:"not null;default:0" json:"attempts"`
	LastError   string         `json:"last_error,omitempty"`
	SentAt      *time.Time     `json:"sent_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}
