package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	EntryReward             = "reward"
	EntryRedemption         = "redemption"
	EntryRedemptionReversal = "redemption_reversal"
)

// CreditEntry is an append-only ledger line. Redemptions carry negative
// amounts; the balance row is the running sum.
type CreditEntry struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	CreatorID   snowflake.ID `json:"creator_id" gorm:"not null;index"`
	AmountCents int64        `json:"amount_cents" gorm:"not null"`
	EntryType   string       `json:"entry_type" gorm:"type:text;not null"`
	Description string       `json:"description" gorm:"type:text;not null"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
}

func (CreditEntry) TableName() string { return "credit_entries" }

type CreditBalance struct {
	CreatorID    snowflake.ID `json:"creator_id" gorm:"primaryKey"`
	BalanceCents int64        `json:"balance_cents" gorm:"not null"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"not null"`
}

func (CreditBalance) TableName() string { return "credit_balances" }

type WalletPayoutStatus string

const (
	WalletPayoutPending    WalletPayoutStatus = "pending"
	WalletPayoutProcessing WalletPayoutStatus = "processing"
	WalletPayoutPaid       WalletPayoutStatus = "paid"
	WalletPayoutFailed     WalletPayoutStatus = "failed"
)

// WalletPayout is a credit redemption converted into a cash transfer.
type WalletPayout struct {
	ID                 snowflake.ID       `json:"id" gorm:"primaryKey"`
	CreatorID          snowflake.ID       `json:"creator_id" gorm:"not null;index"`
	AmountCents        int64              `json:"amount_cents" gorm:"not null"`
	Status             WalletPayoutStatus `json:"status" gorm:"type:text;not null"`
	ExternalTransferID *string            `json:"external_transfer_id,omitempty"`
	IdempotencyKey     string             `json:"-" gorm:"type:text;not null"`
	FailureReason      *string            `json:"failure_reason,omitempty"`
	PaidAt             *time.Time         `json:"paid_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time          `json:"updated_at" gorm:"not null"`
}

func (WalletPayout) TableName() string { return "wallet_payouts" }
