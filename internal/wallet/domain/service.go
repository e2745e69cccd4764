package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Statement is the read model behind GET /wallet/:creatorId.
type Statement struct {
	CreatorID    snowflake.ID   `json:"creator_id"`
	BalanceCents int64          `json:"balance_cents"`
	Entries      []*CreditEntry `json:"entries"`
	Payouts      []*WalletPayout `json:"payouts"`
}

type Service interface {
	// CreditReward appends a ledger entry and increments the balance.
	CreditReward(ctx context.Context, creatorID snowflake.ID, amountCents int64, description string) error
	// Redeem converts credit into a cash transfer. The balance decrement
	// and the payout row commit together; a definitively declined
	// transfer re-credits the balance.
	Redeem(ctx context.Context, creatorID snowflake.ID, amountCents int64) (*WalletPayout, error)
	Statement(ctx context.Context, creatorID snowflake.ID) (*Statement, error)

	// SettleSucceeded and SettleFailed apply processor webhook outcomes
	// for wallet transfers. Idempotent under redelivery.
	SettleSucceeded(ctx context.Context, payoutID snowflake.ID, externalTransferID string, occurredAt time.Time) error
	SettleFailed(ctx context.Context, payoutID snowflake.ID, externalTransferID, reason string, occurredAt time.Time) error
}

type Repository interface {
	InsertEntry(ctx context.Context, db *gorm.DB, entry *CreditEntry) error
	ListEntries(ctx context.Context, db *gorm.DB, creatorID snowflake.ID, limit int) ([]*CreditEntry, error)
	// AddBalance upserts the balance row and adds delta to it.
	AddBalance(ctx context.Context, db *gorm.DB, creatorID snowflake.ID, delta int64, now time.Time) error
	// DecrementBalance subtracts amount only when the balance covers it.
	DecrementBalance(ctx context.Context, db *gorm.DB, creatorID snowflake.ID, amount int64, now time.Time) (bool, error)
	GetBalance(ctx context.Context, db *gorm.DB, creatorID snowflake.ID) (*CreditBalance, error)

	InsertPayout(ctx context.Context, db *gorm.DB, payout *WalletPayout) error
	FindPayout(ctx context.Context, db *gorm.DB, id snowflake.ID) (*WalletPayout, error)
	FindPayoutByTransfer(ctx context.Context, db *gorm.DB, externalTransferID string) (*WalletPayout, error)
	ListPayouts(ctx context.Context, db *gorm.DB, creatorID snowflake.ID, limit int) ([]*WalletPayout, error)
	SetPayoutTransfer(ctx context.Context, db *gorm.DB, id snowflake.ID, externalTransferID string, status WalletPayoutStatus, now time.Time) error
	MarkPayoutPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time) error
	MarkPayoutFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) error
}

var (
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInsufficientCredit = errors.New("insufficient_credit")
	ErrPayoutNotFound     = errors.New("wallet_payout_not_found")
)
