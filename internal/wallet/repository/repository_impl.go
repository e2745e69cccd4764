package repository

import (
	"context"
	"time"

	"github.com/briefworks/briefworks/internal/wallet/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertEntry(ctx context.Context, db *gorm.DB, entry *domain.CreditEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO credit_entries (
			id, creator_id, amount_cents, entry_type, description, created_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.CreatorID,
		entry.AmountCents,
		entry.EntryType,
		entry.Description,
		entry.CreatedAt,
	).Error
}

func (r *repo) ListEntries(ctx context.Context, db *gorm.DB, creatorID snowflake.ID, limit int) ([]*domain.CreditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []*domain.CreditEntry
	err := db.WithContext(ctx).Raw(
		`SELECT id, creator_id, amount_cents, entry_type, description, created_at
		 FROM credit_entries
		 WHERE creator_id = ? ORDER BY created_at DESC LIMIT ?`,
		creatorID, limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) AddBalance(ctx context.Context, db *gorm.DB, creatorID snowflake.ID, delta int64, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO credit_balances (creator_id, balance_cents, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (creator_id) DO UPDATE
		 SET balance_cents = credit_balances.balance_cents + EXCLUDED.balance_cents,
			 updated_at = EXCLUDED.updated_at`,
		creatorID,
		delta,
		now,
	).Error
}

func (r *repo) DecrementBalance(ctx context.Context, db *gorm.DB, creatorID snowflake.ID, amount int64, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE credit_balances
		 SET balance_cents = balance_cents - ?, updated_at = ?
		 WHERE creator_id = ? AND balance_cents >= ?`,
		amount,
		now,
		creatorID,
		amount,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) GetBalance(ctx context.Context, db *gorm.DB, creatorID snowflake.ID) (*domain.CreditBalance, error) {
	var item domain.CreditBalance
	err := db.WithContext(ctx).Raw(
		`SELECT creator_id, balance_cents, updated_at
		 FROM credit_balances WHERE creator_id = ? LIMIT 1`,
		creatorID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.CreatorID == 0 {
		return &domain.CreditBalance{CreatorID: creatorID}, nil
	}
	return &item, nil
}

const payoutColumns = `id, creator_id, amount_cents, status, external_transfer_id,
	idempotency_key, failure_reason, paid_at, created_at, updated_at`

func (r *repo) InsertPayout(ctx context.Context, db *gorm.DB, payout *domain.WalletPayout) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO wallet_payouts (
			id, creator_id, amount_cents, status, external_transfer_id,
			idempotency_key, failure_reason, paid_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payout.ID,
		payout.CreatorID,
		payout.AmountCents,
		payout.Status,
		payout.ExternalTransferID,
		payout.IdempotencyKey,
		payout.FailureReason,
		payout.PaidAt,
		payout.CreatedAt,
		payout.UpdatedAt,
	).Error
}

func (r *repo) FindPayout(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.WalletPayout, error) {
	return r.findPayout(ctx, db,
		`SELECT `+payoutColumns+` FROM wallet_payouts WHERE id = ? LIMIT 1`, id)
}

func (r *repo) FindPayoutByTransfer(ctx context.Context, db *gorm.DB, externalTransferID string) (*domain.WalletPayout, error) {
	return r.findPayout(ctx, db,
		`SELECT `+payoutColumns+` FROM wallet_payouts
		 WHERE external_transfer_id = ? LIMIT 1`,
		externalTransferID)
}

func (r *repo) ListPayouts(ctx context.Context, db *gorm.DB, creatorID snowflake.ID, limit int) ([]*domain.WalletPayout, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []*domain.WalletPayout
	err := db.WithContext(ctx).Raw(
		`SELECT `+payoutColumns+` FROM wallet_payouts
		 WHERE creator_id = ? ORDER BY created_at DESC LIMIT ?`,
		creatorID, limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SetPayoutTransfer(ctx context.Context, db *gorm.DB, id snowflake.ID, externalTransferID string, status domain.WalletPayoutStatus, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE wallet_payouts
		 SET external_transfer_id = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		externalTransferID,
		status,
		now,
		id,
	).Error
}

func (r *repo) MarkPayoutPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE wallet_payouts
		 SET status = ?, paid_at = ?, failure_reason = NULL, updated_at = ?
		 WHERE id = ? AND status <> ?`,
		domain.WalletPayoutPaid,
		paidAt,
		paidAt,
		id,
		domain.WalletPayoutPaid,
	).Error
}

func (r *repo) MarkPayoutFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE wallet_payouts
		 SET status = ?, failure_reason = ?, updated_at = ?
		 WHERE id = ? AND status <> ?`,
		domain.WalletPayoutFailed,
		reason,
		now,
		id,
		domain.WalletPayoutPaid,
	).Error
}

func (r *repo) findPayout(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.WalletPayout, error) {
	var item domain.WalletPayout
	err := db.WithContext(ctx).Raw(query, args...).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrPayoutNotFound
	}
	return &item, nil
}
