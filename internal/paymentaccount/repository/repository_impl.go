package repository

import (
	"context"
	"time"

	"github.com/briefworks/briefworks/internal/paymentaccount/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *domain.PaymentAccount) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_accounts (
			creator_id, external_account_id, country,
			charges_enabled, payouts_enabled, details_submitted,
			status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.CreatorID,
		account.ExternalAccountID,
		account.Country,
		account.ChargesEnabled,
		account.PayoutsEnabled,
		account.DetailsSubmitted,
		account.Status,
		account.CreatedAt,
		account.UpdatedAt,
	).Error
}

func (r *repo) FindByCreator(ctx context.Context, db *gorm.DB, creatorID snowflake.ID) (*domain.PaymentAccount, error) {
	var item domain.PaymentAccount
	err := db.WithContext(ctx).Raw(
		`SELECT creator_id, external_account_id, country,
			charges_enabled, payouts_enabled, details_submitted,
			status, created_at, updated_at
		 FROM payment_accounts WHERE creator_id = ? LIMIT 1`,
		creatorID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.CreatorID == 0 {
		return nil, domain.ErrAccountNotFound
	}
	return &item, nil
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, externalAccountID string) (*domain.PaymentAccount, error) {
	var item domain.PaymentAccount
	err := db.WithContext(ctx).Raw(
		`SELECT creator_id, external_account_id, country,
			charges_enabled, payouts_enabled, details_submitted,
			status, created_at, updated_at
		 FROM payment_accounts WHERE external_account_id = ? LIMIT 1`,
		externalAccountID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.CreatorID == 0 {
		return nil, domain.ErrAccountNotFound
	}
	return &item, nil
}

func (r *repo) UpdateFlags(ctx context.Context, db *gorm.DB, creatorID snowflake.ID, flags domain.CapabilityFlags, status domain.AccountStatus, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_accounts
		 SET charges_enabled = ?,
			 payouts_enabled = ?,
			 details_submitted = ?,
			 status = ?,
			 updated_at = ?
		 WHERE creator_id = ?`,
		flags.ChargesEnabled,
		flags.PayoutsEnabled,
		flags.DetailsSubmitted,
		status,
		now,
		creatorID,
	).Error
}
