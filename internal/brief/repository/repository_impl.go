package repository

import (
	"context"
	"time"

	"github.com/briefworks/briefworks/internal/brief/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, brief *domain.Brief) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO briefs (
			id, brand_id, title, currency, reward_total_cents,
			funded_amount_cents, platform_fee_cents, net_funded_amount_cents,
			is_funded, funded_at, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		brief.ID,
		brief.BrandID,
		brief.Title,
		brief.Currency,
		brief.RewardTotalCents,
		brief.FundedAmountCents,
		brief.PlatformFeeCents,
		brief.NetFundedAmountCents,
		brief.IsFunded,
		brief.FundedAt,
		brief.Status,
		brief.CreatedAt,
		brief.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Brief, error) {
	var item domain.Brief
	err := db.WithContext(ctx).Raw(
		`SELECT id, brand_id, title, currency, reward_total_cents,
			funded_amount_cents, platform_fee_cents, net_funded_amount_cents,
			is_funded, funded_at, status, created_at, updated_at
		 FROM briefs WHERE id = ? LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &item, nil
}

func (r *repo) ApplyFunding(ctx context.Context, db *gorm.DB, id snowflake.ID, update domain.FundingUpdate, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE briefs
		 SET funded_amount_cents = ?,
			 platform_fee_cents = ?,
			 net_funded_amount_cents = ?,
			 is_funded = ?,
			 funded_at = ?,
			 status = ?,
			 updated_at = ?
		 WHERE id = ? AND is_funded = ?`,
		update.FundedAmountCents,
		update.PlatformFeeCents,
		update.NetFundedAmountCents,
		true,
		update.FundedAt,
		update.Status,
		now,
		id,
		false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []domain.BriefStatus, to domain.BriefStatus, now time.Time) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE briefs SET status = ?, updated_at = ? WHERE id = ? AND status IN ?`,
		to,
		now,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
