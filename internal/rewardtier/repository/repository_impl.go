package repository

import (
	"context"

	"github.com/briefworks/briefworks/internal/rewardtier/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const tierColumns = `id, brief_id, position, amount_cents, description, is_active, created_at, updated_at`

func (r *repo) ReplaceAll(ctx context.Context, db *gorm.DB, briefID snowflake.ID, tiers []*domain.RewardTier) error {
	if err := db.WithContext(ctx).Exec(
		`DELETE FROM reward_tiers WHERE brief_id = ?`, briefID,
	).Error; err != nil {
		return err
	}
	for _, tier := range tiers {
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO reward_tiers (
				id, brief_id, position, amount_cents, description, is_active,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			tier.ID,
			tier.BriefID,
			tier.Position,
			tier.AmountCents,
			tier.Description,
			tier.IsActive,
			tier.CreatedAt,
			tier.UpdatedAt,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) ListByBrief(ctx context.Context, db *gorm.DB, briefID snowflake.ID) ([]*domain.RewardTier, error) {
	var items []*domain.RewardTier
	err := db.WithContext(ctx).Raw(
		`SELECT `+tierColumns+` FROM reward_tiers
		 WHERE brief_id = ? ORDER BY position ASC`,
		briefID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.RewardTier, error) {
	var item domain.RewardTier
	err := db.WithContext(ctx).Raw(
		`SELECT `+tierColumns+` FROM reward_tiers WHERE id = ? LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrTierNotFound
	}
	return &item, nil
}

func (r *repo) CountAssignments(ctx context.Context, db *gorm.DB, briefID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM winner_assignments WHERE brief_id = ?`,
		briefID,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
