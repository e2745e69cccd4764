package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// SetTiers replaces the brief's tier set atomically. Validation
	// failures leave the existing tiers untouched.
	SetTiers(ctx context.Context, briefID snowflake.ID, tiers []TierInput) ([]*RewardTier, error)
	// EqualSplit generates N tiers splitting the net funded amount evenly
	// and applies them through SetTiers.
	EqualSplit(ctx context.Context, briefID snowflake.ID, winnerCount int) ([]*RewardTier, error)
	List(ctx context.Context, briefID snowflake.ID) ([]*RewardTier, error)
}

type Repository interface {
	ReplaceAll(ctx context.Context, db *gorm.DB, briefID snowflake.ID, tiers []*RewardTier) error
	ListByBrief(ctx context.Context, db *gorm.DB, briefID snowflake.ID) ([]*RewardTier, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*RewardTier, error)
	// CountAssignments reports how many tiers of the brief already have a
	// winner bound; any means the tier set is locked.
	CountAssignments(ctx context.Context, db *gorm.DB, briefID snowflake.ID) (int64, error)
}

var (
	ErrTierNotFound         = errors.New("tier_not_found")
	ErrTierValidationFailed = errors.New("tier_validation_failed")
	ErrTiersLocked          = errors.New("tiers_locked")
	ErrInvalidWinnerCount   = errors.New("invalid_winner_count")
)
