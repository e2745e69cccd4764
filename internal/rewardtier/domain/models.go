package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// RewardTier is a ranked payout slot. Position 1 is first place; positions
// form a contiguous 1..N set per brief.
type RewardTier struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	BriefID     snowflake.ID `json:"brief_id" gorm:"not null;index"`
	Position    int          `json:"position" gorm:"not null"`
	AmountCents int64        `json:"amount_cents" gorm:"not null"`
	Description string       `json:"description" gorm:"type:text;not null"`
	IsActive    bool         `json:"is_active" gorm:"not null"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null"`
}

func (RewardTier) TableName() string { return "reward_tiers" }

// TierInput is the boundary shape for tier configuration.
type TierInput struct {
	Position    int    `json:"position"`
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description"`
}

// Split divides net evenly across n slots in minor units. The remainder
// cents go one each to the lowest positions so the slice always sums to
// net exactly: 95000/3 yields 31667, 31667, 31666.
func Split(net int64, n int) []int64 {
	if n <= 0 || net <= 0 {
		return nil
	}
	base := net / int64(n)
	remainder := net % int64(n)
	amounts := make([]int64, n)
	for i := range amounts {
		amounts[i] = base
		if int64(i) < remainder {
			amounts[i]++
		}
	}
	return amounts
}
