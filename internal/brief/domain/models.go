package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// BriefStatus values are part of the contract consumed by the UI layer.
type BriefStatus string

const (
	StatusDraft            BriefStatus = "draft"
	StatusPublished        BriefStatus = "published"
	StatusActive           BriefStatus = "active"
	StatusWinnersSelected  BriefStatus = "winners_selected"
	StatusPayoutsCompleted BriefStatus = "payouts_completed"
	StatusClosed           BriefStatus = "closed"
)

// Brief is the funded campaign aggregate. Content fields (requirements,
// media, templates) live outside this service; only the financial columns
// are mutated here. A funded brief is never deleted, only closed.
type Brief struct {
	ID                   snowflake.ID `json:"id" gorm:"primaryKey"`
	BrandID              snowflake.ID `json:"brand_id" gorm:"not null;index"`
	Title                string       `json:"title" gorm:"type:text;not null"`
	Currency             string       `json:"currency" gorm:"type:text;not null;default:usd"`
	RewardTotalCents     int64        `json:"reward_total_cents" gorm:"not null;default:0"`
	FundedAmountCents    int64        `json:"funded_amount_cents" gorm:"not null;default:0"`
	PlatformFeeCents     int64        `json:"platform_fee_cents" gorm:"not null;default:0"`
	NetFundedAmountCents int64        `json:"net_funded_amount_cents" gorm:"not null;default:0"`
	IsFunded             bool         `json:"is_funded" gorm:"not null;default:false"`
	FundedAt             *time.Time   `json:"funded_at,omitempty"`
	Status               BriefStatus  `json:"status" gorm:"type:text;not null;default:draft"`
	CreatedAt            time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt            time.Time    `json:"updated_at" gorm:"not null"`
}

func (Brief) TableName() string { return "briefs" }

var (
	ErrNotFound  = errors.New("brief_not_found")
	ErrNotFunded = errors.New("brief_not_funded")
)
