package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// PayoutStatus values are part of the contract consumed by the UI layer.
type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutPaid       PayoutStatus = "paid"
	PayoutFailed     PayoutStatus = "failed"
)

// WinnerAssignment binds one submission and its creator to one reward
// tier. The unique indexes on tier_id and (brief_id, submission_id) are
// the uniqueness invariant; application checks only produce friendlier
// errors ahead of them.
type WinnerAssignment struct {
	ID                 snowflake.ID `json:"id" gorm:"primaryKey"`
	BriefID            snowflake.ID `json:"brief_id" gorm:"not null;index"`
	TierID             snowflake.ID `json:"tier_id" gorm:"not null"`
	SubmissionID       snowflake.ID `json:"submission_id" gorm:"not null"`
	CreatorID          snowflake.ID `json:"creator_id" gorm:"not null"`
	AssignedAt         time.Time    `json:"assigned_at" gorm:"not null"`
	PayoutStatus       PayoutStatus `json:"payout_status" gorm:"type:text;not null"`
	ExternalTransferID *string      `json:"external_transfer_id,omitempty"`
	IdempotencyKey     string       `json:"-" gorm:"type:text;not null"`
	FailureReason      *string      `json:"failure_reason,omitempty"`
	PaidAt             *time.Time   `json:"paid_at,omitempty"`
	CreatedAt          time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time    `json:"updated_at" gorm:"not null"`
}

func (WinnerAssignment) TableName() string { return "winner_assignments" }
