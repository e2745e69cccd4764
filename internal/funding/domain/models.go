package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionCompleted  SessionStatus = "completed"
	SessionMismatched SessionStatus = "mismatched"
	SessionRefunded   SessionStatus = "refunded"
)

// FundingSession is one escrow checkout attempt for a brief. At most one
// pending session exists per brief; the partial unique index on
// funding_sessions enforces it.
type FundingSession struct {
	ID                snowflake.ID  `json:"id" gorm:"primaryKey"`
	BriefID           snowflake.ID  `json:"brief_id" gorm:"not null;index"`
	Provider          string        `json:"provider" gorm:"type:text;not null"`
	ProviderSessionID string        `json:"provider_session_id" gorm:"type:text;not null"`
	ProviderPaymentID *string       `json:"provider_payment_id,omitempty"`
	CheckoutURL       string        `json:"checkout_url" gorm:"type:text;not null"`
	AmountCents       int64         `json:"amount_cents" gorm:"not null"`
	Status            SessionStatus `json:"status" gorm:"type:text;not null"`
	CreatedAt         time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time     `json:"updated_at" gorm:"not null"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
}

func (FundingSession) TableName() string { return "funding_sessions" }
