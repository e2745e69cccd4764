package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// AccountStatus values are part of the contract consumed by the UI layer.
type AccountStatus string

const (
	StatusNotConnected AccountStatus = "not_connected"
	StatusPending      AccountStatus = "pending"
	StatusActive       AccountStatus = "active"
	StatusRestricted   AccountStatus = "restricted"
)

// PaymentAccount tracks a creator's connected payout account and the
// capability flags the rail last reported for it.
type PaymentAccount struct {
	CreatorID         snowflake.ID  `json:"creator_id" gorm:"primaryKey"`
	ExternalAccountID string        `json:"external_account_id" gorm:"type:text;not null"`
	Country           string        `json:"country" gorm:"type:text;not null"`
	ChargesEnabled    bool          `json:"charges_enabled" gorm:"not null"`
	PayoutsEnabled    bool          `json:"payouts_enabled" gorm:"not null"`
	DetailsSubmitted  bool          `json:"details_submitted" gorm:"not null"`
	Status            AccountStatus `json:"status" gorm:"type:text;not null"`
	CreatedAt         time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time     `json:"updated_at" gorm:"not null"`
}

func (PaymentAccount) TableName() string { return "payment_accounts" }

// DeriveStatus folds the rail's capability flags into the UI status enum.
func DeriveStatus(chargesEnabled, payoutsEnabled, detailsSubmitted bool) AccountStatus {
	switch {
	case payoutsEnabled:
		return StatusActive
	case detailsSubmitted:
		return StatusRestricted
	default:
		return StatusPending
	}
}
