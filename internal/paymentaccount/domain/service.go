package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// CapabilityFlags is the subset of account state the rail reports on
// account.updated events and status refreshes.
type CapabilityFlags struct {
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

type Service interface {
	// RequestOnboarding creates the external account for a creator who
	// does not have one yet. An existing active account is rejected with
	// ErrAccountExists.
	RequestOnboarding(ctx context.Context, creatorID snowflake.ID, country string) (*PaymentAccount, error)
	// CreateOnboardingLink returns a one-time hosted onboarding URL.
	CreateOnboardingLink(ctx context.Context, creatorID snowflake.ID, returnURL, refreshURL string) (string, error)
	// RefreshStatus pulls the current capability flags from the rail and
	// persists them.
	RefreshStatus(ctx context.Context, creatorID snowflake.ID) (*PaymentAccount, error)
	// UpsertFromEvent applies capability flags from an account.updated
	// webhook. Accounts never seen before are inserted, not rejected.
	UpsertFromEvent(ctx context.Context, externalAccountID string, flags CapabilityFlags) error
	Get(ctx context.Context, creatorID snowflake.ID) (*PaymentAccount, error)
	// PayoutsAllowed is the gate every payout path checks before touching
	// the rail. It fails fast with ErrAccountNotReady; nothing is queued.
	PayoutsAllowed(ctx context.Context, creatorID snowflake.ID) (*PaymentAccount, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *PaymentAccount) error
	FindByCreator(ctx context.Context, db *gorm.DB, creatorID snowflake.ID) (*PaymentAccount, error)
	FindByExternalID(ctx context.Context, db *gorm.DB, externalAccountID string) (*PaymentAccount, error)
	UpdateFlags(ctx context.Context, db *gorm.DB, creatorID snowflake.ID, flags CapabilityFlags, status AccountStatus, now time.Time) error
}

var (
	ErrAccountExists   = errors.New("account_exists")
	ErrAccountNotFound = errors.New("account_not_found")
	ErrAccountNotReady = errors.New("account_not_ready")
	ErrInvalidCountry  = errors.New("invalid_country")
)
