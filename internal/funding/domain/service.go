package domain

import (
	"context"
	"errors"
	"time"

	briefdomain "github.com/briefworks/briefworks/internal/brief/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Confirmation is the settled outcome of a checkout session, delivered by
// the processor once funds have cleared.
type Confirmation struct {
	Provider          string
	ProviderSessionID string
	ProviderPaymentID string
	GrossAmountCents  int64
	OccurredAt        time.Time
}

type Estimate struct {
	GrossAmountCents int64 `json:"gross_amount_cents"`
	FeeCents         int64 `json:"fee_cents"`
	NetAmountCents   int64 `json:"net_amount_cents"`
}

// FundingView is the read model behind GET /briefs/:id/funding.
type FundingView struct {
	Brief   *briefdomain.Brief `json:"brief"`
	Session *FundingSession    `json:"session,omitempty"`
}

type Service interface {
	// StartFunding opens a checkout session for an unfunded brief and
	// returns the hosted checkout URL. A second call while a session is
	// still pending fails with ErrFundingInProgress.
	StartFunding(ctx context.Context, briefID snowflake.ID, amountCents int64) (*FundingSession, error)
	// Confirm applies a settled checkout: verifies the gross amount
	// against the session, computes the fee split, and flips the brief to
	// funded in the same transaction. Replays are no-ops.
	Confirm(ctx context.Context, confirmation Confirmation) error
	// Estimate previews the fee split without touching any state. It uses
	// the same fee policy as Confirm so client and server cannot drift.
	Estimate(ctx context.Context, amountCents int64) (Estimate, error)
	// CloseAndRefund closes a funded brief and refunds whatever portion of
	// the escrow no assignment has claimed.
	CloseAndRefund(ctx context.Context, briefID snowflake.ID) (int64, error)
	GetFunding(ctx context.Context, briefID snowflake.ID) (*FundingView, error)
}

type Repository interface {
	InsertSession(ctx context.Context, db *gorm.DB, session *FundingSession) error
	FindPendingByBrief(ctx context.Context, db *gorm.DB, briefID snowflake.ID) (*FundingSession, error)
	FindByProviderSession(ctx context.Context, db *gorm.DB, provider, providerSessionID string) (*FundingSession, error)
	FindLatestByBrief(ctx context.Context, db *gorm.DB, briefID snowflake.ID) (*FundingSession, error)
	FindCompletedByBrief(ctx context.Context, db *gorm.DB, briefID snowflake.ID) (*FundingSession, error)
	// CompleteSession is a compare-and-swap from pending to completed.
	CompleteSession(ctx context.Context, db *gorm.DB, id snowflake.ID, providerPaymentID string, completedAt time.Time) (bool, error)
	MarkMismatched(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
	MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
	// SumAssignedAmount totals the tier amounts already claimed by winner
	// assignments, used to size a partial refund.
	SumAssignedAmount(ctx context.Context, db *gorm.DB, briefID snowflake.ID) (int64, error)
}

var (
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrAlreadyFunded     = errors.New("already_funded")
	ErrFundingInProgress = errors.New("funding_in_progress")
	ErrSessionNotFound   = errors.New("funding_session_not_found")
	ErrAmountMismatch    = errors.New("amount_mismatch")
	ErrNothingToRefund   = errors.New("nothing_to_refund")
)
