package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type FundingUpdate struct {
	FundedAmountCents    int64
	PlatformFeeCents     int64
	NetFundedAmountCents int64
	FundedAt             time.Time
	Status               BriefStatus
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, brief *Brief) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Brief, error)
	// ApplyFunding persists the fee split and flips is_funded in one
	// conditional update; returns false when the brief was already funded.
	ApplyFunding(ctx context.Context, db *gorm.DB, id snowflake.ID, update FundingUpdate, now time.Time) (bool, error)
	// TransitionStatus is a compare-and-swap on status.
	TransitionStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []BriefStatus, to BriefStatus, now time.Time) (bool, error)
}
