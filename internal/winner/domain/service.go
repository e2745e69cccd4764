package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// Assign binds a submission to a tier exactly once. The new
	// assignment starts with payout status pending; the brief moves to
	// winners_selected on the first assignment.
	Assign(ctx context.Context, briefID, tierID, submissionID, creatorID snowflake.ID) (*WinnerAssignment, error)
	// Unassign removes an assignment that has not been paid or entered
	// processing.
	Unassign(ctx context.Context, assignmentID snowflake.ID) error
	Get(ctx context.Context, assignmentID snowflake.ID) (*WinnerAssignment, error)
	ListByBrief(ctx context.Context, briefID snowflake.ID) ([]*WinnerAssignment, error)
	// EvaluateCompletion flips the brief to payouts_completed once every
	// active tier's assignment is paid. Safe to call after any payout
	// transition; it re-derives the answer from the rows.
	EvaluateCompletion(ctx context.Context, briefID snowflake.ID) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, assignment *WinnerAssignment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*WinnerAssignment, error)
	FindByTier(ctx context.Context, db *gorm.DB, tierID snowflake.ID) (*WinnerAssignment, error)
	FindBySubmission(ctx context.Context, db *gorm.DB, briefID, submissionID snowflake.ID) (*WinnerAssignment, error)
	FindByExternalTransferID(ctx context.Context, db *gorm.DB, externalTransferID string) (*WinnerAssignment, error)
	ListByBrief(ctx context.Context, db *gorm.DB, briefID snowflake.ID) ([]*WinnerAssignment, error)
	// DeleteIfUnlocked removes the row only while payout status is
	// pending or failed; returns false when no row matched.
	DeleteIfUnlocked(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)

	// CASStatus is the payout critical section: a conditional update from
	// one status set to another, reporting whether this caller won.
	CASStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []PayoutStatus, to PayoutStatus, now time.Time) (bool, error)
	SetExternalTransfer(ctx context.Context, db *gorm.DB, id snowflake.ID, externalTransferID string, now time.Time) error
	// MarkPaid is idempotent: an already paid assignment is a no-op.
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) error

	// UnpaidActiveTierCount counts active tiers of the brief that do not
	// yet hold a paid assignment.
	UnpaidActiveTierCount(ctx context.Context, db *gorm.DB, briefID snowflake.ID) (int64, error)
	ActiveTierCount(ctx context.Context, db *gorm.DB, briefID snowflake.ID) (int64, error)
}

var (
	ErrAssignmentNotFound        = errors.New("assignment_not_found")
	ErrTierMismatch              = errors.New("tier_brief_mismatch")
	ErrTierAlreadyAssigned       = errors.New("tier_already_assigned")
	ErrSubmissionAlreadyAssigned = errors.New("submission_already_assigned")
	ErrAssignmentLocked          = errors.New("assignment_locked")
)
