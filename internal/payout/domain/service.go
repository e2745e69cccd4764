package domain

import (
	"context"
	"errors"
	"time"

	winnerdomain "github.com/briefworks/briefworks/internal/winner/domain"
	"github.com/bwmarrin/snowflake"
)

// Result is the definitive per-assignment outcome of a payout attempt.
type Result struct {
	AssignmentID snowflake.ID              `json:"assignment_id"`
	CreatorID    snowflake.ID              `json:"creator_id"`
	AmountCents  int64                     `json:"amount_cents"`
	Status       winnerdomain.PayoutStatus `json:"status"`
	Error        string                    `json:"error,omitempty"`
}

// BulkResult reports per-item outcomes plus counts, never a single
// boolean.
type BulkResult struct {
	Results   []Result `json:"results"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
}

type Service interface {
	// ProcessSingle runs one payout attempt: readiness gate, the
	// pending to processing compare-and-swap, then the external transfer
	// under the assignment's fixed idempotency key. A synchronous decline
	// is a definitive Result with status failed, not an error.
	ProcessSingle(ctx context.Context, assignmentID snowflake.ID) (*Result, error)
	// ProcessBulk checks the available settlement balance against the
	// batch total before any transfer, then processes each assignment
	// independently.
	ProcessBulk(ctx context.Context, assignmentIDs []snowflake.ID) (*BulkResult, error)
	// ProcessBrief runs ProcessBulk over the brief's pending assignments.
	ProcessBrief(ctx context.Context, briefID snowflake.ID) (*BulkResult, error)
	// Retry moves a failed assignment back to pending after operator
	// review. The idempotency key is unchanged.
	Retry(ctx context.Context, assignmentID snowflake.ID) error
	// Refresh re-reads the assignment and re-evaluates brief completion.
	// It never guesses the outcome of an in-flight transfer.
	Refresh(ctx context.Context, assignmentID snowflake.ID) (*winnerdomain.WinnerAssignment, error)

	// SettleSucceeded and SettleFailed apply processor webhook outcomes.
	// Both are idempotent and keyed by external IDs, not arrival order.
	SettleSucceeded(ctx context.Context, assignmentID snowflake.ID, externalTransferID string, occurredAt time.Time) error
	SettleFailed(ctx context.Context, assignmentID snowflake.ID, externalTransferID, reason string, occurredAt time.Time) error
}

var (
	ErrAlreadyProcessing   = errors.New("already_processing")
	ErrNotPending          = errors.New("payout_not_pending")
	ErrNotFailed           = errors.New("payout_not_failed")
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrEmptyBatch          = errors.New("empty_batch")
	ErrBatchTooLarge       = errors.New("batch_too_large")
)
