package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	auditdomain "github.com/briefworks/briefworks/internal/audit/domain"
	briefdomain "github.com/briefworks/briefworks/internal/brief/domain"
	"github.com/briefworks/briefworks/internal/clock"
	"github.com/briefworks/briefworks/internal/config"
	"github.com/briefworks/briefworks/internal/notification"
	"github.com/briefworks/briefworks/internal/observability/metrics"
	accountdomain "github.com/briefworks/briefworks/internal/paymentaccount/domain"
	"github.com/briefworks/briefworks/internal/payout/domain"
	"github.com/briefworks/briefworks/internal/processor"
	tierdomain "github.com/briefworks/briefworks/internal/rewardtier/domain"
	winnerdomain "github.com/briefworks/briefworks/internal/winner/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Policy    *config.PayoutPolicyHolder
	Repo      winnerdomain.Repository
	TierRepo  tierdomain.Repository
	BriefRepo briefdomain.Repository
	Winners   winnerdomain.Service
	Accounts  accountdomain.Service
	Processor processor.Client
	Notifier  notification.Sink
	Audit     auditdomain.Service
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	policy    *config.PayoutPolicyHolder
	repo      winnerdomain.Repository
	tierRepo  tierdomain.Repository
	briefRepo briefdomain.Repository
	winners   winnerdomain.Service
	accounts  accountdomain.Service
	processor processor.Client
	notifier  notification.Sink
	audit     auditdomain.Service
	metrics   *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("payout.service"),
		clock:     p.Clock,
		policy:    p.Policy,
		repo:      p.Repo,
		tierRepo:  p.TierRepo,
		briefRepo: p.BriefRepo,
		winners:   p.Winners,
		accounts:  p.Accounts,
		processor: p.Processor,
		notifier:  p.Notifier,
		audit:     p.Audit,
		metrics:   p.Metrics,
	}
}

func (s *Service) ProcessSingle(ctx context.Context, assignmentID snowflake.ID) (*domain.Result, error) {
	assignment, err := s.repo.FindByID(ctx, s.db, assignmentID)
	if err != nil {
		return nil, err
	}
	switch assignment.PayoutStatus {
	case winnerdomain.PayoutPending:
	case winnerdomain.PayoutProcessing:
		return nil, domain.ErrAlreadyProcessing
	default:
		return nil, domain.ErrNotPending
	}

	// Readiness gate runs before the status flip so a not-ready account
	// leaves the assignment pending and retryable.
	account, err := s.accounts.PayoutsAllowed(ctx, assignment.CreatorID)
	if err != nil {
		s.metrics.RecordPayoutAttempt(ctx, "account_not_ready")
		return nil, err
	}

	tier, err := s.tierRepo.FindByID(ctx, s.db, assignment.TierID)
	if err != nil {
		return nil, err
	}
	brief, err := s.briefRepo.FindByID(ctx, s.db, assignment.BriefID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	won, err := s.repo.CASStatus(ctx, s.db, assignment.ID,
		[]winnerdomain.PayoutStatus{winnerdomain.PayoutPending},
		winnerdomain.PayoutProcessing, now,
	)
	if err != nil {
		return nil, err
	}
	if !won {
		s.metrics.RecordPayoutAttempt(ctx, "already_processing")
		return nil, domain.ErrAlreadyProcessing
	}

	transfer, err := s.processor.CreateTransfer(ctx, processor.TransferRequest{
		AmountCents:    tier.AmountCents,
		Currency:       brief.Currency,
		Destination:    account.ExternalAccountID,
		Description:    fmt.Sprintf("Reward for brief %s, position %d", brief.Title, tier.Position),
		IdempotencyKey: assignment.IdempotencyKey,
		Metadata: map[string]string{
			"assignment_id": assignment.ID.String(),
			"brief_id":      assignment.BriefID.String(),
		},
	})
	if err != nil {
		if errors.Is(err, processor.ErrUnknownOutcome) {
			// The transfer may have landed. Stay processing; a webhook or
			// an operator refresh resolves it. Never retried with a
			// different idempotency key.
			s.metrics.RecordPayoutAttempt(ctx, "unknown_outcome")
			s.log.Warn("transfer outcome unknown, left processing",
				zap.String("assignment_id", assignment.ID.String()),
				zap.Error(err),
			)
			return nil, err
		}

		reason := err.Error()
		if markErr := s.repo.MarkFailed(ctx, s.db, assignment.ID, reason, s.clock.Now()); markErr != nil {
			return nil, markErr
		}
		s.metrics.RecordPayoutAttempt(ctx, "failed")
		s.log.Warn("transfer declined",
			zap.String("assignment_id", assignment.ID.String()),
			zap.String("reason", reason),
		)
		s.auditAssignment(ctx, "payout.failed", assignment.ID, map[string]any{
			"reason": reason,
		})
		return &domain.Result{
			AssignmentID: assignment.ID,
			CreatorID:    assignment.CreatorID,
			AmountCents:  tier.AmountCents,
			Status:       winnerdomain.PayoutFailed,
			Error:        reason,
		}, nil
	}

	// Transfer accepted. The assignment stays processing until the
	// settlement webhook confirms it; the transfer ID links the two.
	if err := s.repo.SetExternalTransfer(ctx, s.db, assignment.ID, transfer.ID, s.clock.Now()); err != nil {
		return nil, err
	}
	s.metrics.RecordPayoutAttempt(ctx, "submitted")
	s.log.Info("transfer submitted",
		zap.String("assignment_id", assignment.ID.String()),
		zap.String("external_transfer_id", transfer.ID),
		zap.Int64("amount_cents", tier.AmountCents),
	)
	s.auditAssignment(ctx, "payout.submitted", assignment.ID, map[string]any{
		"external_transfer_id": transfer.ID,
		"amount_cents":         tier.AmountCents,
	})
	return &domain.Result{
		AssignmentID: assignment.ID,
		CreatorID:    assignment.CreatorID,
		AmountCents:  tier.AmountCents,
		Status:       winnerdomain.PayoutProcessing,
	}, nil
}

func (s *Service) ProcessBulk(ctx context.Context, assignmentIDs []snowflake.ID) (*domain.BulkResult, error) {
	ids := dedupe(assignmentIDs)
	if len(ids) == 0 {
		return nil, domain.ErrEmptyBatch
	}
	policy := s.policy.Get()
	if len(ids) > policy.MaxBulkBatch {
		return nil, domain.ErrBatchTooLarge
	}

	// Balance precondition: the whole batch is rejected before any
	// transfer when the settlement balance cannot cover it.
	var total int64
	amounts := make(map[snowflake.ID]int64, len(ids))
	for _, id := range ids {
		assignment, err := s.repo.FindByID(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		if assignment.PayoutStatus != winnerdomain.PayoutPending {
			continue
		}
		tier, err := s.tierRepo.FindByID(ctx, s.db, assignment.TierID)
		if err != nil {
			return nil, err
		}
		amounts[id] = tier.AmountCents
		total += tier.AmountCents
	}

	balance, err := s.processor.AvailableBalance(ctx, policy.Currency)
	if err != nil {
		return nil, err
	}
	if total > balance {
		s.metrics.RecordPayoutAttempt(ctx, "insufficient_balance")
		s.log.Warn("bulk payout rejected on balance",
			zap.Int64("required_cents", total),
			zap.Int64("available_cents", balance),
		)
		return nil, domain.ErrInsufficientBalance
	}

	out := &domain.BulkResult{Results: make([]domain.Result, 0, len(ids))}
	for _, id := range ids {
		result, err := s.ProcessSingle(ctx, id)
		if err != nil {
			out.Failed++
			out.Results = append(out.Results, domain.Result{
				AssignmentID: id,
				AmountCents:  amounts[id],
				Error:        err.Error(),
			})
			continue
		}
		if result.Status == winnerdomain.PayoutFailed {
			out.Failed++
		} else {
			out.Succeeded++
		}
		out.Results = append(out.Results, *result)
	}
	return out, nil
}

func (s *Service) ProcessBrief(ctx context.Context, briefID snowflake.ID) (*domain.BulkResult, error) {
	assignments, err := s.repo.ListByBrief(ctx, s.db, briefID)
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(assignments))
	for _, assignment := range assignments {
		if assignment.PayoutStatus == winnerdomain.PayoutPending {
			ids = append(ids, assignment.ID)
		}
	}
	return s.ProcessBulk(ctx, ids)
}

func (s *Service) Retry(ctx context.Context, assignmentID snowflake.ID) error {
	moved, err := s.repo.CASStatus(ctx, s.db, assignmentID,
		[]winnerdomain.PayoutStatus{winnerdomain.PayoutFailed},
		winnerdomain.PayoutPending, s.clock.Now(),
	)
	if err != nil {
		return err
	}
	if !moved {
		if _, findErr := s.repo.FindByID(ctx, s.db, assignmentID); findErr != nil {
			return findErr
		}
		return domain.ErrNotFailed
	}
	s.log.Info("payout reset for retry", zap.String("assignment_id", assignmentID.String()))
	s.auditAssignment(ctx, "payout.retried", assignmentID, nil)
	return nil
}

func (s *Service) Refresh(ctx context.Context, assignmentID snowflake.ID) (*winnerdomain.WinnerAssignment, error) {
	assignment, err := s.repo.FindByID(ctx, s.db, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := s.winners.EvaluateCompletion(ctx, assignment.BriefID); err != nil {
		return nil, err
	}
	return assignment, nil
}

func (s *Service) SettleSucceeded(ctx context.Context, assignmentID snowflake.ID, externalTransferID string, occurredAt time.Time) error {
	assignment, err := s.resolve(ctx, assignmentID, externalTransferID)
	if err != nil {
		return err
	}
	if assignment.PayoutStatus == winnerdomain.PayoutPaid {
		return nil
	}

	paidAt := occurredAt
	if paidAt.IsZero() {
		paidAt = s.clock.Now()
	}
	if err := s.repo.MarkPaid(ctx, s.db, assignment.ID, paidAt); err != nil {
		return err
	}
	if assignment.ExternalTransferID == nil && externalTransferID != "" {
		// The webhook arrived before the synchronous response persisted
		// the transfer ID.
		if err := s.repo.SetExternalTransfer(ctx, s.db, assignment.ID, externalTransferID, s.clock.Now()); err != nil {
			return err
		}
	}

	s.log.Info("payout settled",
		zap.String("assignment_id", assignment.ID.String()),
		zap.String("external_transfer_id", externalTransferID),
	)
	s.auditAssignment(ctx, "payout.paid", assignment.ID, map[string]any{
		"external_transfer_id": externalTransferID,
	})
	s.notifier.Notify(ctx, assignment.CreatorID, notification.UserTypeCreator,
		"Reward paid",
		"Your brief reward has been paid out to your connected account.",
		notification.CategoryPayout,
	)
	return s.winners.EvaluateCompletion(ctx, assignment.BriefID)
}

func (s *Service) SettleFailed(ctx context.Context, assignmentID snowflake.ID, externalTransferID, reason string, occurredAt time.Time) error {
	assignment, err := s.resolve(ctx, assignmentID, externalTransferID)
	if err != nil {
		return err
	}
	if assignment.PayoutStatus == winnerdomain.PayoutFailed || assignment.PayoutStatus == winnerdomain.PayoutPaid {
		return nil
	}

	if reason == "" {
		reason = "transfer_failed"
	}
	if err := s.repo.MarkFailed(ctx, s.db, assignment.ID, reason, s.clock.Now()); err != nil {
		return err
	}
	s.log.Warn("payout settlement failed",
		zap.String("assignment_id", assignment.ID.String()),
		zap.String("external_transfer_id", externalTransferID),
		zap.String("reason", reason),
	)
	s.auditAssignment(ctx, "payout.failed", assignment.ID, map[string]any{
		"external_transfer_id": externalTransferID,
		"reason":               reason,
	})
	return nil
}

// resolve finds the assignment from the metadata hint first, falling back
// to the external transfer ID for events without metadata.
func (s *Service) resolve(ctx context.Context, assignmentID snowflake.ID, externalTransferID string) (*winnerdomain.WinnerAssignment, error) {
	if assignmentID != 0 {
		assignment, err := s.repo.FindByID(ctx, s.db, assignmentID)
		if err == nil {
			return assignment, nil
		}
		if !errors.Is(err, winnerdomain.ErrAssignmentNotFound) {
			return nil, err
		}
	}
	if externalTransferID == "" {
		return nil, winnerdomain.ErrAssignmentNotFound
	}
	return s.repo.FindByExternalTransferID(ctx, s.db, externalTransferID)
}

func (s *Service) auditAssignment(ctx context.Context, action string, assignmentID snowflake.ID, metadata map[string]any) {
	target := assignmentID.String()
	_ = s.audit.AuditLog(ctx, "system", nil, action, "assignment", &target, metadata)
}

func dedupe(ids []snowflake.ID) []snowflake.ID {
	seen := make(map[snowflake.ID]bool, len(ids))
	out := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
