package service

import (
	"context"
	"errors"

	auditdomain "github.com/briefworks/briefworks/internal/audit/domain"
	briefdomain "github.com/briefworks/briefworks/internal/brief/domain"
	"github.com/briefworks/briefworks/internal/clock"
	tierdomain "github.com/briefworks/briefworks/internal/rewardtier/domain"
	"github.com/briefworks/briefworks/internal/winner/domain"
	"github.com/briefworks/briefworks/pkg/db"
	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	TierRepo  tierdomain.Repository
	BriefRepo briefdomain.Repository
	Audit     auditdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	tierRepo  tierdomain.Repository
	briefRepo briefdomain.Repository
	audit     auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("winner.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		tierRepo:  p.TierRepo,
		briefRepo: p.BriefRepo,
		audit:     p.Audit,
	}
}

func (s *Service) Assign(ctx context.Context, briefID, tierID, submissionID, creatorID snowflake.ID) (*domain.WinnerAssignment, error) {
	brief, err := s.briefRepo.FindByID(ctx, s.db, briefID)
	if err != nil {
		return nil, err
	}
	if !brief.IsFunded {
		return nil, briefdomain.ErrNotFunded
	}

	tier, err := s.tierRepo.FindByID(ctx, s.db, tierID)
	if err != nil {
		return nil, err
	}
	if tier.BriefID != briefID {
		return nil, domain.ErrTierMismatch
	}

	if _, err := s.repo.FindByTier(ctx, s.db, tierID); err == nil {
		return nil, domain.ErrTierAlreadyAssigned
	} else if !errors.Is(err, domain.ErrAssignmentNotFound) {
		return nil, err
	}
	if _, err := s.repo.FindBySubmission(ctx, s.db, briefID, submissionID); err == nil {
		return nil, domain.ErrSubmissionAlreadyAssigned
	} else if !errors.Is(err, domain.ErrAssignmentNotFound) {
		return nil, err
	}

	now := s.clock.Now()
	assignmentID := s.genID.Generate()
	assignment := domain.WinnerAssignment{
		ID:             assignmentID,
		BriefID:        briefID,
		TierID:         tierID,
		SubmissionID:   submissionID,
		CreatorID:      creatorID,
		AssignedAt:     now,
		PayoutStatus:   domain.PayoutPending,
		IdempotencyKey: PayoutIdempotencyKey(assignmentID),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, s.db, &assignment); err != nil {
		if db.IsDuplicateKeyErr(err) {
			// A concurrent assign won one of the unique indexes; re-read
			// to report which invariant it hit.
			if _, tierErr := s.repo.FindByTier(ctx, s.db, tierID); tierErr == nil {
				return nil, domain.ErrTierAlreadyAssigned
			}
			return nil, domain.ErrSubmissionAlreadyAssigned
		}
		return nil, err
	}

	if _, err := s.briefRepo.TransitionStatus(ctx, s.db, briefID,
		[]briefdomain.BriefStatus{briefdomain.StatusPublished, briefdomain.StatusActive},
		briefdomain.StatusWinnersSelected, now,
	); err != nil {
		return nil, err
	}

	s.log.Info("winner assigned",
		zap.String("brief_id", briefID.String()),
		zap.String("tier_id", tierID.String()),
		zap.String("submission_id", submissionID.String()),
		zap.String("creator_id", creatorID.String()),
	)
	target := assignmentID.String()
	_ = s.audit.AuditLog(ctx, "system", nil, "winner.assigned", "assignment", &target, map[string]any{
		"brief_id":      briefID.String(),
		"tier_id":       tierID.String(),
		"submission_id": submissionID.String(),
		"creator_id":    creatorID.String(),
	})
	return &assignment, nil
}

func (s *Service) Unassign(ctx context.Context, assignmentID snowflake.ID) error {
	removed, err := s.repo.DeleteIfUnlocked(ctx, s.db, assignmentID)
	if err != nil {
		return err
	}
	if !removed {
		// Distinguish a missing row from a locked one.
		if _, findErr := s.repo.FindByID(ctx, s.db, assignmentID); findErr != nil {
			return findErr
		}
		return domain.ErrAssignmentLocked
	}

	s.log.Info("winner unassigned", zap.String("assignment_id", assignmentID.String()))
	target := assignmentID.String()
	_ = s.audit.AuditLog(ctx, "system", nil, "winner.unassigned", "assignment", &target, nil)
	return nil
}

func (s *Service) Get(ctx context.Context, assignmentID snowflake.ID) (*domain.WinnerAssignment, error) {
	return s.repo.FindByID(ctx, s.db, assignmentID)
}

func (s *Service) ListByBrief(ctx context.Context, briefID snowflake.ID) ([]*domain.WinnerAssignment, error) {
	return s.repo.ListByBrief(ctx, s.db, briefID)
}

func (s *Service) EvaluateCompletion(ctx context.Context, briefID snowflake.ID) error {
	active, err := s.repo.ActiveTierCount(ctx, s.db, briefID)
	if err != nil {
		return err
	}
	if active == 0 {
		return nil
	}
	unpaid, err := s.repo.UnpaidActiveTierCount(ctx, s.db, briefID)
	if err != nil {
		return err
	}
	if unpaid > 0 {
		return nil
	}

	moved, err := s.briefRepo.TransitionStatus(ctx, s.db, briefID,
		[]briefdomain.BriefStatus{briefdomain.StatusWinnersSelected},
		briefdomain.StatusPayoutsCompleted, s.clock.Now(),
	)
	if err != nil {
		return err
	}
	if moved {
		s.log.Info("brief payouts completed", zap.String("brief_id", briefID.String()))
		target := briefID.String()
		_ = s.audit.AuditLog(ctx, "system", nil, "brief.payouts_completed", "brief", &target, nil)
	}
	return nil
}

// PayoutIdempotencyKey derives the external idempotency key from the
// assignment identity. Retries for the same assignment always reuse it;
// that is what bounds the rail to at most one transfer per assignment.
func PayoutIdempotencyKey(assignmentID snowflake.ID) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("payout:"+assignmentID.String())).String()
}
