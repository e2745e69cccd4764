package service

import (
	"context"
	"errors"
	"fmt"

	auditdomain "github.com/briefworks/briefworks/internal/audit/domain"
	briefdomain "github.com/briefworks/briefworks/internal/brief/domain"
	"github.com/briefworks/briefworks/internal/clock"
	"github.com/briefworks/briefworks/internal/config"
	"github.com/briefworks/briefworks/internal/fee"
	"github.com/briefworks/briefworks/internal/funding/domain"
	"github.com/briefworks/briefworks/internal/notification"
	"github.com/briefworks/briefworks/internal/observability/metrics"
	"github.com/briefworks/briefworks/internal/processor"
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
	Config    config.Config
	Policy    *config.PayoutPolicyHolder
	Repo      domain.Repository
	BriefRepo briefdomain.Repository
	Processor processor.Client
	Notifier  notification.Sink
	Audit     auditdomain.Service
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	cfg       config.Config
	policy    *config.PayoutPolicyHolder
	repo      domain.Repository
	briefRepo briefdomain.Repository
	processor processor.Client
	notifier  notification.Sink
	audit     auditdomain.Service
	metrics   *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("funding.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		cfg:       p.Config,
		policy:    p.Policy,
		repo:      p.Repo,
		briefRepo: p.BriefRepo,
		processor: p.Processor,
		notifier:  p.Notifier,
		audit:     p.Audit,
		metrics:   p.Metrics,
	}
}

func (s *Service) feePolicy() fee.Policy {
	policy := s.policy.Get()
	return fee.Policy{BasisPoints: policy.FeeBasisPoints, FloorCents: policy.FeeFloorCents}
}

func (s *Service) StartFunding(ctx context.Context, briefID snowflake.ID, amountCents int64) (*domain.FundingSession, error) {
	if amountCents <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	brief, err := s.briefRepo.FindByID(ctx, s.db, briefID)
	if err != nil {
		return nil, err
	}
	if brief.IsFunded {
		return nil, domain.ErrAlreadyFunded
	}

	if _, err := s.repo.FindPendingByBrief(ctx, s.db, briefID); err == nil {
		return nil, domain.ErrFundingInProgress
	} else if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, err
	}

	sessionID := s.genID.Generate()
	checkout, err := s.processor.CreateCheckoutSession(ctx, processor.CheckoutSessionRequest{
		ReferenceID: sessionID.String(),
		AmountCents: amountCents,
		Currency:    brief.Currency,
		Description: fmt.Sprintf("Escrow funding for brief %s", brief.Title),
		SuccessURL:  s.cfg.CheckoutSuccessURL,
		CancelURL:   s.cfg.CheckoutCancelURL,
		Metadata: map[string]string{
			"brief_id":   briefID.String(),
			"session_id": sessionID.String(),
		},
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	session := domain.FundingSession{
		ID:                sessionID,
		BriefID:           briefID,
		Provider:          processor.ProviderStripe,
		ProviderSessionID: checkout.ID,
		CheckoutURL:       checkout.URL,
		AmountCents:       amountCents,
		Status:            domain.SessionPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.InsertSession(ctx, s.db, &session); err != nil {
		// A concurrent start won the partial unique index on pending
		// sessions. The orphaned external session expires on its own.
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrFundingInProgress
		}
		return nil, err
	}

	s.log.Info("funding session opened",
		zap.String("brief_id", briefID.String()),
		zap.String("session_id", sessionID.String()),
		zap.Int64("amount_cents", amountCents),
	)
	return &session, nil
}

func (s *Service) Confirm(ctx context.Context, confirmation domain.Confirmation) error {
	session, err := s.repo.FindByProviderSession(ctx, s.db, confirmation.Provider, confirmation.ProviderSessionID)
	if err != nil {
		return err
	}
	if session.Status == domain.SessionCompleted {
		return nil
	}

	if confirmation.GrossAmountCents != session.AmountCents {
		// Fraud-suspect. The session is parked for manual review and the
		// brief stays unfunded.
		now := s.clock.Now()
		if err := s.repo.MarkMismatched(ctx, s.db, session.ID, now); err != nil {
			return err
		}
		s.log.Error("funding amount mismatch",
			zap.String("brief_id", session.BriefID.String()),
			zap.String("session_id", session.ID.String()),
			zap.Int64("expected_cents", session.AmountCents),
			zap.Int64("confirmed_cents", confirmation.GrossAmountCents),
		)
		s.auditLog(ctx, "funding.amount_mismatch", session.BriefID, map[string]any{
			"session_id":      session.ID.String(),
			"expected_cents":  session.AmountCents,
			"confirmed_cents": confirmation.GrossAmountCents,
		})
		return domain.ErrAmountMismatch
	}

	feeCents, netCents := s.feePolicy().Compute(confirmation.GrossAmountCents)
	now := s.clock.Now()
	fundedAt := confirmation.OccurredAt
	if fundedAt.IsZero() {
		fundedAt = now
	}

	var completed bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		completed, err = s.repo.CompleteSession(ctx, tx, session.ID, confirmation.ProviderPaymentID, now)
		if err != nil {
			return err
		}
		if !completed {
			// A concurrent replay already completed it.
			return nil
		}

		applied, err := s.briefRepo.ApplyFunding(ctx, tx, session.BriefID, briefdomain.FundingUpdate{
			FundedAmountCents:    confirmation.GrossAmountCents,
			PlatformFeeCents:     feeCents,
			NetFundedAmountCents: netCents,
			FundedAt:             fundedAt,
			Status:               briefdomain.StatusActive,
		}, now)
		if err != nil {
			return err
		}
		if !applied {
			return domain.ErrAlreadyFunded
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !completed {
		return nil
	}

	s.metrics.RecordFundingConfirmed(ctx, confirmation.Provider)
	s.log.Info("brief funded",
		zap.String("brief_id", session.BriefID.String()),
		zap.Int64("gross_cents", confirmation.GrossAmountCents),
		zap.Int64("fee_cents", feeCents),
		zap.Int64("net_cents", netCents),
	)
	s.auditLog(ctx, "funding.confirmed", session.BriefID, map[string]any{
		"session_id":  session.ID.String(),
		"gross_cents": confirmation.GrossAmountCents,
		"fee_cents":   feeCents,
		"net_cents":   netCents,
	})

	if brief, err := s.briefRepo.FindByID(ctx, s.db, session.BriefID); err == nil {
		s.notifier.Notify(ctx, brief.BrandID, notification.UserTypeBrand,
			"Brief funded",
			fmt.Sprintf("Your brief %q is funded and live.", brief.Title),
			notification.CategoryFunding,
		)
	}
	return nil
}

func (s *Service) Estimate(ctx context.Context, amountCents int64) (domain.Estimate, error) {
	if amountCents <= 0 {
		return domain.Estimate{}, domain.ErrInvalidAmount
	}
	feeCents, netCents := s.feePolicy().Compute(amountCents)
	return domain.Estimate{
		GrossAmountCents: amountCents,
		FeeCents:         feeCents,
		NetAmountCents:   netCents,
	}, nil
}

func (s *Service) CloseAndRefund(ctx context.Context, briefID snowflake.ID) (int64, error) {
	brief, err := s.briefRepo.FindByID(ctx, s.db, briefID)
	if err != nil {
		return 0, err
	}
	if !brief.IsFunded {
		return 0, briefdomain.ErrNotFunded
	}

	session, err := s.repo.FindCompletedByBrief(ctx, s.db, briefID)
	if err != nil {
		return 0, err
	}

	assigned, err := s.repo.SumAssignedAmount(ctx, s.db, briefID)
	if err != nil {
		return 0, err
	}
	refundable := brief.NetFundedAmountCents - assigned
	if refundable <= 0 {
		return 0, domain.ErrNothingToRefund
	}

	paymentRef := ""
	if session.ProviderPaymentID != nil {
		paymentRef = *session.ProviderPaymentID
	}
	refund, err := s.processor.CreateRefund(ctx, processor.RefundRequest{
		PaymentRef:     paymentRef,
		AmountCents:    refundable,
		IdempotencyKey: refundKey(briefID),
	})
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	if _, err := s.briefRepo.TransitionStatus(ctx, s.db, briefID,
		[]briefdomain.BriefStatus{briefdomain.StatusActive, briefdomain.StatusPublished, briefdomain.StatusWinnersSelected, briefdomain.StatusPayoutsCompleted},
		briefdomain.StatusClosed, now,
	); err != nil {
		return 0, err
	}
	if err := s.repo.MarkRefunded(ctx, s.db, session.ID, now); err != nil {
		return 0, err
	}

	s.log.Info("brief closed with refund",
		zap.String("brief_id", briefID.String()),
		zap.Int64("refund_cents", refundable),
		zap.String("refund_id", refund.ID),
	)
	s.auditLog(ctx, "funding.refunded", briefID, map[string]any{
		"refund_cents": refundable,
		"refund_id":    refund.ID,
	})
	return refundable, nil
}

func (s *Service) GetFunding(ctx context.Context, briefID snowflake.ID) (*domain.FundingView, error) {
	brief, err := s.briefRepo.FindByID(ctx, s.db, briefID)
	if err != nil {
		return nil, err
	}
	view := domain.FundingView{Brief: brief}
	session, err := s.repo.FindLatestByBrief(ctx, s.db, briefID)
	if err == nil {
		view.Session = session
	} else if !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, err
	}
	return &view, nil
}

func (s *Service) auditLog(ctx context.Context, action string, briefID snowflake.ID, metadata map[string]any) {
	target := briefID.String()
	_ = s.audit.AuditLog(ctx, "system", nil, action, "brief", &target, metadata)
}

// refundKey derives a stable idempotency key so an operator retrying a
// close never doubles the refund.
func refundKey(briefID snowflake.ID) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("refund:"+briefID.String())).String()
}
