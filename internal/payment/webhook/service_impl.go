package webhook

import (
	"context"
	"errors"
	"net/http"

	"github.com/briefworks/briefworks/internal/clock"
	fundingdomain "github.com/briefworks/briefworks/internal/funding/domain"
	"github.com/briefworks/briefworks/internal/observability/metrics"
	accountdomain "github.com/briefworks/briefworks/internal/paymentaccount/domain"
	"github.com/briefworks/briefworks/internal/payment/adapters"
	"github.com/briefworks/briefworks/internal/payment/domain"
	payoutdomain "github.com/briefworks/briefworks/internal/payout/domain"
	walletdomain "github.com/briefworks/briefworks/internal/wallet/domain"
	winnerdomain "github.com/briefworks/briefworks/internal/winner/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Registry *adapters.Registry
	Funding  fundingdomain.Service
	Payouts  payoutdomain.Service
	Wallet   walletdomain.Service
	Accounts accountdomain.Service
	Metrics  *metrics.Metrics `optional:"true"`
}

// Service is the webhook reconciler. Idempotence comes from the event
// dedup insert plus idempotent settlement operations downstream, so any
// delivery can be replayed or arrive out of order.
type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	registry *adapters.Registry
	funding  fundingdomain.Service
	payouts  payoutdomain.Service
	wallet   walletdomain.Service
	accounts accountdomain.Service
	metrics  *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.webhook"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		registry: p.Registry,
		funding:  p.Funding,
		payouts:  p.Payouts,
		wallet:   p.Wallet,
		accounts: p.Accounts,
		metrics:  p.Metrics,
	}
}

func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	adapter, err := s.registry.Get(provider)
	if err != nil {
		return err
	}
	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.log.Warn("webhook signature rejected", zap.String("provider", provider))
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, domain.ErrEventIgnored) {
			s.log.Debug("webhook event ignored", zap.String("provider", provider))
		}
		return err
	}

	record := domain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		ObjectID:        event.ObjectID,
		Payload:         datatypes.JSON(event.RawPayload),
		ReceivedAt:      s.clock.Now(),
	}
	inserted, err := s.repo.InsertEvent(ctx, s.db, &record)
	if err != nil {
		return err
	}
	if !inserted {
		s.log.Debug("webhook event replayed",
			zap.String("provider", event.Provider),
			zap.String("provider_event_id", event.ProviderEventID),
		)
		return domain.ErrEventAlreadyProcessed
	}

	s.metrics.RecordProcessorEvent(ctx, event.Provider, event.Type)
	if err := s.dispatch(ctx, event); err != nil {
		// Left unprocessed so the provider's redelivery retries it.
		s.log.Error("webhook dispatch failed",
			zap.String("provider", event.Provider),
			zap.String("provider_event_id", event.ProviderEventID),
			zap.String("event_type", event.Type),
			zap.Error(err),
		)
		return err
	}

	return s.repo.MarkProcessed(ctx, s.db, record.ID, s.clock.Now())
}

func (s *Service) dispatch(ctx context.Context, event *domain.ProcessorEvent) error {
	switch event.Type {
	case domain.EventCheckoutCompleted:
		err := s.funding.Confirm(ctx, fundingdomain.Confirmation{
			Provider:          event.Provider,
			ProviderSessionID: event.ObjectID,
			ProviderPaymentID: event.PaymentRef,
			GrossAmountCents:  event.AmountCents,
			OccurredAt:        event.OccurredAt,
		})
		if errors.Is(err, fundingdomain.ErrAmountMismatch) {
			// Parked for manual review; redelivery cannot resolve it.
			return nil
		}
		if errors.Is(err, fundingdomain.ErrSessionNotFound) {
			s.log.Warn("checkout event for unknown session, acked",
				zap.String("provider_session_id", event.ObjectID),
			)
			return nil
		}
		return err

	case domain.EventTransferSucceeded:
		var err error
		if event.WalletPayoutID != 0 {
			err = s.wallet.SettleSucceeded(ctx, event.WalletPayoutID, event.ObjectID, event.OccurredAt)
		} else {
			err = s.payouts.SettleSucceeded(ctx, event.AssignmentID, event.ObjectID, event.OccurredAt)
		}
		return s.ackUnknownSubject(err, event)

	case domain.EventTransferFailed:
		var err error
		if event.WalletPayoutID != 0 {
			err = s.wallet.SettleFailed(ctx, event.WalletPayoutID, event.ObjectID, event.FailureReason, event.OccurredAt)
		} else {
			err = s.payouts.SettleFailed(ctx, event.AssignmentID, event.ObjectID, event.FailureReason, event.OccurredAt)
		}
		return s.ackUnknownSubject(err, event)

	case domain.EventAccountUpdated:
		flags := accountdomain.CapabilityFlags{}
		if event.AccountFlags != nil {
			flags.ChargesEnabled = event.AccountFlags.ChargesEnabled
			flags.PayoutsEnabled = event.AccountFlags.PayoutsEnabled
			flags.DetailsSubmitted = event.AccountFlags.DetailsSubmitted
		}
		return s.accounts.UpsertFromEvent(ctx, event.ObjectID, flags)

	default:
		// Parsed but unhandled; record and ack.
		s.log.Info("webhook event type unhandled", zap.String("event_type", event.Type))
		return nil
	}
}

// ackUnknownSubject downgrades transfer events whose subject this system
// does not track; redelivery cannot make them resolvable.
func (s *Service) ackUnknownSubject(err error, event *domain.ProcessorEvent) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, winnerdomain.ErrAssignmentNotFound) || errors.Is(err, walletdomain.ErrPayoutNotFound) {
		s.log.Warn("transfer event for unknown subject, acked",
			zap.String("external_transfer_id", event.ObjectID),
			zap.String("event_type", event.Type),
		)
		return nil
	}
	return err
}
