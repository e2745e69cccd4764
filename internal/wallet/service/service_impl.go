package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	auditdomain "github.com/briefworks/briefworks/internal/audit/domain"
	"github.com/briefworks/briefworks/internal/clock"
	"github.com/briefworks/briefworks/internal/config"
	"github.com/briefworks/briefworks/internal/notification"
	"github.com/briefworks/briefworks/internal/observability/metrics"
	accountdomain "github.com/briefworks/briefworks/internal/paymentaccount/domain"
	"github.com/briefworks/briefworks/internal/processor"
	"github.com/briefworks/briefworks/internal/wallet/domain"
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
	Policy    *config.PayoutPolicyHolder
	Repo      domain.Repository
	Accounts  accountdomain.Service
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
	policy    *config.PayoutPolicyHolder
	repo      domain.Repository
	accounts  accountdomain.Service
	processor processor.Client
	notifier  notification.Sink
	audit     auditdomain.Service
	metrics   *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("wallet.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		policy:    p.Policy,
		repo:      p.Repo,
		accounts:  p.Accounts,
		processor: p.Processor,
		notifier:  p.Notifier,
		audit:     p.Audit,
		metrics:   p.Metrics,
	}
}

func (s *Service) CreditReward(ctx context.Context, creatorID snowflake.ID, amountCents int64, description string) error {
	if amountCents <= 0 {
		return domain.ErrInvalidAmount
	}

	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertEntry(ctx, tx, &domain.CreditEntry{
			ID:          s.genID.Generate(),
			CreatorID:   creatorID,
			AmountCents: amountCents,
			EntryType:   domain.EntryReward,
			Description: description,
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		return s.repo.AddBalance(ctx, tx, creatorID, amountCents, now)
	})
	if err != nil {
		return err
	}

	s.log.Info("credit rewarded",
		zap.String("creator_id", creatorID.String()),
		zap.Int64("amount_cents", amountCents),
	)
	s.notifier.Notify(ctx, creatorID, notification.UserTypeCreator,
		"Credit received",
		fmt.Sprintf("You received %d credit toward your wallet balance.", amountCents),
		notification.CategoryWallet,
	)
	return nil
}

func (s *Service) Redeem(ctx context.Context, creatorID snowflake.ID, amountCents int64) (*domain.WalletPayout, error) {
	if amountCents <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	account, err := s.accounts.PayoutsAllowed(ctx, creatorID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	payoutID := s.genID.Generate()
	payout := domain.WalletPayout{
		ID:             payoutID,
		CreatorID:      creatorID,
		AmountCents:    amountCents,
		Status:         domain.WalletPayoutPending,
		IdempotencyKey: redemptionKey(payoutID),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// Balance decrement, ledger entry, and payout row land in one
	// transaction so a crash can never lose credit silently.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		covered, err := s.repo.DecrementBalance(ctx, tx, creatorID, amountCents, now)
		if err != nil {
			return err
		}
		if !covered {
			return domain.ErrInsufficientCredit
		}
		if err := s.repo.InsertEntry(ctx, tx, &domain.CreditEntry{
			ID:          s.genID.Generate(),
			CreatorID:   creatorID,
			AmountCents: -amountCents,
			EntryType:   domain.EntryRedemption,
			Description: fmt.Sprintf("Redemption %s", payoutID.String()),
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		return s.repo.InsertPayout(ctx, tx, &payout)
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCredit) {
			s.metrics.RecordCreditRedemption(ctx, "insufficient_credit")
		}
		return nil, err
	}

	transfer, err := s.processor.CreateTransfer(ctx, processor.TransferRequest{
		AmountCents:    amountCents,
		Currency:       s.policy.Get().Currency,
		Destination:    account.ExternalAccountID,
		Description:    "Wallet credit redemption",
		IdempotencyKey: payout.IdempotencyKey,
		Metadata: map[string]string{
			"wallet_payout_id": payoutID.String(),
		},
	})
	if err != nil {
		if errors.Is(err, processor.ErrUnknownOutcome) {
			// The transfer may have landed; the decrement stands until a
			// webhook or operator resolves the payout.
			s.metrics.RecordCreditRedemption(ctx, "unknown_outcome")
			return nil, err
		}
		if compErr := s.compensate(ctx, &payout, err.Error()); compErr != nil {
			return nil, compErr
		}
		s.metrics.RecordCreditRedemption(ctx, "failed")
		return nil, err
	}

	if err := s.repo.SetPayoutTransfer(ctx, s.db, payoutID, transfer.ID, domain.WalletPayoutProcessing, s.clock.Now()); err != nil {
		return nil, err
	}
	payout.Status = domain.WalletPayoutProcessing
	payout.ExternalTransferID = &transfer.ID

	s.metrics.RecordCreditRedemption(ctx, "submitted")
	s.log.Info("credit redeemed",
		zap.String("creator_id", creatorID.String()),
		zap.String("wallet_payout_id", payoutID.String()),
		zap.Int64("amount_cents", amountCents),
		zap.String("external_transfer_id", transfer.ID),
	)
	target := payoutID.String()
	_ = s.audit.AuditLog(ctx, "system", nil, "wallet.redeemed", "wallet_payout", &target, map[string]any{
		"creator_id":           creatorID.String(),
		"amount_cents":         amountCents,
		"external_transfer_id": transfer.ID,
	})
	return &payout, nil
}

// compensate reverses a redemption whose transfer was definitively
// declined: the balance is re-credited and the payout marked failed.
func (s *Service) compensate(ctx context.Context, payout *domain.WalletPayout, reason string) error {
	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.AddBalance(ctx, tx, payout.CreatorID, payout.AmountCents, now); err != nil {
			return err
		}
		if err := s.repo.InsertEntry(ctx, tx, &domain.CreditEntry{
			ID:          s.genID.Generate(),
			CreatorID:   payout.CreatorID,
			AmountCents: payout.AmountCents,
			EntryType:   domain.EntryRedemptionReversal,
			Description: fmt.Sprintf("Reversal of redemption %s", payout.ID.String()),
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		return s.repo.MarkPayoutFailed(ctx, tx, payout.ID, reason, now)
	})
	if err != nil {
		return err
	}
	s.log.Warn("redemption reversed",
		zap.String("wallet_payout_id", payout.ID.String()),
		zap.String("reason", reason),
	)
	return nil
}

func (s *Service) Statement(ctx context.Context, creatorID snowflake.ID) (*domain.Statement, error) {
	balance, err := s.repo.GetBalance(ctx, s.db, creatorID)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListEntries(ctx, s.db, creatorID, 100)
	if err != nil {
		return nil, err
	}
	payouts, err := s.repo.ListPayouts(ctx, s.db, creatorID, 100)
	if err != nil {
		return nil, err
	}
	return &domain.Statement{
		CreatorID:    creatorID,
		BalanceCents: balance.BalanceCents,
		Entries:      entries,
		Payouts:      payouts,
	}, nil
}

func (s *Service) SettleSucceeded(ctx context.Context, payoutID snowflake.ID, externalTransferID string, occurredAt time.Time) error {
	payout, err := s.resolve(ctx, payoutID, externalTransferID)
	if err != nil {
		return err
	}
	if payout.Status == domain.WalletPayoutPaid {
		return nil
	}

	paidAt := occurredAt
	if paidAt.IsZero() {
		paidAt = s.clock.Now()
	}
	if err := s.repo.MarkPayoutPaid(ctx, s.db, payout.ID, paidAt); err != nil {
		return err
	}
	if payout.ExternalTransferID == nil && externalTransferID != "" {
		if err := s.repo.SetPayoutTransfer(ctx, s.db, payout.ID, externalTransferID, domain.WalletPayoutPaid, s.clock.Now()); err != nil {
			return err
		}
	}
	s.log.Info("wallet payout settled", zap.String("wallet_payout_id", payout.ID.String()))
	s.notifier.Notify(ctx, payout.CreatorID, notification.UserTypeCreator,
		"Redemption paid",
		"Your wallet redemption has been paid out.",
		notification.CategoryWallet,
	)
	return nil
}

func (s *Service) SettleFailed(ctx context.Context, payoutID snowflake.ID, externalTransferID, reason string, occurredAt time.Time) error {
	payout, err := s.resolve(ctx, payoutID, externalTransferID)
	if err != nil {
		return err
	}
	if payout.Status == domain.WalletPayoutFailed || payout.Status == domain.WalletPayoutPaid {
		return nil
	}
	if reason == "" {
		reason = "transfer_failed"
	}
	// The transfer died after the decrement committed; give the credit
	// back.
	return s.compensate(ctx, payout, reason)
}

func (s *Service) resolve(ctx context.Context, payoutID snowflake.ID, externalTransferID string) (*domain.WalletPayout, error) {
	if payoutID != 0 {
		payout, err := s.repo.FindPayout(ctx, s.db, payoutID)
		if err == nil {
			return payout, nil
		}
		if !errors.Is(err, domain.ErrPayoutNotFound) {
			return nil, err
		}
	}
	if externalTransferID == "" {
		return nil, domain.ErrPayoutNotFound
	}
	return s.repo.FindPayoutByTransfer(ctx, s.db, externalTransferID)
}

// redemptionKey fixes the idempotency key at payout creation so retries
// can never double-transfer a redemption.
func redemptionKey(payoutID snowflake.ID) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("wallet:"+payoutID.String())).String()
}
