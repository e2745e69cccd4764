package service

import (
	"context"
	"errors"
	"strings"

	"github.com/briefworks/briefworks/internal/clock"
	"github.com/briefworks/briefworks/internal/paymentaccount/domain"
	"github.com/briefworks/briefworks/internal/processor"
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
	Repo      domain.Repository
	Processor processor.Client
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	repo      domain.Repository
	processor processor.Client
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("paymentaccount.service"),
		clock:     p.Clock,
		repo:      p.Repo,
		processor: p.Processor,
	}
}

func (s *Service) RequestOnboarding(ctx context.Context, creatorID snowflake.ID, country string) (*domain.PaymentAccount, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if len(country) != 2 {
		return nil, domain.ErrInvalidCountry
	}

	existing, err := s.repo.FindByCreator(ctx, s.db, creatorID)
	if err != nil && !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrAccountExists
	}

	account, err := s.processor.CreateAccount(ctx, country, map[string]string{
		"creator_id": creatorID.String(),
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	record := domain.PaymentAccount{
		CreatorID:         creatorID,
		ExternalAccountID: account.ID,
		Country:           country,
		ChargesEnabled:    account.ChargesEnabled,
		PayoutsEnabled:    account.PayoutsEnabled,
		DetailsSubmitted:  account.DetailsSubmitted,
		Status:            domain.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Insert(ctx, s.db, &record); err != nil {
		// The external account exists but the row did not land; the next
		// account.updated webhook re-inserts it from metadata.
		s.log.Error("failed to persist payment account",
			zap.String("creator_id", creatorID.String()),
			zap.String("external_account_id", account.ID),
			zap.Error(err),
		)
		return nil, err
	}

	s.log.Info("payment account created",
		zap.String("creator_id", creatorID.String()),
		zap.String("external_account_id", account.ID),
		zap.String("country", country),
	)
	return &record, nil
}

func (s *Service) CreateOnboardingLink(ctx context.Context, creatorID snowflake.ID, returnURL, refreshURL string) (string, error) {
	account, err := s.repo.FindByCreator(ctx, s.db, creatorID)
	if err != nil {
		return "", err
	}
	return s.processor.CreateAccountLink(ctx, account.ExternalAccountID, returnURL, refreshURL)
}

func (s *Service) RefreshStatus(ctx context.Context, creatorID snowflake.ID) (*domain.PaymentAccount, error) {
	account, err := s.repo.FindByCreator(ctx, s.db, creatorID)
	if err != nil {
		return nil, err
	}

	remote, err := s.processor.GetAccount(ctx, account.ExternalAccountID)
	if err != nil {
		return nil, err
	}

	flags := domain.CapabilityFlags{
		ChargesEnabled:   remote.ChargesEnabled,
		PayoutsEnabled:   remote.PayoutsEnabled,
		DetailsSubmitted: remote.DetailsSubmitted,
	}
	return s.applyFlags(ctx, account, flags)
}

func (s *Service) UpsertFromEvent(ctx context.Context, externalAccountID string, flags domain.CapabilityFlags) error {
	account, err := s.repo.FindByExternalID(ctx, s.db, externalAccountID)
	if err != nil && !errors.Is(err, domain.ErrAccountNotFound) {
		return err
	}
	if account != nil {
		_, err = s.applyFlags(ctx, account, flags)
		return err
	}

	// Account never seen before. The rail carries our creator_id in the
	// account metadata; pull it back so the row can be recovered after a
	// crash between the external create and the local insert.
	remote, err := s.processor.GetAccount(ctx, externalAccountID)
	if err != nil {
		return err
	}
	creatorRaw := strings.TrimSpace(remote.Metadata["creator_id"])
	if creatorRaw == "" {
		s.log.Warn("account event for unknown account without creator metadata, acked",
			zap.String("external_account_id", externalAccountID),
		)
		return nil
	}
	creatorID, err := snowflake.ParseString(creatorRaw)
	if err != nil {
		s.log.Warn("account event carries unparseable creator metadata, acked",
			zap.String("external_account_id", externalAccountID),
			zap.String("creator_id", creatorRaw),
		)
		return nil
	}

	now := s.clock.Now()
	record := domain.PaymentAccount{
		CreatorID:         creatorID,
		ExternalAccountID: externalAccountID,
		Country:           "US",
		ChargesEnabled:    flags.ChargesEnabled,
		PayoutsEnabled:    flags.PayoutsEnabled,
		DetailsSubmitted:  flags.DetailsSubmitted,
		Status:            domain.DeriveStatus(flags.ChargesEnabled, flags.PayoutsEnabled, flags.DetailsSubmitted),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Insert(ctx, s.db, &record); err != nil {
		return err
	}
	s.log.Info("payment account recovered from account event",
		zap.String("creator_id", creatorID.String()),
		zap.String("external_account_id", externalAccountID),
	)
	return nil
}

func (s *Service) Get(ctx context.Context, creatorID snowflake.ID) (*domain.PaymentAccount, error) {
	return s.repo.FindByCreator(ctx, s.db, creatorID)
}

func (s *Service) PayoutsAllowed(ctx context.Context, creatorID snowflake.ID) (*domain.PaymentAccount, error) {
	account, err := s.repo.FindByCreator(ctx, s.db, creatorID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrAccountNotReady
		}
		return nil, err
	}
	if !account.PayoutsEnabled {
		return nil, domain.ErrAccountNotReady
	}
	return account, nil
}

func (s *Service) applyFlags(ctx context.Context, account *domain.PaymentAccount, flags domain.CapabilityFlags) (*domain.PaymentAccount, error) {
	status := domain.DeriveStatus(flags.ChargesEnabled, flags.PayoutsEnabled, flags.DetailsSubmitted)
	now := s.clock.Now()
	if err := s.repo.UpdateFlags(ctx, s.db, account.CreatorID, flags, status, now); err != nil {
		return nil, err
	}
	account.ChargesEnabled = flags.ChargesEnabled
	account.PayoutsEnabled = flags.PayoutsEnabled
	account.DetailsSubmitted = flags.DetailsSubmitted
	account.Status = status
	account.UpdatedAt = now
	return account, nil
}
