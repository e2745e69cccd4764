package service

import (
	"context"
	"sort"

	auditdomain "github.com/briefworks/briefworks/internal/audit/domain"
	briefdomain "github.com/briefworks/briefworks/internal/brief/domain"
	"github.com/briefworks/briefworks/internal/clock"
	"github.com/briefworks/briefworks/internal/rewardtier/domain"
	"github.com/bwmarrin/snowflake"
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
	BriefRepo briefdomain.Repository
	Audit     auditdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	briefRepo briefdomain.Repository
	audit     auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("rewardtier.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		briefRepo: p.BriefRepo,
		audit:     p.Audit,
	}
}

func (s *Service) SetTiers(ctx context.Context, briefID snowflake.ID, tiers []domain.TierInput) ([]*domain.RewardTier, error) {
	brief, err := s.briefRepo.FindByID(ctx, s.db, briefID)
	if err != nil {
		return nil, err
	}
	if !brief.IsFunded {
		return nil, briefdomain.ErrNotFunded
	}

	if err := validateTiers(tiers, brief.NetFundedAmountCents); err != nil {
		return nil, err
	}

	assigned, err := s.repo.CountAssignments(ctx, s.db, briefID)
	if err != nil {
		return nil, err
	}
	if assigned > 0 {
		return nil, domain.ErrTiersLocked
	}

	now := s.clock.Now()
	records := make([]*domain.RewardTier, 0, len(tiers))
	for _, input := range tiers {
		records = append(records, &domain.RewardTier{
			ID:          s.genID.Generate(),
			BriefID:     briefID,
			Position:    input.Position,
			AmountCents: input.AmountCents,
			Description: input.Description,
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Position < records[j].Position })

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.ReplaceAll(ctx, tx, briefID, records)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("reward tiers replaced",
		zap.String("brief_id", briefID.String()),
		zap.Int("tiers", len(records)),
	)
	target := briefID.String()
	_ = s.audit.AuditLog(ctx, "system", nil, "rewardtier.replaced", "brief", &target, map[string]any{
		"tiers": len(records),
	})
	return records, nil
}

func (s *Service) EqualSplit(ctx context.Context, briefID snowflake.ID, winnerCount int) ([]*domain.RewardTier, error) {
	if winnerCount <= 0 || winnerCount > 100 {
		return nil, domain.ErrInvalidWinnerCount
	}

	brief, err := s.briefRepo.FindByID(ctx, s.db, briefID)
	if err != nil {
		return nil, err
	}
	if !brief.IsFunded {
		return nil, briefdomain.ErrNotFunded
	}

	amounts := domain.Split(brief.NetFundedAmountCents, winnerCount)
	if amounts == nil {
		return nil, domain.ErrInvalidWinnerCount
	}
	inputs := make([]domain.TierInput, winnerCount)
	for i, amount := range amounts {
		inputs[i] = domain.TierInput{Position: i + 1, AmountCents: amount}
	}
	return s.SetTiers(ctx, briefID, inputs)
}

func (s *Service) List(ctx context.Context, briefID snowflake.ID) ([]*domain.RewardTier, error) {
	return s.repo.ListByBrief(ctx, s.db, briefID)
}

// validateTiers enforces contiguous 1..N positions, positive amounts, and
// the sum cap against the net funded amount.
func validateTiers(tiers []domain.TierInput, netFundedCents int64) error {
	if len(tiers) == 0 {
		return domain.ErrTierValidationFailed
	}

	seen := make(map[int]bool, len(tiers))
	var sum int64
	for _, tier := range tiers {
		if tier.Position < 1 || tier.Position > len(tiers) || seen[tier.Position] {
			return domain.ErrTierValidationFailed
		}
		if tier.AmountCents <= 0 {
			return domain.ErrTierValidationFailed
		}
		seen[tier.Position] = true
		sum += tier.AmountCents
	}
	if sum > netFundedCents {
		return domain.ErrTierValidationFailed
	}
	return nil
}
