package repository

import (
	"context"
	"time"

	"github.com/briefworks/briefworks/internal/funding/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const sessionColumns = `id, brief_id, provider, provider_session_id, provider_payment_id,
	checkout_url, amount_cents, status, created_at, updated_at, completed_at`

func (r *repo) InsertSession(ctx context.Context, db *gorm.DB, session *domain.FundingSession) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO funding_sessions (
			id, brief_id, provider, provider_session_id, provider_payment_id,
			checkout_url, amount_cents, status, created_at, updated_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.BriefID,
		session.Provider,
		session.ProviderSessionID,
		session.ProviderPaymentID,
		session.CheckoutURL,
		session.AmountCents,
		session.Status,
		session.CreatedAt,
		session.UpdatedAt,
		session.CompletedAt,
	).Error
}

func (r *repo) FindPendingByBrief(ctx context.Context, db *gorm.DB, briefID snowflake.ID) (*domain.FundingSession, error) {
	return r.findOne(ctx, db,
		`SELECT `+sessionColumns+` FROM funding_sessions
		 WHERE brief_id = ? AND status = ? LIMIT 1`,
		briefID, domain.SessionPending,
	)
}

func (r *repo) FindByProviderSession(ctx context.Context, db *gorm.DB, provider, providerSessionID string) (*domain.FundingSession, error) {
	return r.findOne(ctx, db,
		`SELECT `+sessionColumns+` FROM funding_sessions
		 WHERE provider = ? AND provider_session_id = ? LIMIT 1`,
		provider, providerSessionID,
	)
}

func (r *repo) FindLatestByBrief(ctx context.Context, db *gorm.DB, briefID snowflake.ID) (*domain.FundingSession, error) {
	return r.findOne(ctx, db,
		`SELECT `+sessionColumns+` FROM funding_sessions
		 WHERE brief_id = ? ORDER BY created_at DESC LIMIT 1`,
		briefID,
	)
}

func (r *repo) FindCompletedByBrief(ctx context.Context, db *gorm.DB, briefID snowflake.ID) (*domain.FundingSession, error) {
	return r.findOne(ctx, db,
		`SELECT `+sessionColumns+` FROM funding_sessions
		 WHERE brief_id = ? AND status = ? LIMIT 1`,
		briefID, domain.SessionCompleted,
	)
}

func (r *repo) CompleteSession(ctx context.Context, db *gorm.DB, id snowflake.ID, providerPaymentID string, completedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE funding_sessions
		 SET status = ?, provider_payment_id = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.SessionCompleted,
		providerPaymentID,
		completedAt,
		completedAt,
		id,
		domain.SessionPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkMismatched(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE funding_sessions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		domain.SessionMismatched, now, id, domain.SessionPending,
	).Error
}

func (r *repo) MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE funding_sessions SET status = ?, updated_at = ? WHERE id = ?`,
		domain.SessionRefunded, now, id,
	).Error
}

func (r *repo) SumAssignedAmount(ctx context.Context, db *gorm.DB, briefID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(reward_tiers.amount_cents), 0)
		 FROM winner_assignments
		 JOIN reward_tiers ON reward_tiers.id = winner_assignments.tier_id
		 WHERE winner_assignments.brief_id = ?`,
		briefID,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.FundingSession, error) {
	var item domain.FundingSession
	err := db.WithContext(ctx).Raw(query, args...).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrSessionNotFound
	}
	return &item, nil
}
