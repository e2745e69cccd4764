package repository

import (
	"context"
	"time"

	"github.com/briefworks/briefworks/internal/winner/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const assignmentColumns = `id, brief_id, tier_id, submission_id, creator_id, assigned_at,
	payout_status, external_transfer_id, idempotency_key, failure_reason, paid_at,
	created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, assignment *domain.WinnerAssignment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO winner_assignments (
			id, brief_id, tier_id, submission_id, creator_id, assigned_at,
			payout_status, external_transfer_id, idempotency_key, failure_reason,
			paid_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		assignment.ID,
		assignment.BriefID,
		assignment.TierID,
		assignment.SubmissionID,
		assignment.CreatorID,
		assignment.AssignedAt,
		assignment.PayoutStatus,
		assignment.ExternalTransferID,
		assignment.IdempotencyKey,
		assignment.FailureReason,
		assignment.PaidAt,
		assignment.CreatedAt,
		assignment.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.WinnerAssignment, error) {
	return r.findOne(ctx, db,
		`SELECT `+assignmentColumns+` FROM winner_assignments WHERE id = ? LIMIT 1`, id)
}

func (r *repo) FindByTier(ctx context.Context, db *gorm.DB, tierID snowflake.ID) (*domain.WinnerAssignment, error) {
	return r.findOne(ctx, db,
		`SELECT `+assignmentColumns+` FROM winner_assignments WHERE tier_id = ? LIMIT 1`, tierID)
}

func (r *repo) FindBySubmission(ctx context.Context, db *gorm.DB, briefID, submissionID snowflake.ID) (*domain.WinnerAssignment, error) {
	return r.findOne(ctx, db,
		`SELECT `+assignmentColumns+` FROM winner_assignments
		 WHERE brief_id = ? AND submission_id = ? LIMIT 1`,
		briefID, submissionID)
}

func (r *repo) FindByExternalTransferID(ctx context.Context, db *gorm.DB, externalTransferID string) (*domain.WinnerAssignment, error) {
	return r.findOne(ctx, db,
		`SELECT `+assignmentColumns+` FROM winner_assignments
		 WHERE external_transfer_id = ? LIMIT 1`,
		externalTransferID)
}

func (r *repo) ListByBrief(ctx context.Context, db *gorm.DB, briefID snowflake.ID) ([]*domain.WinnerAssignment, error) {
	var items []*domain.WinnerAssignment
	err := db.WithContext(ctx).Raw(
		`SELECT `+assignmentColumns+` FROM winner_assignments
		 WHERE brief_id = ? ORDER BY assigned_at ASC`,
		briefID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) DeleteIfUnlocked(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM winner_assignments
		 WHERE id = ? AND payout_status IN ?`,
		id,
		[]domain.PayoutStatus{domain.PayoutPending, domain.PayoutFailed},
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) CASStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from []domain.PayoutStatus, to domain.PayoutStatus, now time.Time) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE winner_assignments
		 SET payout_status = ?, updated_at = ?
		 WHERE id = ? AND payout_status IN ?`,
		to,
		now,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SetExternalTransfer(ctx context.Context, db *gorm.DB, id snowflake.ID, externalTransferID string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE winner_assignments
		 SET external_transfer_id = ?, updated_at = ?
		 WHERE id = ?`,
		externalTransferID,
		now,
		id,
	).Error
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE winner_assignments
		 SET payout_status = ?, paid_at = ?, failure_reason = NULL, updated_at = ?
		 WHERE id = ? AND payout_status <> ?`,
		domain.PayoutPaid,
		paidAt,
		paidAt,
		id,
		domain.PayoutPaid,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE winner_assignments
		 SET payout_status = ?, failure_reason = ?, updated_at = ?
		 WHERE id = ? AND payout_status <> ?`,
		domain.PayoutFailed,
		reason,
		now,
		id,
		domain.PayoutPaid,
	).Error
}

func (r *repo) UnpaidActiveTierCount(ctx context.Context, db *gorm.DB, briefID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM reward_tiers
		 WHERE brief_id = ? AND is_active = ?
		   AND id NOT IN (
			 SELECT tier_id FROM winner_assignments
			 WHERE brief_id = ? AND payout_status = ?
		   )`,
		briefID, true, briefID, domain.PayoutPaid,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) ActiveTierCount(ctx context.Context, db *gorm.DB, briefID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM reward_tiers WHERE brief_id = ? AND is_active = ?`,
		briefID, true,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.WinnerAssignment, error) {
	var item domain.WinnerAssignment
	err := db.WithContext(ctx).Raw(query, args...).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, domain.ErrAssignmentNotFound
	}
	return &item, nil
}
