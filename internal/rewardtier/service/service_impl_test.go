package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	auditrepo "github.com/briefworks/briefworks/internal/audit/repository"
	auditservice "github.com/briefworks/briefworks/internal/audit/service"
	briefdomain "github.com/briefworks/briefworks/internal/brief/domain"
	briefrepo "github.com/briefworks/briefworks/internal/brief/repository"
	"github.com/briefworks/briefworks/internal/clock"
	"github.com/briefworks/briefworks/internal/rewardtier/domain"
	tierrepo "github.com/briefworks/briefworks/internal/rewardtier/repository"
	tierservice "github.com/briefworks/briefworks/internal/rewardtier/service"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE briefs (
			id INTEGER PRIMARY KEY,
			brand_id INTEGER NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			currency TEXT NOT NULL DEFAULT 'usd',
			reward_total_cents INTEGER NOT NULL DEFAULT 0,
			funded_amount_cents INTEGER NOT NULL DEFAULT 0,
			platform_fee_cents INTEGER NOT NULL DEFAULT 0,
			net_funded_amount_cents INTEGER NOT NULL DEFAULT 0,
			is_funded BOOLEAN NOT NULL DEFAULT FALSE,
			funded_at DATETIME,
			status TEXT NOT NULL DEFAULT 'draft',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE reward_tiers (
			id INTEGER PRIMARY KEY,
			brief_id INTEGER NOT NULL,
			position INTEGER NOT NULL,
			amount_cents INTEGER NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_reward_tiers_brief_position ON reward_tiers (brief_id, position)`,
		`CREATE TABLE winner_assignments (
			id INTEGER PRIMARY KEY,
			brief_id INTEGER NOT NULL,
			tier_id INTEGER NOT NULL,
			submission_id INTEGER NOT NULL,
			creator_id INTEGER NOT NULL,
			assigned_at DATETIME NOT NULL,
			payout_status TEXT NOT NULL DEFAULT 'pending',
			external_transfer_id TEXT,
			idempotency_key TEXT NOT NULL,
			failure_reason TEXT,
			paid_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE audit_logs (
			id INTEGER PRIMARY KEY,
			actor_type TEXT NOT NULL,
			actor_id TEXT,
			action TEXT NOT NULL,
			target_type TEXT NOT NULL,
			target_id TEXT,
			metadata TEXT,
			created_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newTierService(t *testing.T, db *gorm.DB, node *snowflake.Node) domain.Service {
	t.Helper()

	fixed := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fixed,
		Repo:  auditrepo.Provide(),
	})
	return tierservice.NewService(tierservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     fixed,
		Repo:      tierrepo.Provide(),
		BriefRepo: briefrepo.Provide(),
		Audit:     auditSvc,
	})
}

func seedFundedBrief(t *testing.T, db *gorm.DB, id snowflake.ID, netCents int64) {
	t.Helper()

	now := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	fundedAt := now
	brief := briefdomain.Brief{
		ID:                   id,
		BrandID:              id + 1,
		Title:                "Spring campaign",
		Currency:             "usd",
		FundedAmountCents:    netCents + 5_000,
		PlatformFeeCents:     5_000,
		NetFundedAmountCents: netCents,
		IsFunded:             true,
		FundedAt:             &fundedAt,
		Status:               briefdomain.StatusActive,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := db.Create(&brief).Error; err != nil {
		t.Fatalf("seed brief: %v", err)
	}
}

func TestSetTiersReplacesExisting(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(20)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	svc := newTierService(t, db, node)

	briefID := node.Generate()
	seedFundedBrief(t, db, briefID, 100_000)

	first := []domain.TierInput{
		{Position: 1, AmountCents: 60_000},
		{Position: 2, AmountCents: 40_000},
	}
	if _, err := svc.SetTiers(ctx, briefID, first); err != nil {
		t.Fatalf("set tiers: %v", err)
	}

	second := []domain.TierInput{
		{Position: 1, AmountCents: 50_000, Description: "First place"},
		{Position: 2, AmountCents: 30_000},
		{Position: 3, AmountCents: 20_000},
	}
	tiers, err := svc.SetTiers(ctx, briefID, second)
	if err != nil {
		t.Fatalf("replace tiers: %v", err)
	}
	if len(tiers) != 3 {
		t.Fatalf("expected 3 tiers, got %d", len(tiers))
	}

	var count int64
	if err := db.Raw("SELECT COUNT(1) FROM reward_tiers WHERE brief_id = ?", briefID).Scan(&count).Error; err != nil {
		t.Fatalf("count tiers: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 rows after replace, got %d", count)
	}
}

func TestSetTiersRejectsNonContiguousPositions(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, _ := snowflake.NewNode(21)
	svc := newTierService(t, db, node)

	briefID := node.Generate()
	seedFundedBrief(t, db, briefID, 100_000)

	cases := [][]domain.TierInput{
		{},
		{{Position: 1, AmountCents: 100}, {Position: 3, AmountCents: 100}},
		{{Position: 1, AmountCents: 100}, {Position: 1, AmountCents: 100}},
		{{Position: 0, AmountCents: 100}},
		{{Position: 1, AmountCents: 0}},
		{{Position: 1, AmountCents: -500}},
	}
	for i, tiers := range cases {
		if _, err := svc.SetTiers(ctx, briefID, tiers); err != domain.ErrTierValidationFailed {
			t.Fatalf("case %d: expected ErrTierValidationFailed, got %v", i, err)
		}
	}
}

func TestSetTiersRejectsSumAboveNetFunding(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, _ := snowflake.NewNode(22)
	svc := newTierService(t, db, node)

	briefID := node.Generate()
	seedFundedBrief(t, db, briefID, 100_000)

	tiers := []domain.TierInput{
		{Position: 1, AmountCents: 70_000},
		{Position: 2, AmountCents: 40_000},
	}
	if _, err := svc.SetTiers(ctx, briefID, tiers); err != domain.ErrTierValidationFailed {
		t.Fatalf("expected ErrTierValidationFailed, got %v", err)
	}
}

func TestSetTiersRequiresFundedBrief(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, _ := snowflake.NewNode(23)
	svc := newTierService(t, db, node)

	briefID := node.Generate()
	now := time.Now().UTC()
	brief := briefdomain.Brief{
		ID:        briefID,
		BrandID:   briefID + 1,
		Status:    briefdomain.StatusPublished,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Create(&brief).Error; err != nil {
		t.Fatalf("seed brief: %v", err)
	}

	tiers := []domain.TierInput{{Position: 1, AmountCents: 100}}
	if _, err := svc.SetTiers(ctx, briefID, tiers); err != briefdomain.ErrNotFunded {
		t.Fatalf("expected ErrNotFunded, got %v", err)
	}
}

func TestSetTiersLockedAfterAssignment(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, _ := snowflake.NewNode(24)
	svc := newTierService(t, db, node)

	briefID := node.Generate()
	seedFundedBrief(t, db, briefID, 100_000)

	tiers, err := svc.SetTiers(ctx, briefID, []domain.TierInput{{Position: 1, AmountCents: 100_000}})
	if err != nil {
		t.Fatalf("set tiers: %v", err)
	}

	now := time.Now().UTC()
	err = db.Exec(`INSERT INTO winner_assignments
		(id, brief_id, tier_id, submission_id, creator_id, assigned_at, payout_status, idempotency_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', 'key', ?, ?)`,
		node.Generate(), briefID, tiers[0].ID, node.Generate(), node.Generate(), now, now, now,
	).Error
	if err != nil {
		t.Fatalf("seed assignment: %v", err)
	}

	_, err = svc.SetTiers(ctx, briefID, []domain.TierInput{{Position: 1, AmountCents: 90_000}})
	if err != domain.ErrTiersLocked {
		t.Fatalf("expected ErrTiersLocked, got %v", err)
	}
}

func TestEqualSplitDistributesRemainder(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, _ := snowflake.NewNode(25)
	svc := newTierService(t, db, node)

	briefID := node.Generate()
	seedFundedBrief(t, db, briefID, 95_000)

	tiers, err := svc.EqualSplit(ctx, briefID, 3)
	if err != nil {
		t.Fatalf("equal split: %v", err)
	}
	if len(tiers) != 3 {
		t.Fatalf("expected 3 tiers, got %d", len(tiers))
	}

	want := []int64{31_667, 31_667, 31_666}
	var sum int64
	for i, tier := range tiers {
		if tier.Position != i+1 {
			t.Fatalf("tier %d: expected position %d, got %d", i, i+1, tier.Position)
		}
		if tier.AmountCents != want[i] {
			t.Fatalf("tier %d: expected %d cents, got %d", i, want[i], tier.AmountCents)
		}
		sum += tier.AmountCents
	}
	if sum != 95_000 {
		t.Fatalf("expected amounts to sum to 95000, got %d", sum)
	}
}

func TestEqualSplitRejectsInvalidWinnerCount(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, _ := snowflake.NewNode(26)
	svc := newTierService(t, db, node)

	briefID := node.Generate()
	seedFundedBrief(t, db, briefID, 95_000)

	for _, count := range []int{0, -1, 101} {
		if _, err := svc.EqualSplit(ctx, briefID, count); err != domain.ErrInvalidWinnerCount {
			t.Fatalf("count %d: expected ErrInvalidWinnerCount, got %v", count, err)
		}
	}
}

func TestSplit(t *testing.T) {
	cases := []struct {
		net  int64
		n    int
		want []int64
	}{
		{95_000, 3, []int64{31_667, 31_667, 31_666}},
		{100, 3, []int64{34, 33, 33}},
		{100, 1, []int64{100}},
		{5, 5, []int64{1, 1, 1, 1, 1}},
		{0, 3, nil},
		{100, 0, nil},
	}
	for _, tc := range cases {
		got := domain.Split(tc.net, tc.n)
		if len(got) != len(tc.want) {
			t.Fatalf("Split(%d, %d): expected %v, got %v", tc.net, tc.n, tc.want, got)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("Split(%d, %d): expected %v, got %v", tc.net, tc.n, tc.want, got)
			}
		}
	}
}
