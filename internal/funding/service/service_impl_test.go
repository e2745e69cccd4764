package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
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
	"github.com/briefworks/briefworks/internal/config"
	"github.com/briefworks/briefworks/internal/funding/domain"
	fundingrepo "github.com/briefworks/briefworks/internal/funding/repository"
	fundingservice "github.com/briefworks/briefworks/internal/funding/service"
	"github.com/briefworks/briefworks/internal/notification"
	"github.com/briefworks/briefworks/internal/processor"
)

type fakeProcessor struct {
	mu       sync.Mutex
	sessions int
	refunds  []processor.RefundRequest
}

func (f *fakeProcessor) CreateAccount(ctx context.Context, country string, metadata map[string]string) (processor.Account, error) {
	return processor.Account{ID: "acct_fake"}, nil
}

func (f *fakeProcessor) CreateAccountLink(ctx context.Context, accountID, returnURL, refreshURL string) (string, error) {
	return "https://rail.example/onboard", nil
}

func (f *fakeProcessor) GetAccount(ctx context.Context, accountID string) (processor.Account, error) {
	return processor.Account{ID: accountID}, nil
}

func (f *fakeProcessor) CreateCheckoutSession(ctx context.Context, req processor.CheckoutSessionRequest) (processor.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions++
	return processor.CheckoutSession{
		ID:  fmt.Sprintf("cs_%d", f.sessions),
		URL: fmt.Sprintf("https://rail.example/checkout/%d", f.sessions),
	}, nil
}

func (f *fakeProcessor) CreateTransfer(ctx context.Context, req processor.TransferRequest) (processor.Transfer, error) {
	return processor.Transfer{ID: "tr_fake"}, nil
}

func (f *fakeProcessor) CreateRefund(ctx context.Context, req processor.RefundRequest) (processor.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds = append(f.refunds, req)
	return processor.Refund{ID: fmt.Sprintf("re_%d", len(f.refunds))}, nil
}

func (f *fakeProcessor) AvailableBalance(ctx context.Context, currency string) (int64, error) {
	return 0, nil
}

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
		`CREATE TABLE funding_sessions (
			id INTEGER PRIMARY KEY,
			brief_id INTEGER NOT NULL,
			provider TEXT NOT NULL,
			provider_session_id TEXT NOT NULL,
			provider_payment_id TEXT,
			checkout_url TEXT NOT NULL,
			amount_cents INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			completed_at DATETIME
		)`,
		`CREATE UNIQUE INDEX ux_funding_sessions_provider_session
			ON funding_sessions (provider, provider_session_id)`,
		`CREATE UNIQUE INDEX ux_funding_sessions_brief_active
			ON funding_sessions (brief_id) WHERE status = 'pending'`,
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

type fixture struct {
	db        *gorm.DB
	node      *snowflake.Node
	clock     *clock.FakeClock
	processor *fakeProcessor
	svc       domain.Service
	briefID   snowflake.ID
}

func newFixture(t *testing.T, nodeID int64) *fixture {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fixed := clock.NewFakeClock(time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC))
	proc := &fakeProcessor{}

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fixed,
		Repo:  auditrepo.Provide(),
	})
	svc := fundingservice.NewService(fundingservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     fixed,
		Config:    config.Config{CheckoutSuccessURL: "https://app.example/funded", CheckoutCancelURL: "https://app.example/cancelled"},
		Policy:    config.NewStaticPayoutPolicyHolder(config.DefaultPayoutPolicy()),
		Repo:      fundingrepo.Provide(),
		BriefRepo: briefrepo.Provide(),
		Processor: proc,
		Notifier:  notification.NewLogSink(zap.NewNop()),
		Audit:     auditSvc,
	})

	briefID := node.Generate()
	now := fixed.Now()
	brief := briefdomain.Brief{
		ID:        briefID,
		BrandID:   node.Generate(),
		Title:     "Summer launch",
		Currency:  "usd",
		Status:    briefdomain.StatusPublished,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Create(&brief).Error; err != nil {
		t.Fatalf("seed brief: %v", err)
	}

	return &fixture{db: db, node: node, clock: fixed, processor: proc, svc: svc, briefID: briefID}
}

func TestStartFundingOpensSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 60)

	session, err := f.svc.StartFunding(ctx, f.briefID, 100_000)
	if err != nil {
		t.Fatalf("start funding: %v", err)
	}
	if session.CheckoutURL == "" {
		t.Fatalf("expected checkout url")
	}
	if session.Status != domain.SessionPending {
		t.Fatalf("expected pending session, got %s", session.Status)
	}
}

func TestStartFundingRejectsSecondActiveSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 61)

	if _, err := f.svc.StartFunding(ctx, f.briefID, 100_000); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := f.svc.StartFunding(ctx, f.briefID, 100_000); err != domain.ErrFundingInProgress {
		t.Fatalf("expected ErrFundingInProgress, got %v", err)
	}
}

func TestStartFundingRejectsInvalidAmount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 62)

	for _, amount := range []int64{0, -100} {
		if _, err := f.svc.StartFunding(ctx, f.briefID, amount); err != domain.ErrInvalidAmount {
			t.Fatalf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestConfirmAppliesFeeSplitAndActivatesBrief(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 63)

	session, err := f.svc.StartFunding(ctx, f.briefID, 100_000)
	if err != nil {
		t.Fatalf("start funding: %v", err)
	}

	confirmation := domain.Confirmation{
		Provider:          processor.ProviderStripe,
		ProviderSessionID: session.ProviderSessionID,
		ProviderPaymentID: "pi_1",
		GrossAmountCents:  100_000,
		OccurredAt:        f.clock.Now(),
	}
	if err := f.svc.Confirm(ctx, confirmation); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	var brief briefdomain.Brief
	if err := f.db.First(&brief, "id = ?", f.briefID).Error; err != nil {
		t.Fatalf("reload brief: %v", err)
	}
	if !brief.IsFunded {
		t.Fatalf("expected brief funded")
	}
	// 5% of 100000 with the 50 cent floor.
	if brief.PlatformFeeCents != 5_000 {
		t.Fatalf("expected 5000 fee cents, got %d", brief.PlatformFeeCents)
	}
	if brief.NetFundedAmountCents != 95_000 {
		t.Fatalf("expected 95000 net cents, got %d", brief.NetFundedAmountCents)
	}
	if brief.Status != briefdomain.StatusActive {
		t.Fatalf("expected active status, got %s", brief.Status)
	}

	// Replay is a no-op, not a double-fund.
	if err := f.svc.Confirm(ctx, confirmation); err != nil {
		t.Fatalf("confirm replay: %v", err)
	}
	if err := f.db.First(&brief, "id = ?", f.briefID).Error; err != nil {
		t.Fatalf("reload brief: %v", err)
	}
	if brief.FundedAmountCents != 100_000 {
		t.Fatalf("replay changed funded amount to %d", brief.FundedAmountCents)
	}
}

func TestConfirmAmountMismatchParksSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 64)

	session, err := f.svc.StartFunding(ctx, f.briefID, 100_000)
	if err != nil {
		t.Fatalf("start funding: %v", err)
	}

	err = f.svc.Confirm(ctx, domain.Confirmation{
		Provider:          processor.ProviderStripe,
		ProviderSessionID: session.ProviderSessionID,
		ProviderPaymentID: "pi_1",
		GrossAmountCents:  90_000,
		OccurredAt:        f.clock.Now(),
	})
	if !errors.Is(err, domain.ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}

	var sessionStatus string
	if err := f.db.Raw("SELECT status FROM funding_sessions WHERE id = ?", session.ID).Scan(&sessionStatus).Error; err != nil {
		t.Fatalf("scan session status: %v", err)
	}
	if sessionStatus != string(domain.SessionMismatched) {
		t.Fatalf("expected mismatched session, got %s", sessionStatus)
	}

	var funded bool
	if err := f.db.Raw("SELECT is_funded FROM briefs WHERE id = ?", f.briefID).Scan(&funded).Error; err != nil {
		t.Fatalf("scan is_funded: %v", err)
	}
	if funded {
		t.Fatalf("mismatched confirmation must not fund the brief")
	}
}

func TestConfirmUnknownSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 65)

	err := f.svc.Confirm(ctx, domain.Confirmation{
		Provider:          processor.ProviderStripe,
		ProviderSessionID: "cs_missing",
		GrossAmountCents:  100_000,
	})
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestEstimateUsesFeePolicy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 66)

	estimate, err := f.svc.Estimate(ctx, 100_000)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if estimate.FeeCents != 5_000 || estimate.NetAmountCents != 95_000 {
		t.Fatalf("unexpected estimate %+v", estimate)
	}

	// The floor binds for tiny amounts.
	small, err := f.svc.Estimate(ctx, 400)
	if err != nil {
		t.Fatalf("estimate small: %v", err)
	}
	if small.FeeCents != 50 {
		t.Fatalf("expected floor fee of 50, got %d", small.FeeCents)
	}

	if _, err := f.svc.Estimate(ctx, 0); err != domain.ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestCloseAndRefundReturnsUnassignedEscrow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 67)

	session, err := f.svc.StartFunding(ctx, f.briefID, 100_000)
	if err != nil {
		t.Fatalf("start funding: %v", err)
	}
	if err := f.svc.Confirm(ctx, domain.Confirmation{
		Provider:          processor.ProviderStripe,
		ProviderSessionID: session.ProviderSessionID,
		ProviderPaymentID: "pi_1",
		GrossAmountCents:  100_000,
		OccurredAt:        f.clock.Now(),
	}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	// One winner claims 60000 of the 95000 net.
	now := f.clock.Now()
	tierID := f.node.Generate()
	if err := f.db.Exec(`INSERT INTO reward_tiers
		(id, brief_id, position, amount_cents, is_active, created_at, updated_at)
		VALUES (?, ?, 1, 60000, TRUE, ?, ?)`, tierID, f.briefID, now, now).Error; err != nil {
		t.Fatalf("seed tier: %v", err)
	}
	if err := f.db.Exec(`INSERT INTO winner_assignments
		(id, brief_id, tier_id, submission_id, creator_id, assigned_at, payout_status, idempotency_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', 'key', ?, ?)`,
		f.node.Generate(), f.briefID, tierID, f.node.Generate(), f.node.Generate(), now, now, now,
	).Error; err != nil {
		t.Fatalf("seed assignment: %v", err)
	}

	refunded, err := f.svc.CloseAndRefund(ctx, f.briefID)
	if err != nil {
		t.Fatalf("close and refund: %v", err)
	}
	if refunded != 35_000 {
		t.Fatalf("expected 35000 refunded, got %d", refunded)
	}
	if len(f.processor.refunds) != 1 {
		t.Fatalf("expected 1 refund call, got %d", len(f.processor.refunds))
	}
	if f.processor.refunds[0].PaymentRef != "pi_1" {
		t.Fatalf("refund targeted %q, expected pi_1", f.processor.refunds[0].PaymentRef)
	}

	var status string
	if err := f.db.Raw("SELECT status FROM briefs WHERE id = ?", f.briefID).Scan(&status).Error; err != nil {
		t.Fatalf("scan status: %v", err)
	}
	if status != string(briefdomain.StatusClosed) {
		t.Fatalf("expected closed brief, got %s", status)
	}
}

func TestCloseAndRefundNothingLeft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 68)

	session, err := f.svc.StartFunding(ctx, f.briefID, 100_000)
	if err != nil {
		t.Fatalf("start funding: %v", err)
	}
	if err := f.svc.Confirm(ctx, domain.Confirmation{
		Provider:          processor.ProviderStripe,
		ProviderSessionID: session.ProviderSessionID,
		ProviderPaymentID: "pi_1",
		GrossAmountCents:  100_000,
		OccurredAt:        f.clock.Now(),
	}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	now := f.clock.Now()
	tierID := f.node.Generate()
	if err := f.db.Exec(`INSERT INTO reward_tiers
		(id, brief_id, position, amount_cents, is_active, created_at, updated_at)
		VALUES (?, ?, 1, 95000, TRUE, ?, ?)`, tierID, f.briefID, now, now).Error; err != nil {
		t.Fatalf("seed tier: %v", err)
	}
	if err := f.db.Exec(`INSERT INTO winner_assignments
		(id, brief_id, tier_id, submission_id, creator_id, assigned_at, payout_status, idempotency_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'paid', 'key', ?, ?)`,
		f.node.Generate(), f.briefID, tierID, f.node.Generate(), f.node.Generate(), now, now, now,
	).Error; err != nil {
		t.Fatalf("seed assignment: %v", err)
	}

	if _, err := f.svc.CloseAndRefund(ctx, f.briefID); err != domain.ErrNothingToRefund {
		t.Fatalf("expected ErrNothingToRefund, got %v", err)
	}
}

func TestGetFundingIncludesLatestSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 69)

	view, err := f.svc.GetFunding(ctx, f.briefID)
	if err != nil {
		t.Fatalf("get funding: %v", err)
	}
	if view.Session != nil {
		t.Fatalf("expected no session before funding starts")
	}

	session, err := f.svc.StartFunding(ctx, f.briefID, 100_000)
	if err != nil {
		t.Fatalf("start funding: %v", err)
	}
	view, err = f.svc.GetFunding(ctx, f.briefID)
	if err != nil {
		t.Fatalf("get funding: %v", err)
	}
	if view.Session == nil || view.Session.ID != session.ID {
		t.Fatalf("expected latest session in view")
	}
}
