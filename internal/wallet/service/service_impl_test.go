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
	"github.com/briefworks/briefworks/internal/clock"
	"github.com/briefworks/briefworks/internal/config"
	"github.com/briefworks/briefworks/internal/notification"
	accountdomain "github.com/briefworks/briefworks/internal/paymentaccount/domain"
	accountrepo "github.com/briefworks/briefworks/internal/paymentaccount/repository"
	accountservice "github.com/briefworks/briefworks/internal/paymentaccount/service"
	"github.com/briefworks/briefworks/internal/processor"
	"github.com/briefworks/briefworks/internal/wallet/domain"
	walletrepo "github.com/briefworks/briefworks/internal/wallet/repository"
	walletservice "github.com/briefworks/briefworks/internal/wallet/service"
)

type fakeProcessor struct {
	mu          sync.Mutex
	transferErr error
	transfers   []processor.TransferRequest
}

func (f *fakeProcessor) CreateAccount(ctx context.Context, country string, metadata map[string]string) (processor.Account, error) {
	return processor.Account{ID: "acct_fake"}, nil
}

func (f *fakeProcessor) CreateAccountLink(ctx context.Context, accountID, returnURL, refreshURL string) (string, error) {
	return "https://rail.example/onboard", nil
}

func (f *fakeProcessor) GetAccount(ctx context.Context, accountID string) (processor.Account, error) {
	return processor.Account{ID: accountID, PayoutsEnabled: true}, nil
}

func (f *fakeProcessor) CreateCheckoutSession(ctx context.Context, req processor.CheckoutSessionRequest) (processor.CheckoutSession, error) {
	return processor.CheckoutSession{ID: "cs_fake", URL: "https://rail.example/checkout"}, nil
}

func (f *fakeProcessor) CreateTransfer(ctx context.Context, req processor.TransferRequest) (processor.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transferErr != nil {
		return processor.Transfer{}, f.transferErr
	}
	f.transfers = append(f.transfers, req)
	return processor.Transfer{ID: fmt.Sprintf("tr_%d", len(f.transfers))}, nil
}

func (f *fakeProcessor) CreateRefund(ctx context.Context, req processor.RefundRequest) (processor.Refund, error) {
	return processor.Refund{ID: "re_fake"}, nil
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
		`CREATE TABLE credit_entries (
			id INTEGER PRIMARY KEY,
			creator_id INTEGER NOT NULL,
			amount_cents INTEGER NOT NULL,
			entry_type TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE credit_balances (
			creator_id INTEGER PRIMARY KEY,
			balance_cents INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE wallet_payouts (
			id INTEGER PRIMARY KEY,
			creator_id INTEGER NOT NULL,
			amount_cents INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			external_transfer_id TEXT,
			idempotency_key TEXT NOT NULL,
			failure_reason TEXT,
			paid_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE payment_accounts (
			creator_id INTEGER PRIMARY KEY,
			external_account_id TEXT NOT NULL,
			country TEXT NOT NULL DEFAULT 'US',
			charges_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			payouts_enabled BOOLEAN NOT NULL DEFAULT FALSE,
			details_submitted BOOLEAN NOT NULL DEFAULT FALSE,
			status TEXT NOT NULL DEFAULT 'pending',
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
	creatorID snowflake.ID
}

func newFixture(t *testing.T, nodeID int64, ready bool) *fixture {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	fixed := clock.NewFakeClock(time.Date(2026, 5, 2, 15, 0, 0, 0, time.UTC))
	proc := &fakeProcessor{}

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fixed,
		Repo:  auditrepo.Provide(),
	})
	accountSvc := accountservice.NewService(accountservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		Clock:     fixed,
		Repo:      accountrepo.Provide(),
		Processor: proc,
	})
	svc := walletservice.NewService(walletservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     fixed,
		Policy:    config.NewStaticPayoutPolicyHolder(config.DefaultPayoutPolicy()),
		Repo:      walletrepo.Provide(),
		Accounts:  accountSvc,
		Processor: proc,
		Notifier:  notification.NewLogSink(zap.NewNop()),
		Audit:     auditSvc,
	})

	creatorID := node.Generate()
	if ready {
		now := fixed.Now()
		account := accountdomain.PaymentAccount{
			CreatorID:         creatorID,
			ExternalAccountID: "acct_creator",
			Country:           "US",
			ChargesEnabled:    true,
			PayoutsEnabled:    true,
			DetailsSubmitted:  true,
			Status:            accountdomain.StatusActive,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := db.Create(&account).Error; err != nil {
			t.Fatalf("seed account: %v", err)
		}
	}

	return &fixture{db: db, node: node, clock: fixed, processor: proc, svc: svc, creatorID: creatorID}
}

func (f *fixture) balance(t *testing.T) int64 {
	t.Helper()
	var balance int64
	if err := f.db.Raw("SELECT balance_cents FROM credit_balances WHERE creator_id = ?", f.creatorID).Scan(&balance).Error; err != nil {
		t.Fatalf("scan balance: %v", err)
	}
	return balance
}

func TestCreditRewardAccumulatesBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 70, true)

	if err := f.svc.CreditReward(ctx, f.creatorID, 10_000, "Runner-up bonus"); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := f.svc.CreditReward(ctx, f.creatorID, 5_000, "Community pick"); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if got := f.balance(t); got != 15_000 {
		t.Fatalf("expected 15000 balance, got %d", got)
	}

	statement, err := f.svc.Statement(ctx, f.creatorID)
	if err != nil {
		t.Fatalf("statement: %v", err)
	}
	if statement.BalanceCents != 15_000 {
		t.Fatalf("expected 15000 in statement, got %d", statement.BalanceCents)
	}
	if len(statement.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(statement.Entries))
	}
}

func TestCreditRewardRejectsNonPositiveAmount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 71, true)

	for _, amount := range []int64{0, -50} {
		if err := f.svc.CreditReward(ctx, f.creatorID, amount, ""); err != domain.ErrInvalidAmount {
			t.Fatalf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestRedeemSubmitsTransferAndDecrements(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 72, true)

	if err := f.svc.CreditReward(ctx, f.creatorID, 20_000, "reward"); err != nil {
		t.Fatalf("credit: %v", err)
	}

	payout, err := f.svc.Redeem(ctx, f.creatorID, 12_000)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if payout.Status != domain.WalletPayoutProcessing {
		t.Fatalf("expected processing payout, got %s", payout.Status)
	}
	if got := f.balance(t); got != 8_000 {
		t.Fatalf("expected 8000 balance after redeem, got %d", got)
	}
	if len(f.processor.transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(f.processor.transfers))
	}
	if f.processor.transfers[0].Metadata["wallet_payout_id"] != payout.ID.String() {
		t.Fatalf("transfer metadata missing wallet_payout_id")
	}
}

func TestRedeemRejectsInsufficientCredit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 73, true)

	if err := f.svc.CreditReward(ctx, f.creatorID, 5_000, "reward"); err != nil {
		t.Fatalf("credit: %v", err)
	}

	if _, err := f.svc.Redeem(ctx, f.creatorID, 12_000); err != domain.ErrInsufficientCredit {
		t.Fatalf("expected ErrInsufficientCredit, got %v", err)
	}
	if got := f.balance(t); got != 5_000 {
		t.Fatalf("rejected redeem must not touch balance, got %d", got)
	}
	if len(f.processor.transfers) != 0 {
		t.Fatalf("expected no transfers, got %d", len(f.processor.transfers))
	}
}

func TestRedeemRequiresReadyAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 74, false)

	if err := f.svc.CreditReward(ctx, f.creatorID, 20_000, "reward"); err != nil {
		t.Fatalf("credit: %v", err)
	}

	if _, err := f.svc.Redeem(ctx, f.creatorID, 12_000); !errors.Is(err, accountdomain.ErrAccountNotReady) {
		t.Fatalf("expected ErrAccountNotReady, got %v", err)
	}
	if got := f.balance(t); got != 20_000 {
		t.Fatalf("gated redeem must not touch balance, got %d", got)
	}
}

func TestRedeemDeclineRestoresBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 75, true)

	if err := f.svc.CreditReward(ctx, f.creatorID, 20_000, "reward"); err != nil {
		t.Fatalf("credit: %v", err)
	}

	f.processor.transferErr = errors.New("destination_unusable")
	if _, err := f.svc.Redeem(ctx, f.creatorID, 12_000); err == nil {
		t.Fatalf("expected decline error")
	}

	if got := f.balance(t); got != 20_000 {
		t.Fatalf("expected balance restored to 20000, got %d", got)
	}

	var status, reason string
	row := f.db.Raw("SELECT status, failure_reason FROM wallet_payouts LIMIT 1").Row()
	if err := row.Scan(&status, &reason); err != nil {
		t.Fatalf("scan payout: %v", err)
	}
	if status != string(domain.WalletPayoutFailed) {
		t.Fatalf("expected failed payout, got %s", status)
	}
	if reason != "destination_unusable" {
		t.Fatalf("expected decline reason, got %q", reason)
	}

	// Ledger shows the redemption and its reversal.
	var count int64
	if err := f.db.Raw("SELECT COUNT(1) FROM credit_entries WHERE entry_type = ?", domain.EntryRedemptionReversal).Scan(&count).Error; err != nil {
		t.Fatalf("count reversals: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 reversal entry, got %d", count)
	}
}

func TestRedeemUnknownOutcomeKeepsDecrement(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 76, true)

	if err := f.svc.CreditReward(ctx, f.creatorID, 20_000, "reward"); err != nil {
		t.Fatalf("credit: %v", err)
	}

	f.processor.transferErr = processor.ErrUnknownOutcome
	if _, err := f.svc.Redeem(ctx, f.creatorID, 12_000); !errors.Is(err, processor.ErrUnknownOutcome) {
		t.Fatalf("expected ErrUnknownOutcome, got %v", err)
	}

	// The decrement stands until the outcome is resolved.
	if got := f.balance(t); got != 8_000 {
		t.Fatalf("expected balance to stay decremented at 8000, got %d", got)
	}
	var status string
	if err := f.db.Raw("SELECT status FROM wallet_payouts LIMIT 1").Scan(&status).Error; err != nil {
		t.Fatalf("scan payout: %v", err)
	}
	if status != string(domain.WalletPayoutPending) {
		t.Fatalf("expected pending payout, got %s", status)
	}
}

func TestSettleSucceededMarksPaid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 77, true)

	if err := f.svc.CreditReward(ctx, f.creatorID, 20_000, "reward"); err != nil {
		t.Fatalf("credit: %v", err)
	}
	payout, err := f.svc.Redeem(ctx, f.creatorID, 12_000)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}

	occurred := f.clock.Now().Add(time.Minute)
	if err := f.svc.SettleSucceeded(ctx, payout.ID, *payout.ExternalTransferID, occurred); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if err := f.svc.SettleSucceeded(ctx, payout.ID, *payout.ExternalTransferID, occurred); err != nil {
		t.Fatalf("settle replay: %v", err)
	}

	var status string
	if err := f.db.Raw("SELECT status FROM wallet_payouts WHERE id = ?", payout.ID).Scan(&status).Error; err != nil {
		t.Fatalf("scan payout: %v", err)
	}
	if status != string(domain.WalletPayoutPaid) {
		t.Fatalf("expected paid, got %s", status)
	}
	if got := f.balance(t); got != 8_000 {
		t.Fatalf("settlement must not re-credit, got %d", got)
	}
}

func TestSettleFailedCompensates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 78, true)

	if err := f.svc.CreditReward(ctx, f.creatorID, 20_000, "reward"); err != nil {
		t.Fatalf("credit: %v", err)
	}
	payout, err := f.svc.Redeem(ctx, f.creatorID, 12_000)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}

	if err := f.svc.SettleFailed(ctx, payout.ID, *payout.ExternalTransferID, "account_closed", f.clock.Now()); err != nil {
		t.Fatalf("settle failed: %v", err)
	}

	if got := f.balance(t); got != 20_000 {
		t.Fatalf("expected balance restored, got %d", got)
	}
	var status string
	if err := f.db.Raw("SELECT status FROM wallet_payouts WHERE id = ?", payout.ID).Scan(&status).Error; err != nil {
		t.Fatalf("scan payout: %v", err)
	}
	if status != string(domain.WalletPayoutFailed) {
		t.Fatalf("expected failed, got %s", status)
	}
}

func TestStatementForUnknownCreatorIsZero(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 79, false)

	statement, err := f.svc.Statement(ctx, f.creatorID)
	if err != nil {
		t.Fatalf("statement: %v", err)
	}
	if statement.BalanceCents != 0 || len(statement.Entries) != 0 || len(statement.Payouts) != 0 {
		t.Fatalf("expected empty statement, got %+v", statement)
	}
}
