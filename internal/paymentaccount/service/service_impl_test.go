package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/briefworks/briefworks/internal/clock"
	"github.com/briefworks/briefworks/internal/paymentaccount/domain"
	accountrepo "github.com/briefworks/briefworks/internal/paymentaccount/repository"
	accountservice "github.com/briefworks/briefworks/internal/paymentaccount/service"
	"github.com/briefworks/briefworks/internal/processor"
)

type fakeProcessor struct {
	accounts map[string]processor.Account
	created  int
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{accounts: make(map[string]processor.Account)}
}

func (f *fakeProcessor) CreateAccount(ctx context.Context, country string, metadata map[string]string) (processor.Account, error) {
	f.created++
	account := processor.Account{
		ID:       fmt.Sprintf("acct_%d", f.created),
		Metadata: metadata,
	}
	f.accounts[account.ID] = account
	return account, nil
}

func (f *fakeProcessor) CreateAccountLink(ctx context.Context, accountID, returnURL, refreshURL string) (string, error) {
	return "https://rail.example/onboard/" + accountID, nil
}

func (f *fakeProcessor) GetAccount(ctx context.Context, accountID string) (processor.Account, error) {
	account, ok := f.accounts[accountID]
	if !ok {
		return processor.Account{}, errors.New("no_such_account")
	}
	return account, nil
}

func (f *fakeProcessor) CreateCheckoutSession(ctx context.Context, req processor.CheckoutSessionRequest) (processor.CheckoutSession, error) {
	return processor.CheckoutSession{}, processor.ErrNotConfigured
}

func (f *fakeProcessor) CreateTransfer(ctx context.Context, req processor.TransferRequest) (processor.Transfer, error) {
	return processor.Transfer{}, processor.ErrNotConfigured
}

func (f *fakeProcessor) CreateRefund(ctx context.Context, req processor.RefundRequest) (processor.Refund, error) {
	return processor.Refund{}, processor.ErrNotConfigured
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

	schema := `CREATE TABLE payment_accounts (
		creator_id INTEGER PRIMARY KEY,
		external_account_id TEXT NOT NULL,
		country TEXT NOT NULL DEFAULT 'US',
		charges_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		payouts_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		details_submitted BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`
	if err := db.Exec(schema).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if err := db.Exec("CREATE UNIQUE INDEX ux_payment_accounts_external ON payment_accounts (external_account_id)").Error; err != nil {
		t.Fatalf("create index: %v", err)
	}
	return db
}

func newService(t *testing.T, db *gorm.DB) (domain.Service, *fakeProcessor) {
	t.Helper()

	proc := newFakeProcessor()
	svc := accountservice.NewService(accountservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		Clock:     clock.NewFakeClock(time.Date(2026, 1, 20, 9, 0, 0, 0, time.UTC)),
		Repo:      accountrepo.Provide(),
		Processor: proc,
	})
	return svc, proc
}

func TestRequestOnboardingCreatesAccountWithMetadata(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, proc := newService(t, db)
	node, _ := snowflake.NewNode(80)

	creatorID := node.Generate()
	account, err := svc.RequestOnboarding(ctx, creatorID, "us")
	if err != nil {
		t.Fatalf("request onboarding: %v", err)
	}
	if account.Country != "US" {
		t.Fatalf("expected country normalized to US, got %s", account.Country)
	}
	if account.Status != domain.StatusPending {
		t.Fatalf("expected pending status, got %s", account.Status)
	}

	remote := proc.accounts[account.ExternalAccountID]
	if remote.Metadata["creator_id"] != creatorID.String() {
		t.Fatalf("external account missing creator_id metadata")
	}
}

func TestRequestOnboardingRejectsExistingAccount(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, _ := newService(t, db)
	node, _ := snowflake.NewNode(81)

	creatorID := node.Generate()
	if _, err := svc.RequestOnboarding(ctx, creatorID, "US"); err != nil {
		t.Fatalf("first onboarding: %v", err)
	}
	if _, err := svc.RequestOnboarding(ctx, creatorID, "US"); err != domain.ErrAccountExists {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestRequestOnboardingRejectsInvalidCountry(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, _ := newService(t, db)
	node, _ := snowflake.NewNode(82)

	for _, country := range []string{"", "U", "USA"} {
		if _, err := svc.RequestOnboarding(ctx, node.Generate(), country); err != domain.ErrInvalidCountry {
			t.Fatalf("country %q: expected ErrInvalidCountry, got %v", country, err)
		}
	}
}

func TestPayoutsAllowedGate(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, _ := newService(t, db)
	node, _ := snowflake.NewNode(83)

	// No account at all.
	if _, err := svc.PayoutsAllowed(ctx, node.Generate()); err != domain.ErrAccountNotReady {
		t.Fatalf("expected ErrAccountNotReady for missing account, got %v", err)
	}

	creatorID := node.Generate()
	if _, err := svc.RequestOnboarding(ctx, creatorID, "US"); err != nil {
		t.Fatalf("onboarding: %v", err)
	}

	// Onboarded but payouts not yet enabled.
	if _, err := svc.PayoutsAllowed(ctx, creatorID); err != domain.ErrAccountNotReady {
		t.Fatalf("expected ErrAccountNotReady before capabilities, got %v", err)
	}

	account, err := svc.Get(ctx, creatorID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := svc.UpsertFromEvent(ctx, account.ExternalAccountID, domain.CapabilityFlags{
		ChargesEnabled:   true,
		PayoutsEnabled:   true,
		DetailsSubmitted: true,
	}); err != nil {
		t.Fatalf("upsert flags: %v", err)
	}

	allowed, err := svc.PayoutsAllowed(ctx, creatorID)
	if err != nil {
		t.Fatalf("payouts allowed: %v", err)
	}
	if allowed.Status != domain.StatusActive {
		t.Fatalf("expected active status, got %s", allowed.Status)
	}
}

func TestUpsertFromEventRecoversUnknownAccount(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, proc := newService(t, db)
	node, _ := snowflake.NewNode(84)

	// The external account exists with creator metadata, but no local row
	// landed; simulates a crash between the external create and insert.
	creatorID := node.Generate()
	proc.accounts["acct_orphan"] = processor.Account{
		ID:       "acct_orphan",
		Metadata: map[string]string{"creator_id": creatorID.String()},
	}

	if err := svc.UpsertFromEvent(ctx, "acct_orphan", domain.CapabilityFlags{
		PayoutsEnabled:   true,
		ChargesEnabled:   true,
		DetailsSubmitted: true,
	}); err != nil {
		t.Fatalf("upsert from event: %v", err)
	}

	account, err := svc.Get(ctx, creatorID)
	if err != nil {
		t.Fatalf("get recovered account: %v", err)
	}
	if account.ExternalAccountID != "acct_orphan" {
		t.Fatalf("expected recovered external id, got %s", account.ExternalAccountID)
	}
	if !account.PayoutsEnabled {
		t.Fatalf("expected payouts enabled on recovered account")
	}
}

func TestUpsertFromEventAcksAccountWithoutMetadata(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, proc := newService(t, db)

	proc.accounts["acct_stray"] = processor.Account{ID: "acct_stray"}

	// No creator metadata: logged and acked, never an error that would
	// make the provider redeliver forever.
	if err := svc.UpsertFromEvent(ctx, "acct_stray", domain.CapabilityFlags{PayoutsEnabled: true}); err != nil {
		t.Fatalf("expected ack, got %v", err)
	}
}

func TestRefreshStatusPullsFlags(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, proc := newService(t, db)
	node, _ := snowflake.NewNode(85)

	creatorID := node.Generate()
	account, err := svc.RequestOnboarding(ctx, creatorID, "US")
	if err != nil {
		t.Fatalf("onboarding: %v", err)
	}

	remote := proc.accounts[account.ExternalAccountID]
	remote.ChargesEnabled = true
	remote.PayoutsEnabled = true
	remote.DetailsSubmitted = true
	proc.accounts[account.ExternalAccountID] = remote

	refreshed, err := svc.RefreshStatus(ctx, creatorID)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.Status != domain.StatusActive {
		t.Fatalf("expected active after refresh, got %s", refreshed.Status)
	}
}

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		charges, payouts, details bool
		want                      domain.AccountStatus
	}{
		{true, true, true, domain.StatusActive},
		{false, true, false, domain.StatusActive},
		{true, false, true, domain.StatusRestricted},
		{false, false, true, domain.StatusRestricted},
		{false, false, false, domain.StatusPending},
		{true, false, false, domain.StatusPending},
	}
	for _, tc := range cases {
		got := domain.DeriveStatus(tc.charges, tc.payouts, tc.details)
		if got != tc.want {
			t.Fatalf("DeriveStatus(%v, %v, %v): expected %s, got %s", tc.charges, tc.payouts, tc.details, tc.want, got)
		}
	}
}
