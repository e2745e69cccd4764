package processor

import (
	"context"
	"errors"
)

// Provider is the single external payment rail.
const ProviderStripe = "stripe"

// Account mirrors the capability flags the rail reports for a connected
// payout account.
type Account struct {
	ID               string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
	Metadata         map[string]string
}

// CheckoutSessionRequest opens a hosted escrow funding session.
type CheckoutSessionRequest struct {
	ReferenceID string
	AmountCents int64
	Currency    string
	Description string
	SuccessURL  string
	CancelURL   string
	Metadata    map[string]string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// TransferRequest moves settled funds to a connected account. The
// idempotency key guarantees at-most-one transfer per logical payout even
// under client retry; callers must never retry with a different key.
type TransferRequest struct {
	AmountCents    int64
	Currency       string
	Destination    string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

type Transfer struct {
	ID string
}

type RefundRequest struct {
	PaymentRef     string
	AmountCents    int64
	IdempotencyKey string
}

type Refund struct {
	ID string
}

// Client is the injected boundary to the external payment processor.
// Every method is an I/O suspension point; callers must not hold locks or
// open transactions across these calls.
type Client interface {
	CreateAccount(ctx context.Context, country string, metadata map[string]string) (Account, error)
	CreateAccountLink(ctx context.Context, accountID, returnURL, refreshURL string) (string, error)
	GetAccount(ctx context.Context, accountID string) (Account, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	CreateTransfer(ctx context.Context, req TransferRequest) (Transfer, error)
	CreateRefund(ctx context.Context, req RefundRequest) (Refund, error)
	AvailableBalance(ctx context.Context, currency string) (int64, error)
}

var (
	ErrNotConfigured = errors.New("processor_not_configured")
	// ErrUnknownOutcome marks timeouts and transport failures where the
	// external call may or may not have landed; state stays as-is until a
	// webhook or manual refresh resolves it.
	ErrUnknownOutcome = errors.New("processor_unknown_outcome")
)
