package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/briefworks/briefworks/internal/config"
	"github.com/briefworks/briefworks/internal/processor"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"go.uber.org/zap"
)

// Client implements processor.Client on Stripe Connect. The API handle is
// injected per instance; there is no package-global key.
type Client struct {
	api      *client.API
	log      *zap.Logger
	currency string
}

func New(cfg config.Config, log *zap.Logger) (*Client, error) {
	key := strings.TrimSpace(cfg.StripeSecretKey)
	if key == "" {
		return nil, processor.ErrNotConfigured
	}

	backends := stripe.NewBackends(&http.Client{Timeout: 20 * time.Second})
	api := &client.API{}
	api.Init(key, backends)

	return &Client{
		api:      api,
		log:      log.Named("processor.stripe"),
		currency: "usd",
	}, nil
}

func (c *Client) CreateAccount(ctx context.Context, country string, metadata map[string]string) (processor.Account, error) {
	params := &stripe.AccountParams{
		Type:    stripe.String(string(stripe.AccountTypeExpress)),
		Country: stripe.String(strings.ToUpper(strings.TrimSpace(country))),
		Capabilities: &stripe.AccountCapabilitiesParams{
			Transfers: &stripe.AccountCapabilitiesTransfersParams{
				Requested: stripe.Bool(true),
			},
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	acct, err := c.api.Accounts.New(params)
	if err != nil {
		return processor.Account{}, c.mapError("create account", err)
	}
	return toAccount(acct), nil
}

func (c *Client) CreateAccountLink(ctx context.Context, accountID, returnURL, refreshURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		ReturnURL:  stripe.String(returnURL),
		RefreshURL: stripe.String(refreshURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx

	link, err := c.api.AccountLinks.New(params)
	if err != nil {
		return "", c.mapError("create account link", err)
	}
	return link.URL, nil
}

func (c *Client) GetAccount(ctx context.Context, accountID string) (processor.Account, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx

	acct, err := c.api.Accounts.GetByID(accountID, params)
	if err != nil {
		return processor.Account{}, c.mapError("get account", err)
	}
	return toAccount(acct), nil
}

func (c *Client) CreateCheckoutSession(ctx context.Context, req processor.CheckoutSessionRequest) (processor.CheckoutSession, error) {
	currency := req.Currency
	if currency == "" {
		currency = c.currency
	}
	description := req.Description
	if description == "" {
		description = "Brief escrow funding"
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.ReferenceID),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(req.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(description),
					},
				},
			},
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return processor.CheckoutSession{}, c.mapError("create checkout session", err)
	}
	return processor.CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (c *Client) CreateTransfer(ctx context.Context, req processor.TransferRequest) (processor.Transfer, error) {
	currency := req.Currency
	if currency == "" {
		currency = c.currency
	}

	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.AmountCents),
		Currency:    stripe.String(currency),
		Destination: stripe.String(req.Destination),
		Description: stripe.String(req.Description),
		Metadata:    req.Metadata,
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	transfer, err := c.api.Transfers.New(params)
	if err != nil {
		return processor.Transfer{}, c.mapError("create transfer", err)
	}
	return processor.Transfer{ID: transfer.ID}, nil
}

func (c *Client) CreateRefund(ctx context.Context, req processor.RefundRequest) (processor.Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentRef),
	}
	if req.AmountCents > 0 {
		params.Amount = stripe.Int64(req.AmountCents)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	refund, err := c.api.Refunds.New(params)
	if err != nil {
		return processor.Refund{}, c.mapError("create refund", err)
	}
	return processor.Refund{ID: refund.ID}, nil
}

func (c *Client) AvailableBalance(ctx context.Context, currency string) (int64, error) {
	if currency == "" {
		currency = c.currency
	}
	params := &stripe.BalanceParams{}
	params.Context = ctx

	balance, err := c.api.Balance.Get(params)
	if err != nil {
		return 0, c.mapError("get balance", err)
	}

	var total int64
	for _, amount := range balance.Available {
		if strings.EqualFold(string(amount.Currency), currency) {
			total += amount.Amount
		}
	}
	return total, nil
}

// mapError classifies transport-level failures as unknown outcome so
// callers leave state untouched instead of treating them as declines.
func (c *Client) mapError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode >= http.StatusInternalServerError {
			c.log.Warn("stripe call failed upstream", zap.String("op", op), zap.Error(err))
			return fmt.Errorf("%s: %w", op, processor.ErrUnknownOutcome)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	// Timeouts and connection resets: the request may have landed.
	c.log.Warn("stripe call failed in transport", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s: %w", op, processor.ErrUnknownOutcome)
}

func toAccount(acct *stripe.Account) processor.Account {
	return processor.Account{
		ID:               acct.ID,
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
		Metadata:         acct.Metadata,
	}
}

var _ processor.Client = (*Client)(nil)
