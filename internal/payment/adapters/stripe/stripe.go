package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/briefworks/briefworks/internal/payment/domain"
	"github.com/bwmarrin/snowflake"
)

// Adapter verifies Stripe-Signature headers and translates Stripe event
// names into the canonical event types.
type Adapter struct {
	webhookSecret string
}

func NewAdapter(webhookSecret string) (*Adapter, error) {
	secret := strings.TrimSpace(webhookSecret)
	if secret == "" {
		return nil, errors.New("stripe webhook secret is empty")
	}
	return &Adapter{webhookSecret: secret}, nil
}

func (a *Adapter) Provider() string {
	return "stripe"
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return domain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return domain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*domain.ProcessorEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "checkout.session.completed":
		return a.parseCheckout(event, payload)
	case "payout.paid", "transfer.paid":
		return a.parseTransfer(event, payload, domain.EventTransferSucceeded)
	case "payout.failed", "transfer.failed", "transfer.reversed":
		return a.parseTransfer(event, payload, domain.EventTransferFailed)
	case "account.updated":
		return a.parseAccount(event, payload)
	default:
		return nil, domain.ErrEventIgnored
	}
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCheckoutSession struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Created       int64             `json:"created"`
	Metadata      map[string]string `json:"metadata"`
}

type stripeTransfer struct {
	ID             string            `json:"id"`
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Created        int64             `json:"created"`
	FailureCode    string            `json:"failure_code"`
	FailureMessage string            `json:"failure_message"`
	Metadata       map[string]string `json:"metadata"`
}

type stripeAccount struct {
	ID               string `json:"id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
}

func (a *Adapter) parseCheckout(event stripeEvent, payload []byte) (*domain.ProcessorEvent, error) {
	var session stripeCheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	return &domain.ProcessorEvent{
		Provider:        a.Provider(),
		ProviderEventID: event.ID,
		Type:            domain.EventCheckoutCompleted,
		ObjectID:        session.ID,
		PaymentRef:      strings.TrimSpace(session.PaymentIntent),
		AmountCents:     session.AmountTotal,
		Currency:        strings.ToLower(strings.TrimSpace(session.Currency)),
		OccurredAt:      timestamp(session.Created, event.Created),
		RawPayload:      payload,
	}, nil
}

func (a *Adapter) parseTransfer(event stripeEvent, payload []byte, eventType string) (*domain.ProcessorEvent, error) {
	var transfer stripeTransfer
	if err := json.Unmarshal(event.Data.Object, &transfer); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(transfer.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	reason := strings.TrimSpace(transfer.FailureMessage)
	if reason == "" {
		reason = strings.TrimSpace(transfer.FailureCode)
	}

	return &domain.ProcessorEvent{
		Provider:        a.Provider(),
		ProviderEventID: event.ID,
		Type:            eventType,
		ObjectID:        transfer.ID,
		AmountCents:     transfer.Amount,
		Currency:        strings.ToLower(strings.TrimSpace(transfer.Currency)),
		AssignmentID:    metadataID(transfer.Metadata, "assignment_id"),
		WalletPayoutID:  metadataID(transfer.Metadata, "wallet_payout_id"),
		FailureReason:   reason,
		OccurredAt:      timestamp(transfer.Created, event.Created),
		RawPayload:      payload,
	}, nil
}

func (a *Adapter) parseAccount(event stripeEvent, payload []byte) (*domain.ProcessorEvent, error) {
	var account stripeAccount
	if err := json.Unmarshal(event.Data.Object, &account); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(account.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	return &domain.ProcessorEvent{
		Provider:        a.Provider(),
		ProviderEventID: event.ID,
		Type:            domain.EventAccountUpdated,
		ObjectID:        account.ID,
		AccountFlags: &domain.AccountFlags{
			ChargesEnabled:   account.ChargesEnabled,
			PayoutsEnabled:   account.PayoutsEnabled,
			DetailsSubmitted: account.DetailsSubmitted,
		},
		OccurredAt: timestamp(0, event.Created),
		RawPayload: payload,
	}, nil
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func timestamp(primary, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}

func metadataID(metadata map[string]string, key string) snowflake.ID {
	raw := strings.TrimSpace(metadata[key])
	if raw == "" {
		return 0
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0
	}
	return id
}

var _ domain.Adapter = (*Adapter)(nil)
