package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventRecord is the durable dedup record for every accepted processor
// event. The unique index on (provider, provider_event_id) makes replay
// detection a plain insert.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	ObjectID        string         `json:"object_id" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "processor_events" }

// Canonical event types. Adapters translate provider-specific names into
// these; everything downstream keys off them.
const (
	EventCheckoutCompleted = "checkout.completed"
	EventTransferSucceeded = "transfer.succeeded"
	EventTransferFailed    = "transfer.failed"
	EventAccountUpdated    = "account.updated"
)

// AccountFlags carries the capability booleans from account.updated.
type AccountFlags struct {
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

// ProcessorEvent is the canonical shape every adapter parses into.
// ObjectID is the provider-side subject: session ID for checkouts,
// transfer ID for transfers, account ID for account updates.
type ProcessorEvent struct {
	Provider        string
	ProviderEventID string
	Type            string
	ObjectID        string
	PaymentRef      string
	AmountCents     int64
	Currency        string
	AssignmentID    snowflake.ID
	WalletPayoutID  snowflake.ID
	AccountFlags    *AccountFlags
	FailureReason   string
	OccurredAt      time.Time
	RawPayload      []byte
}

// Adapter verifies and parses one provider's webhook payloads.
type Adapter interface {
	Provider() string
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*ProcessorEvent, error)
}

type Service interface {
	// IngestWebhook verifies, dedups, and dispatches one delivery.
	// Replays and ignored event types return sentinels the handler acks
	// with 200; only verification failures bounce with 400.
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}

type Repository interface {
	// InsertEvent returns false when the (provider, provider_event_id)
	// pair was already recorded.
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}

var (
	ErrUnknownProvider       = errors.New("unknown_provider")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
)
