package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is stamped on every event envelope.
const SchemaVersion = "1.0"

// Type names a domain event
type Type string

const (
	TypePaymentAuthorized   Type = "payment.authorized"
	TypePaymentCaptured     Type = "payment.captured"
	TypePaymentVoided       Type = "payment.voided"
	TypePaymentRefunded     Type = "payment.refunded"
	TypeSubscriptionCharged Type = "subscription.charged"
	TypeWebhookReceived     Type = "webhook.received"
)

// Event is the envelope handed to publishers. Listeners deduplicate on
// ID and Type; delivery is at least once.
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	SchemaVersion string                 `json:"schemaVersion"`
	AggregateID   string                 `json:"aggregateId"`
	CorrelationID string                 `json:"correlationId"`
	OccurredAt    time.Time              `json:"occurredAt"`
	Data          map[string]interface{} `json:"data"`
}

// New builds an event with a fresh id and the current time.
func New(eventType Type, aggregateID, correlationID string, data map[string]interface{}) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		SchemaVersion: SchemaVersion,
		AggregateID:   aggregateID,
		CorrelationID: correlationID,
		OccurredAt:    time.Now().UTC(),
		Data:          data,
	}
}

// Marshal encodes the envelope as JSON.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers events to listeners outside the process.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
