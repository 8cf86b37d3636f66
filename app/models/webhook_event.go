package models

import (
	"encoding/json"
	"time"
)

type WebhookStatus string

const (
	WebhookStatusReceived   WebhookStatus = "RECEIVED"
	WebhookStatusProcessing WebhookStatus = "PROCESSING"
	WebhookStatusProcessed  WebhookStatus = "PROCESSED"
	WebhookStatusFailed     WebhookStatus = "FAILED"
)

// WebhookEvent stores a gateway notification with its processing lifecycle.
// Status only moves forward; FAILED is left alone until an explicit retry.
type WebhookEvent struct {
	ID                string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	Source            string        `gorm:"type:varchar(100);not null;default:'unknown'" json:"source"`
	Payload           []byte        `gorm:"not null" json:"-"`
	Status            WebhookStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	SignatureVerified bool          `gorm:"not null;default:false" json:"signatureVerified"`
	SignatureBypassed bool          `gorm:"not null;default:false" json:"signatureBypassed"`
	CorrelationID     string        `gorm:"type:varchar(128)" json:"correlationId"`
	ProcessingError   string        `gorm:"type:varchar(255)" json:"processingError,omitempty"`
	Attempts          int           `gorm:"not null;default:0" json:"attempts"`
	ReceivedAt        time.Time     `gorm:"not null" json:"receivedAt"`
	ProcessedAt       *time.Time    `json:"processedAt,omitempty"`
	Version           int64         `gorm:"not null;default:0" json:"version"`
	CreatedAt         time.Time     `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time     `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}

// PayloadDocument renders the raw payload for embedding in a JSON document:
// verbatim when it is valid JSON, otherwise as a base64 string of the bytes.
func (e *WebhookEvent) PayloadDocument() json.RawMessage {
	if len(e.Payload) > 0 && json.Valid(e.Payload) {
		return json.RawMessage(e.Payload)
	}
	encoded, _ := json.Marshal(e.Payload)
	return encoded
}
