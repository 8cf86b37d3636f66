package models

import (
	"time"

	"gorm.io/datatypes"
)

type IdempotencyStatus string

const (
	IdempotencyStatusOpen      IdempotencyStatus = "OPEN"
	IdempotencyStatusCompleted IdempotencyStatus = "COMPLETED"
)

// IdempotencyRecord holds a claimed idempotency key and, once completed, the
// response snapshot replayed for every later request with the same key.
// Headers keep every value in the order it was written.
type IdempotencyRecord struct {
	Key             string                                   `gorm:"column:idempotency_key;type:varchar(255);primaryKey" json:"key"`
	RequestHash     string                                   `gorm:"type:varchar(64);not null" json:"requestHash"`
	Method          string                                   `gorm:"type:varchar(10);not null" json:"method"`
	Path            string                                   `gorm:"type:varchar(255);not null" json:"path"`
	Status          IdempotencyStatus                        `gorm:"type:varchar(20);not null" json:"status"`
	ResponseStatus  int                                      `gorm:"not null;default:0" json:"responseStatus"`
	ResponseHeaders datatypes.JSONType[map[string][]string] `json:"responseHeaders"`
	ResponseBody    []byte                                   `json:"-"`
	LockedUntil     *time.Time                               `json:"lockedUntil,omitempty"`
	CompletedAt     *time.Time                               `json:"completedAt,omitempty"`
	ExpiresAt       *time.Time                               `gorm:"index" json:"expiresAt,omitempty"`
	Version         int64                                    `gorm:"not null;default:0" json:"version"`
	CreatedAt       time.Time                                `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time                                `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (IdempotencyRecord) TableName() string {
	return "idempotency_records"
}

// HasSnapshot reports whether a response has been stored.
func (r *IdempotencyRecord) HasSnapshot() bool {
	return r.Status == IdempotencyStatusCompleted && r.ResponseStatus > 0
}

// IsExpired reports whether the record has passed its expiry.
func (r *IdempotencyRecord) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// LeaseActive reports whether an OPEN claim is still held by its executor.
func (r *IdempotencyRecord) LeaseActive(now time.Time) bool {
	return r.LockedUntil != nil && r.LockedUntil.After(now)
}
