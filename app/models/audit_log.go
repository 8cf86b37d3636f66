package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	AuditResourceOrder        = "order"
	AuditResourceSubscription = "subscription"
	AuditResourceWebhook      = "webhook"
)

// AuditLog is an immutable trail entry written inside the same unit of work
// as the change it describes.
type AuditLog struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	Action        string            `gorm:"type:varchar(50);not null" json:"action"`
	ResourceType  string            `gorm:"type:varchar(30);not null;index:idx_audit_logs_resource,priority:1" json:"resourceType"`
	ResourceID    string            `gorm:"type:varchar(36);not null;index:idx_audit_logs_resource,priority:2" json:"resourceId"`
	CorrelationID string            `gorm:"type:varchar(128)" json:"correlationId"`
	Metadata      datatypes.JSONMap `json:"metadata"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"createdAt"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog builds an entry; metadata may be nil.
func NewAuditLog(action, resourceType, resourceID, correlationID string, metadata map[string]interface{}) *AuditLog {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return &AuditLog{
		Action:        action,
		ResourceType:  resourceType,
		ResourceID:    resourceID,
		CorrelationID: correlationID,
		Metadata:      datatypes.JSONMap(metadata),
	}
}
