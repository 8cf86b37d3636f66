package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/app/models"
)

type webhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository creates a new webhook event repository instance
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

func (r *webhookEventRepository) Create(ctx context.Context, event *models.WebhookEvent) error {
	return translate(r.db.WithContext(ctx).Create(event).Error)
}

func (r *webhookEventRepository) GetByID(ctx context.Context, id string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error; err != nil {
		return nil, translate(err)
	}
	return &event, nil
}

// Transition moves the event from its in-memory status to "to" when neither
// status nor version changed underneath.
func (r *webhookEventRepository) Transition(ctx context.Context, event *models.WebhookEvent, to models.WebhookStatus, changes WebhookChanges) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":     to,
		"version":    gorm.Expr("version + 1"),
		"updated_at": now,
	}
	if changes.ProcessedAt != nil {
		updates["processed_at"] = *changes.ProcessedAt
	}
	if changes.ProcessingError != nil {
		updates["processing_error"] = models.TruncateGatewayMessage(*changes.ProcessingError)
	}
	if changes.IncrementAttempts {
		updates["attempts"] = gorm.Expr("attempts + 1")
	}

	err := casUpdate(ctx, r.db, &models.WebhookEvent{}, updates,
		"id = ? AND version = ? AND status = ?", event.ID, event.Version, event.Status)
	if err != nil {
		return err
	}

	event.Status = to
	event.Version++
	event.UpdatedAt = now
	if changes.ProcessedAt != nil {
		event.ProcessedAt = changes.ProcessedAt
	}
	if changes.ProcessingError != nil {
		event.ProcessingError = models.TruncateGatewayMessage(*changes.ProcessingError)
	}
	if changes.IncrementAttempts {
		event.Attempts++
	}
	return nil
}

func (r *webhookEventRepository) CountByStatus(ctx context.Context) (map[models.WebhookStatus]int64, error) {
	var rows []struct {
		Status models.WebhookStatus
		Total  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[models.WebhookStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}
