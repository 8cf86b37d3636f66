package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/app/models"
)

type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	return translate(r.db.WithContext(ctx).Create(sub).Error)
}

func (r *subscriptionRepository) GetByID(ctx context.Context, id string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

// ListDue returns ACTIVE subscriptions billed at or before now, earliest first.
func (r *subscriptionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_billing_at <= ?", models.SubscriptionStatusActive, now).
		Order("next_billing_at ASC").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

// Renew advances next_billing_at if the subscription is still ACTIVE at the
// version the caller read.
func (r *subscriptionRepository) Renew(ctx context.Context, sub *models.Subscription, nextBillingAt, renewedAt time.Time) error {
	err := casUpdate(ctx, r.db, &models.Subscription{}, map[string]interface{}{
		"next_billing_at": nextBillingAt,
		"last_renewed_at": renewedAt,
		"version":         gorm.Expr("version + 1"),
		"updated_at":      renewedAt,
	}, "id = ? AND version = ? AND status = ?", sub.ID, sub.Version, models.SubscriptionStatusActive)
	if err != nil {
		return err
	}
	sub.NextBillingAt = nextBillingAt
	sub.LastRenewedAt = &renewedAt
	sub.Version++
	sub.UpdatedAt = renewedAt
	return nil
}

func (r *subscriptionRepository) UpdateStatus(ctx context.Context, sub *models.Subscription, to models.SubscriptionStatus) error {
	now := time.Now().UTC()
	err := casUpdate(ctx, r.db, &models.Subscription{}, map[string]interface{}{
		"status":     to,
		"version":    gorm.Expr("version + 1"),
		"updated_at": now,
	}, "id = ? AND version = ?", sub.ID, sub.Version)
	if err != nil {
		return err
	}
	sub.Status = to
	sub.Version++
	sub.UpdatedAt = now
	return nil
}

func (r *subscriptionRepository) SetNextBilling(ctx context.Context, sub *models.Subscription, at time.Time) error {
	now := time.Now().UTC()
	err := casUpdate(ctx, r.db, &models.Subscription{}, map[string]interface{}{
		"next_billing_at": at,
		"version":         gorm.Expr("version + 1"),
		"updated_at":      now,
	}, "id = ? AND version = ?", sub.ID, sub.Version)
	if err != nil {
		return err
	}
	sub.NextBillingAt = at
	sub.Version++
	sub.UpdatedAt = now
	return nil
}
