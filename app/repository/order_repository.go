package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/app/models"
)

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new order repository instance
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *models.Order) error {
	return translate(r.db.WithContext(ctx).Create(order).Error)
}

func (r *orderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, order *models.Order, to models.OrderStatus) error {
	now := time.Now().UTC()
	err := casUpdate(ctx, r.db, &models.Order{}, map[string]interface{}{
		"status":     to,
		"version":    gorm.Expr("version + 1"),
		"updated_at": now,
	}, "id = ? AND version = ?", order.ID, order.Version)
	if err != nil {
		return err
	}
	order.Status = to
	order.Version++
	order.UpdatedAt = now
	return nil
}
