package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/app/models"
)

type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new transaction repository instance
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(ctx context.Context, txn *models.Transaction) error {
	txn.GatewayMessage = models.TruncateGatewayMessage(txn.GatewayMessage)
	return translate(r.db.WithContext(ctx).Create(txn).Error)
}

// LatestByType returns the most recent transaction of txnType for the order.
func (r *transactionRepository) LatestByType(ctx context.Context, orderID string, txnType models.TransactionType) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND type = ?", orderID, txnType).
		Order("created_at DESC").
		First(&txn).Error
	if err != nil {
		return nil, translate(err)
	}
	return &txn, nil
}

// ListByOrder returns the order's history, oldest first.
func (r *transactionRepository) ListByOrder(ctx context.Context, orderID string) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&txns).Error
	return txns, err
}

func (r *transactionRepository) ListBySubscription(ctx context.Context, subscriptionID string) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at ASC").
		Find(&txns).Error
	return txns, err
}

func (r *transactionRepository) SumAmountByType(ctx context.Context, orderID string, txnType models.TransactionType) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("order_id = ? AND type = ? AND status = ?", orderID, txnType, models.TransactionStatusSucceeded).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&total).Error
	return total, err
}
