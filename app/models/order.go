package models

import "time"

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusAuthorized OrderStatus = "AUTHORIZED"
	OrderStatusCaptured   OrderStatus = "CAPTURED"
	OrderStatusVoided     OrderStatus = "VOIDED"
	OrderStatusRefunded   OrderStatus = "REFUNDED"
	OrderStatusFailed     OrderStatus = "FAILED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// Order is a single payment order. Version is bumped on every persisted
// mutation and is the compare-and-swap guard for status changes.
type Order struct {
	ID              string      `gorm:"type:varchar(36);primaryKey" json:"id"`
	ExternalOrderID string      `gorm:"type:varchar(100);not null;uniqueIndex:ux_orders_external_order_id" json:"externalOrderId"`
	CustomerID      string      `gorm:"type:varchar(100);not null;index" json:"customerId"`
	AmountCents     int64       `gorm:"not null" json:"amountCents"`
	Currency        string      `gorm:"type:varchar(3);not null" json:"currency"`
	Status          OrderStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Version         int64       `gorm:"not null;default:0" json:"version"`
	CreatedAt       time.Time   `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time   `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Order) TableName() string {
	return "orders"
}
