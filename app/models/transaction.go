package models

import "time"

type TransactionType string

const (
	TransactionTypeAuthorization TransactionType = "AUTHORIZATION"
	TransactionTypeCapture       TransactionType = "CAPTURE"
	TransactionTypeVoid          TransactionType = "VOID"
	TransactionTypeRefund        TransactionType = "REFUND"
)

const (
	TransactionStatusSucceeded = "SUCCEEDED"
	TransactionStatusFailed    = "FAILED"
)

// MaxGatewayMessageLength bounds the stored gateway response text.
const MaxGatewayMessageLength = 255

// Transaction is an append-only record of one gateway interaction. It belongs
// to either an order or a subscription renewal, referenced by id only.
type Transaction struct {
	ID                   string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	OrderID              *string         `gorm:"type:varchar(36);index:idx_transactions_order_type,priority:1" json:"orderId,omitempty"`
	SubscriptionID       *string         `gorm:"type:varchar(36);index" json:"subscriptionId,omitempty"`
	Type                 TransactionType `gorm:"type:varchar(20);not null;index:idx_transactions_order_type,priority:2" json:"type"`
	Status               string          `gorm:"type:varchar(20);not null" json:"status"`
	AmountCents          int64           `gorm:"not null" json:"amountCents"`
	Currency             string          `gorm:"type:varchar(3);not null" json:"currency"`
	Gateway              string          `gorm:"type:varchar(50);not null" json:"gateway"`
	GatewayTransactionID string          `gorm:"type:varchar(100);index" json:"gatewayTransactionId"`
	GatewayMessage       string          `gorm:"type:varchar(255)" json:"gatewayMessage"`
	PaymentReference     string          `gorm:"type:varchar(32)" json:"paymentReference,omitempty"`
	CorrelationID        string          `gorm:"type:varchar(128)" json:"correlationId"`
	Version              int64           `gorm:"not null;default:0" json:"version"`
	CreatedAt            time.Time       `gorm:"autoCreateTime;index:idx_transactions_order_type,priority:3" json:"createdAt"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// TruncateGatewayMessage cuts msg to MaxGatewayMessageLength runes.
func TruncateGatewayMessage(msg string) string {
	r := []rune(msg)
	if len(r) <= MaxGatewayMessageLength {
		return msg
	}
	return string(r[:MaxGatewayMessageLength])
}
