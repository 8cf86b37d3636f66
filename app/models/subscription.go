package models

import "time"

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
)

const DefaultIntervalDays = 30

// Subscription is a recurring charge. Only renewal moves NextBillingAt forward.
type Subscription struct {
	ID            string             `gorm:"type:varchar(36);primaryKey" json:"id"`
	CustomerID    string             `gorm:"type:varchar(100);not null;index" json:"customerId"`
	PlanID        string             `gorm:"type:varchar(100);not null" json:"planId"`
	AmountCents   int64              `gorm:"not null" json:"amountCents"`
	Currency      string             `gorm:"type:varchar(3);not null" json:"currency"`
	Status        SubscriptionStatus `gorm:"type:varchar(20);not null;index:idx_subscriptions_due,priority:1" json:"status"`
	IntervalDays  int                `gorm:"not null" json:"intervalDays"`
	NextBillingAt time.Time          `gorm:"not null;index:idx_subscriptions_due,priority:2" json:"nextBillingAt"`
	LastRenewedAt *time.Time         `json:"lastRenewedAt,omitempty"`
	Version       int64              `gorm:"not null;default:0" json:"version"`
	CreatedAt     time.Time          `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time          `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// Interval returns the billing interval as a duration.
func (s *Subscription) Interval() time.Duration {
	return time.Duration(s.IntervalDays) * 24 * time.Hour
}

// IsDue reports whether the subscription should be billed at now.
func (s *Subscription) IsDue(now time.Time) bool {
	return s.Status == SubscriptionStatusActive && !s.NextBillingAt.After(now)
}
