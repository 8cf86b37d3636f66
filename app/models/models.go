package models

// All returns every persisted model, in dependency order, for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Order{},
		&Transaction{},
		&Subscription{},
		&IdempotencyRecord{},
		&WebhookEvent{},
		&AuditLog{},
	}
}
