package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/app/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when a compare-and-swap update matched
	// no row because the stored version (or status) moved on.
	ErrVersionConflict = errors.New("version conflict")
	// ErrDuplicate is returned when a unique constraint rejects an insert.
	ErrDuplicate = errors.New("duplicate key")
)

// OrderRepository defines the interface for order persistence
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	// UpdateStatus writes the new status only if the stored version still
	// equals order.Version. On success order is updated in place.
	UpdateStatus(ctx context.Context, order *models.Order, to models.OrderStatus) error
}

// TransactionRepository defines the interface for the append-only
// transaction history
type TransactionRepository interface {
	Create(ctx context.Context, txn *models.Transaction) error
	LatestByType(ctx context.Context, orderID string, txnType models.TransactionType) (*models.Transaction, error)
	ListByOrder(ctx context.Context, orderID string) ([]models.Transaction, error)
	ListBySubscription(ctx context.Context, subscriptionID string) ([]models.Transaction, error)
	SumAmountByType(ctx context.Context, orderID string, txnType models.TransactionType) (int64, error)
}

// SubscriptionRepository defines the interface for subscription persistence
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *models.Subscription) error
	GetByID(ctx context.Context, id string) (*models.Subscription, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
	Renew(ctx context.Context, sub *models.Subscription, nextBillingAt, renewedAt time.Time) error
	UpdateStatus(ctx context.Context, sub *models.Subscription, to models.SubscriptionStatus) error
	SetNextBilling(ctx context.Context, sub *models.Subscription, at time.Time) error
}

// IdempotencyRepository defines the interface for idempotency records
type IdempotencyRepository interface {
	// Insert creates rec unless the key exists; false means another caller
	// owns the key.
	Insert(ctx context.Context, rec *models.IdempotencyRecord) (bool, error)
	Get(ctx context.Context, key string) (*models.IdempotencyRecord, error)
	TakeOver(ctx context.Context, rec *models.IdempotencyRecord, lockedUntil time.Time) error
	Complete(ctx context.Context, rec *models.IdempotencyRecord, snapshot Snapshot, completedAt time.Time) error
	DeleteOpen(ctx context.Context, rec *models.IdempotencyRecord) error
	DeleteExpiredKey(ctx context.Context, key string, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Snapshot is the response stored on completion of an idempotent request.
type Snapshot struct {
	Status  int
	Headers map[string][]string
	Body    []byte
}

// WebhookEventRepository defines the interface for webhook event persistence
type WebhookEventRepository interface {
	Create(ctx context.Context, event *models.WebhookEvent) error
	GetByID(ctx context.Context, id string) (*models.WebhookEvent, error)
	Transition(ctx context.Context, event *models.WebhookEvent, to models.WebhookStatus, changes WebhookChanges) error
	CountByStatus(ctx context.Context) (map[models.WebhookStatus]int64, error)
}

// WebhookChanges are the extra columns written with a status transition.
type WebhookChanges struct {
	ProcessedAt       *time.Time
	ProcessingError   *string
	IncrementAttempts bool
}

// AuditRepository defines the interface for the audit trail
type AuditRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	ListByResource(ctx context.Context, resourceType, resourceID string) ([]models.AuditLog, error)
}

// Repositories struct holds all repository instances bound to one *gorm.DB,
// which is either the pool or an open transaction.
type Repositories struct {
	Order        OrderRepository
	Transaction  TransactionRepository
	Subscription SubscriptionRepository
	Idempotency  IdempotencyRepository
	WebhookEvent WebhookEventRepository
	Audit        AuditRepository

	db *gorm.DB
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Order:        NewOrderRepository(db),
		Transaction:  NewTransactionRepository(db),
		Subscription: NewSubscriptionRepository(db),
		Idempotency:  NewIdempotencyRepository(db),
		WebhookEvent: NewWebhookEventRepository(db),
		Audit:        NewAuditRepository(db),
		db:           db,
	}
}

// InTransaction runs fn in one database transaction with repositories bound
// to it. Any error returned by fn rolls the whole unit of work back.
func (r *Repositories) InTransaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

// Ping checks that the underlying database answers.
func (r *Repositories) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

// casUpdate applies updates to the rows matched by where and reports
// ErrVersionConflict when none matched.
func casUpdate(ctx context.Context, db *gorm.DB, model interface{}, updates map[string]interface{}, where string, args ...interface{}) error {
	res := db.WithContext(ctx).Model(model).Where(where, args...).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}
