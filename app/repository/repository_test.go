package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/app/models"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/database/dbtest"
)

func newRepos(t *testing.T) *Repositories {
	t.Helper()
	return NewRepositories(dbtest.Open(t))
}

func newOrder() *models.Order {
	return &models.Order{
		ID:              uuid.NewString(),
		ExternalOrderID: "ext-" + uuid.NewString(),
		CustomerID:      "cust-1",
		AmountCents:     1999,
		Currency:        "USD",
		Status:          models.OrderStatusPending,
	}
}

func TestOrderRepository_CreateAndGet(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()

	order := newOrder()
	require.NoError(t, repos.Order.Create(ctx, order))

	got, err := repos.Order.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ExternalOrderID, got.ExternalOrderID)
	assert.Equal(t, models.OrderStatusPending, got.Status)
	assert.Equal(t, int64(0), got.Version)

	_, err = repos.Order.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrderRepository_DuplicateExternalID(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()

	first := newOrder()
	require.NoError(t, repos.Order.Create(ctx, first))

	second := newOrder()
	second.ExternalOrderID = first.ExternalOrderID
	assert.ErrorIs(t, repos.Order.Create(ctx, second), ErrDuplicate)
}

func TestOrderRepository_UpdateStatusCompareAndSwap(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()

	order := newOrder()
	require.NoError(t, repos.Order.Create(ctx, order))

	stale := *order
	require.NoError(t, repos.Order.UpdateStatus(ctx, order, models.OrderStatusAuthorized))
	assert.Equal(t, int64(1), order.Version)

	err := repos.Order.UpdateStatus(ctx, &stale, models.OrderStatusCancelled)
	assert.ErrorIs(t, err, ErrVersionConflict)

	got, err := repos.Order.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusAuthorized, got.Status)
	assert.Equal(t, int64(1), got.Version)
}

func TestOrderRepository_ConcurrentUpdatesOneWinner(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()

	order := newOrder()
	require.NoError(t, repos.Order.Create(ctx, order))

	const writers = 5
	var wg sync.WaitGroup
	results := make(chan error, writers)
	for i := 0; i < writers; i++ {
		snapshot := *order
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- repos.Order.UpdateStatus(ctx, &snapshot, models.OrderStatusAuthorized)
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrVersionConflict)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestTransactionRepository_History(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()

	order := newOrder()
	require.NoError(t, repos.Order.Create(ctx, order))

	mk := func(typ models.TransactionType, amount int64, gwID string, at time.Time) *models.Transaction {
		return &models.Transaction{
			ID:                   uuid.NewString(),
			OrderID:              &order.ID,
			Type:                 typ,
			Status:               models.TransactionStatusSucceeded,
			AmountCents:          amount,
			Currency:             "USD",
			Gateway:              "noop",
			GatewayTransactionID: gwID,
			CreatedAt:            at,
		}
	}

	base := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repos.Transaction.Create(ctx, mk(models.TransactionTypeAuthorization, 1999, "auth-1", base)))
	require.NoError(t, repos.Transaction.Create(ctx, mk(models.TransactionTypeAuthorization, 1999, "auth-2", base.Add(time.Minute))))
	require.NoError(t, repos.Transaction.Create(ctx, mk(models.TransactionTypeCapture, 1999, "cap-1", base.Add(2*time.Minute))))
	require.NoError(t, repos.Transaction.Create(ctx, mk(models.TransactionTypeRefund, 500, "ref-1", base.Add(3*time.Minute))))
	require.NoError(t, repos.Transaction.Create(ctx, mk(models.TransactionTypeRefund, 700, "ref-2", base.Add(4*time.Minute))))

	latest, err := repos.Transaction.LatestByType(ctx, order.ID, models.TransactionTypeAuthorization)
	require.NoError(t, err)
	assert.Equal(t, "auth-2", latest.GatewayTransactionID)

	_, err = repos.Transaction.LatestByType(ctx, order.ID, models.TransactionTypeVoid)
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := repos.Transaction.ListByOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "auth-1", all[0].GatewayTransactionID)
	assert.Equal(t, "ref-2", all[4].GatewayTransactionID)

	refunded, err := repos.Transaction.SumAmountByType(ctx, order.ID, models.TransactionTypeRefund)
	require.NoError(t, err)
	assert.Equal(t, int64(1200), refunded)

	voided, err := repos.Transaction.SumAmountByType(ctx, order.ID, models.TransactionTypeVoid)
	require.NoError(t, err)
	assert.Equal(t, int64(0), voided)
}

func TestSubscriptionRepository_DueAndRenew(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()
	now := time.Now().UTC()

	due := &models.Subscription{ID: uuid.NewString(), CustomerID: "c", PlanID: "p", AmountCents: 500, Currency: "USD",
		Status: models.SubscriptionStatusActive, IntervalDays: 30, NextBillingAt: now.Add(-time.Hour)}
	future := &models.Subscription{ID: uuid.NewString(), CustomerID: "c", PlanID: "p", AmountCents: 500, Currency: "USD",
		Status: models.SubscriptionStatusActive, IntervalDays: 30, NextBillingAt: now.Add(time.Hour)}
	cancelled := &models.Subscription{ID: uuid.NewString(), CustomerID: "c", PlanID: "p", AmountCents: 500, Currency: "USD",
		Status: models.SubscriptionStatusCancelled, IntervalDays: 30, NextBillingAt: now.Add(-time.Hour)}
	for _, s := range []*models.Subscription{due, future, cancelled} {
		require.NoError(t, repos.Subscription.Create(ctx, s))
	}

	list, err := repos.Subscription.ListDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, due.ID, list[0].ID)

	stale := list[0]
	next := list[0].NextBillingAt.Add(list[0].Interval())
	require.NoError(t, repos.Subscription.Renew(ctx, &list[0], next, now))
	assert.ErrorIs(t, repos.Subscription.Renew(ctx, &stale, next, now), ErrVersionConflict)

	got, err := repos.Subscription.GetByID(ctx, due.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, next, got.NextBillingAt, time.Millisecond)
	require.NotNil(t, got.LastRenewedAt)

	require.NoError(t, repos.Subscription.UpdateStatus(ctx, got, models.SubscriptionStatusCancelled))
	assert.ErrorIs(t, repos.Subscription.Renew(ctx, got, next.Add(time.Hour), now), ErrVersionConflict)
}

func TestIdempotencyRepository_Lifecycle(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()
	now := time.Now().UTC()
	expires := now.Add(time.Hour)
	lease := now.Add(30 * time.Second)

	rec := &models.IdempotencyRecord{Key: "key-1", RequestHash: "h", Method: "POST", Path: "/orders",
		Status: models.IdempotencyStatusOpen, LockedUntil: &lease, ExpiresAt: &expires}

	inserted, err := repos.Idempotency.Insert(ctx, rec)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := *rec
	inserted, err = repos.Idempotency.Insert(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	stale := *rec
	require.NoError(t, repos.Idempotency.TakeOver(ctx, rec, now.Add(time.Minute)))
	assert.ErrorIs(t, repos.Idempotency.TakeOver(ctx, &stale, now.Add(time.Minute)), ErrVersionConflict)

	snap := Snapshot{Status: 201, Headers: map[string][]string{"Content-Type": {"application/json"}, "Vary": {"Origin", "Accept-Encoding"}}, Body: []byte(`{"id":"1"}`)}
	assert.ErrorIs(t, repos.Idempotency.Complete(ctx, &stale, snap, now), ErrVersionConflict)
	require.NoError(t, repos.Idempotency.Complete(ctx, rec, snap, now))

	again := Snapshot{Status: 500, Body: []byte("nope")}
	assert.ErrorIs(t, repos.Idempotency.Complete(ctx, rec, again, now), ErrVersionConflict)

	got, err := repos.Idempotency.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.True(t, got.HasSnapshot())
	assert.Equal(t, 201, got.ResponseStatus)
	assert.Equal(t, []string{"application/json"}, got.ResponseHeaders.Data()["Content-Type"])
	assert.Equal(t, []string{"Origin", "Accept-Encoding"}, got.ResponseHeaders.Data()["Vary"])
	assert.Equal(t, []byte(`{"id":"1"}`), got.ResponseBody)
	assert.Nil(t, got.LockedUntil)
}

func TestIdempotencyRepository_DeleteOpenAndExpired(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	open := &models.IdempotencyRecord{Key: "open", RequestHash: "h", Method: "POST", Path: "/x", Status: models.IdempotencyStatusOpen, ExpiresAt: &future}
	expired := &models.IdempotencyRecord{Key: "expired", RequestHash: "h", Method: "POST", Path: "/x", Status: models.IdempotencyStatusCompleted, ResponseStatus: 200, ExpiresAt: &past}
	live := &models.IdempotencyRecord{Key: "live", RequestHash: "h", Method: "POST", Path: "/x", Status: models.IdempotencyStatusCompleted, ResponseStatus: 200, ExpiresAt: &future}
	for _, r := range []*models.IdempotencyRecord{open, expired, live} {
		ok, err := repos.Idempotency.Insert(ctx, r)
		require.NoError(t, err)
		require.True(t, ok)
	}

	require.NoError(t, repos.Idempotency.DeleteOpen(ctx, open))
	_, err := repos.Idempotency.Get(ctx, "open")
	assert.ErrorIs(t, err, ErrNotFound)

	// completed records are never removed by DeleteOpen
	require.NoError(t, repos.Idempotency.DeleteOpen(ctx, live))
	_, err = repos.Idempotency.Get(ctx, "live")
	require.NoError(t, err)

	deleted, err := repos.Idempotency.DeleteExpiredKey(ctx, "live", now)
	require.NoError(t, err)
	assert.False(t, deleted)

	purged, err := repos.Idempotency.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func TestWebhookEventRepository_Transition(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()

	event := &models.WebhookEvent{ID: uuid.NewString(), Source: "authorize.net", Payload: []byte(`{"a":1}`),
		Status: models.WebhookStatusReceived, ReceivedAt: time.Now().UTC()}
	require.NoError(t, repos.WebhookEvent.Create(ctx, event))

	stale := *event
	require.NoError(t, repos.WebhookEvent.Transition(ctx, event, models.WebhookStatusProcessing, WebhookChanges{IncrementAttempts: true}))
	assert.Equal(t, 1, event.Attempts)
	assert.ErrorIs(t, repos.WebhookEvent.Transition(ctx, &stale, models.WebhookStatusProcessing, WebhookChanges{}), ErrVersionConflict)

	done := time.Now().UTC()
	require.NoError(t, repos.WebhookEvent.Transition(ctx, event, models.WebhookStatusProcessed, WebhookChanges{ProcessedAt: &done}))

	got, err := repos.WebhookEvent.GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WebhookStatusProcessed, got.Status)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, 1, got.Attempts)
	assert.NotNil(t, got.ProcessedAt)

	counts, err := repos.WebhookEvent.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[models.WebhookStatusProcessed])
}

func TestInTransactionRollsBack(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()
	order := newOrder()

	boom := errors.New("boom")
	err := repos.InTransaction(ctx, func(tx *Repositories) error {
		require.NoError(t, tx.Order.Create(ctx, order))
		require.NoError(t, tx.Audit.Create(ctx, &models.AuditLog{Action: "order.created", ResourceType: models.AuditResourceOrder, ResourceID: order.ID}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = repos.Order.GetByID(ctx, order.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	entries, err := repos.Audit.ListByResource(ctx, models.AuditResourceOrder, order.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, repos.Ping(ctx))
}
