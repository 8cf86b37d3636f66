package subscriptions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/app/models"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/app/repository"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/apperrors"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/database/dbtest"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/events"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db        *gorm.DB
	svc       *Service
	repos     *repository.Repositories
	published *events.MemoryPublisher
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	f := &fixture{db: db, repos: repository.NewRepositories(db), published: events.NewMemoryPublisher(), now: t0}
	f.svc = NewService(f.repos, events.NewDispatcher(f.published), Options{Now: func() time.Time { return f.now }})
	return f
}

func (f *fixture) create(t *testing.T, interval int) *models.Subscription {
	t.Helper()
	sub, err := f.svc.Create(context.Background(), CreateInput{
		CustomerID:   "cust-1",
		PlanID:       "plan-gold",
		AmountCents:  999,
		Currency:     "USD",
		IntervalDays: interval,
	})
	require.NoError(t, err)
	return sub
}

func (f *fixture) reload(t *testing.T, id string) *models.Subscription {
	t.Helper()
	sub, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return sub
}

func TestCreateDefaultsInterval(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t, 0)

	assert.Equal(t, models.DefaultIntervalDays, sub.IntervalDays)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.True(t, sub.NextBillingAt.Equal(t0.Add(30*24*time.Hour)))
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), CreateInput{CustomerID: "c", PlanID: "p", AmountCents: 10, Currency: "USD", IntervalDays: 400})
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeValidation, appErr.Code)
	assert.Equal(t, "lte=366", appErr.Details["intervalDays"])
}

func TestRenewDueAdvancesFromPreviousBillingDate(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t, 7)

	// scheduler runs late: three days after the subscription became due
	f.now = sub.NextBillingAt.Add(72 * time.Hour)
	report, err := f.svc.RenewDue(context.Background(), f.now)
	require.NoError(t, err)
	assert.Equal(t, Report{Due: 1, Renewed: 1}, report)

	renewed := f.reload(t, sub.ID)
	assert.True(t, renewed.NextBillingAt.Equal(sub.NextBillingAt.Add(7*24*time.Hour)))
	require.NotNil(t, renewed.LastRenewedAt)
	assert.True(t, renewed.LastRenewedAt.Equal(f.now))
	assert.Equal(t, sub.Version+1, renewed.Version)

	txns, err := f.svc.Transactions(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, models.TransactionTypeCapture, txns[0].Type)
	assert.Equal(t, RenewalGateway, txns[0].Gateway)
	assert.Equal(t, int64(999), txns[0].AmountCents)
	assert.Contains(t, txns[0].GatewayTransactionID, "renewal-")
	assert.NotEmpty(t, txns[0].CorrelationID)

	charged := f.published.OfType(events.TypeSubscriptionCharged)
	require.Len(t, charged, 1)
	assert.Equal(t, txns[0].CorrelationID, charged[0].CorrelationID)
}

func TestRenewDueRenewsOncePerPass(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t, 30)
	f.now = sub.NextBillingAt.Add(time.Hour)

	report, err := f.svc.RenewDue(context.Background(), f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Renewed)

	// the advanced date is in the future, so a second pass finds nothing
	report, err = f.svc.RenewDue(context.Background(), f.now)
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
}

func TestRenewDueIgnoresCancelledAndFutureSubscriptions(t *testing.T) {
	f := newFixture(t)
	due := f.create(t, 1)
	cancelled := f.create(t, 1)
	future := f.create(t, 30)

	_, err := f.svc.Cancel(context.Background(), cancelled.ID)
	require.NoError(t, err)

	f.now = t0.Add(48 * time.Hour)
	report, err := f.svc.RenewDue(context.Background(), f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Renewed)

	assert.Equal(t, due.Version+1, f.reload(t, due.ID).Version)
	assert.True(t, f.reload(t, future.ID).NextBillingAt.Equal(future.NextBillingAt))
	assert.True(t, f.reload(t, cancelled.ID).NextBillingAt.Equal(cancelled.NextBillingAt))
}

func TestRenewDueIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, 1)
	broken := f.create(t, 1)
	last := f.create(t, 1)

	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("test:fail_renewal", func(tx *gorm.DB) {
		if txn, ok := tx.Statement.Dest.(*models.Transaction); ok && txn.SubscriptionID != nil && *txn.SubscriptionID == broken.ID {
			_ = tx.AddError(errors.New("simulated outage"))
		}
	}))

	f.now = t0.Add(25 * time.Hour)
	report, err := f.svc.RenewDue(context.Background(), f.now)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Due)
	assert.Equal(t, 2, report.Renewed)
	assert.Equal(t, 1, report.Failed)

	assert.True(t, f.reload(t, first.ID).NextBillingAt.Equal(first.NextBillingAt.Add(24*time.Hour)))
	assert.True(t, f.reload(t, last.ID).NextBillingAt.Equal(last.NextBillingAt.Add(24*time.Hour)))

	// the failed unit of work rolled back the date change too
	stuck := f.reload(t, broken.ID)
	assert.True(t, stuck.NextBillingAt.Equal(broken.NextBillingAt))
	assert.Equal(t, broken.Version, stuck.Version)
}

func TestManualRenewAndCancel(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t, 10)

	renewed, err := f.svc.Renew(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.True(t, renewed.NextBillingAt.Equal(sub.NextBillingAt.Add(10*24*time.Hour)))

	cancelled, err := f.svc.Cancel(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCancelled, cancelled.Status)

	_, err = f.svc.Renew(context.Background(), sub.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))
	_, err = f.svc.Cancel(context.Background(), sub.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidState))
}

func TestMakeDue(t *testing.T) {
	f := newFixture(t)
	sub := f.create(t, 30)

	made, err := f.svc.MakeDue(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.True(t, made.NextBillingAt.Equal(t0.Add(-time.Minute)))

	report, err := f.svc.RenewDue(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Renewed)
	assert.True(t, f.reload(t, sub.ID).NextBillingAt.Equal(t0.Add(-time.Minute).Add(30*24*time.Hour)))

	audit, err := f.repos.Audit.ListByResource(context.Background(), models.AuditResourceSubscription, sub.ID)
	require.NoError(t, err)
	assert.Len(t, audit, 3)
}

func TestUnknownSubscription(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Renew(context.Background(), "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
	_, err = f.svc.MakeDue(context.Background(), "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}
