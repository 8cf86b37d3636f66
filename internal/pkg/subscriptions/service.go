// Package subscriptions owns recurring billing: creation, cancellation and
// the renewal path shared by the scheduler and the manual endpoint.
package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/app/models"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/app/repository"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/apperrors"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/correlation"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/events"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/logger"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/metrics"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/validator"
)

const (
	// RenewalGateway is recorded on renewal charges.
	RenewalGateway = "subscription"
	// makeDueOffset puts a subscription just behind the clock.
	makeDueOffset = 60 * time.Second
	defaultBatch  = 100
)

type CreateInput struct {
	CustomerID   string `json:"customerId" validate:"required,max=100"`
	PlanID       string `json:"planId" validate:"required,max=100"`
	AmountCents  int64  `json:"amountCents" validate:"gt=0"`
	Currency     string `json:"currency" validate:"required,currency"`
	IntervalDays int    `json:"intervalDays,omitempty" validate:"omitempty,gte=1,lte=366"`
}

type Options struct {
	// BatchSize caps how many due subscriptions one pass renews.
	BatchSize int
	Now       func() time.Time
}

// Report summarizes one renewal pass.
type Report struct {
	Due     int `json:"due"`
	Renewed int `json:"renewed"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type Service struct {
	repos  *repository.Repositories
	events *events.Dispatcher
	opts   Options
}

func NewService(repos *repository.Repositories, dispatcher *events.Dispatcher, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatch
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{repos: repos, events: dispatcher, opts: opts}
}

// Create starts an ACTIVE subscription first billed one interval from now.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Subscription, error) {
	if err := validator.Struct(in); err != nil {
		return nil, err
	}
	if in.IntervalDays == 0 {
		in.IntervalDays = models.DefaultIntervalDays
	}

	sub := &models.Subscription{
		ID:           uuid.NewString(),
		CustomerID:   in.CustomerID,
		PlanID:       in.PlanID,
		AmountCents:  in.AmountCents,
		Currency:     in.Currency,
		Status:       models.SubscriptionStatusActive,
		IntervalDays: in.IntervalDays,
	}
	sub.NextBillingAt = s.opts.Now().Add(sub.Interval())

	err := s.repos.InTransaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Subscription.Create(ctx, sub); err != nil {
			return err
		}
		return tx.Audit.Create(ctx, models.NewAuditLog("subscription.created", models.AuditResourceSubscription, sub.ID,
			correlation.FromContext(ctx), map[string]interface{}{
				"planId":       sub.PlanID,
				"amountCents":  sub.AmountCents,
				"intervalDays": sub.IntervalDays,
			}))
	})
	if err != nil {
		logger.Errorf(ctx, "[Subscriptions] Failed to create subscription for customer %s: %v", in.CustomerID, err)
		return nil, apperrors.Internal(err)
	}

	metrics.SubscriptionsCreated.Inc()
	logger.Infof(ctx, "[Subscriptions] Created subscription %s (plan %s, every %d days)", sub.ID, sub.PlanID, sub.IntervalDays)
	return sub, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Subscription, error) {
	return s.load(ctx, id)
}

// Transactions lists the renewal charges of a subscription.
func (s *Service) Transactions(ctx context.Context, id string) ([]models.Transaction, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	txns, err := s.repos.Transaction.ListBySubscription(ctx, id)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return txns, nil
}

// Renew charges an ACTIVE subscription now, whether or not it is due.
func (s *Service) Renew(ctx context.Context, id string) (*models.Subscription, error) {
	sub, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.SubscriptionStatusActive {
		return nil, apperrors.InvalidState("subscription", "renew", string(models.SubscriptionStatusActive), string(sub.Status))
	}
	if err := s.renew(ctx, sub, s.opts.Now()); err != nil {
		return nil, err
	}
	return sub, nil
}

// Cancel stops billing. Cancelled subscriptions are never renewed.
func (s *Service) Cancel(ctx context.Context, id string) (*models.Subscription, error) {
	sub, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.SubscriptionStatusActive {
		return nil, apperrors.InvalidState("subscription", "cancel", string(models.SubscriptionStatusActive), string(sub.Status))
	}

	err = s.repos.InTransaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Subscription.UpdateStatus(ctx, sub, models.SubscriptionStatusCancelled); err != nil {
			return err
		}
		return tx.Audit.Create(ctx, models.NewAuditLog("subscription.cancelled", models.AuditResourceSubscription, sub.ID,
			correlation.FromContext(ctx), nil))
	})
	if err != nil {
		return nil, s.writeError(ctx, "cancel", sub.ID, err)
	}

	logger.Infof(ctx, "[Subscriptions] Cancelled subscription %s", sub.ID)
	return sub, nil
}

// MakeDue moves next billing just behind the clock so the next pass picks
// the subscription up. Operational use only.
func (s *Service) MakeDue(ctx context.Context, id string) (*models.Subscription, error) {
	sub, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.SubscriptionStatusActive {
		return nil, apperrors.InvalidState("subscription", "make due", string(models.SubscriptionStatusActive), string(sub.Status))
	}

	previous := sub.NextBillingAt
	at := s.opts.Now().Add(-makeDueOffset)
	err = s.repos.InTransaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Subscription.SetNextBilling(ctx, sub, at); err != nil {
			return err
		}
		return tx.Audit.Create(ctx, models.NewAuditLog("subscription.made_due", models.AuditResourceSubscription, sub.ID,
			correlation.FromContext(ctx), map[string]interface{}{
				"previousNextBillingAt": previous,
				"nextBillingAt":         at,
			}))
	})
	if err != nil {
		return nil, s.writeError(ctx, "make due", sub.ID, err)
	}

	logger.Warnf(ctx, "[Subscriptions] Subscription %s forced due (next billing %s)", sub.ID, at.Format(time.RFC3339))
	return sub, nil
}

// RenewDue renews every subscription due at now, each in its own unit of
// work. One failure is logged and counted and never stops the pass.
func (s *Service) RenewDue(ctx context.Context, now time.Time) (Report, error) {
	var report Report

	due, err := s.repos.Subscription.ListDue(ctx, now, s.opts.BatchSize)
	if err != nil {
		return report, err
	}
	report.Due = len(due)

	for i := range due {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		itemCtx := correlation.WithID(ctx, correlation.New())
		sub, err := s.repos.Subscription.GetByID(itemCtx, due[i].ID)
		if err != nil {
			report.Failed++
			metrics.SubscriptionRenewals.WithLabelValues("error").Inc()
			logger.Errorf(itemCtx, "[Subscriptions] Could not reload subscription %s: %v", due[i].ID, err)
			continue
		}
		if !sub.IsDue(now) {
			report.Skipped++
			logger.Debugf(itemCtx, "[Subscriptions] Subscription %s no longer due, skipping", sub.ID)
			continue
		}

		if err := s.renew(itemCtx, sub, now); err != nil {
			if apperrors.HasCode(err, apperrors.CodeVersionConflict) {
				report.Skipped++
				continue
			}
			report.Failed++
			continue
		}
		report.Renewed++
	}

	return report, nil
}

// renew records the charge and advances next billing by one interval from
// its previous value, both under the version the caller read.
func (s *Service) renew(ctx context.Context, sub *models.Subscription, now time.Time) error {
	previous := sub.NextBillingAt
	next := previous.Add(sub.Interval())
	corrID := correlation.FromContext(ctx)

	txn := &models.Transaction{
		ID:                   uuid.NewString(),
		SubscriptionID:       &sub.ID,
		Type:                 models.TransactionTypeCapture,
		Status:               models.TransactionStatusSucceeded,
		AmountCents:          sub.AmountCents,
		Currency:             sub.Currency,
		Gateway:              RenewalGateway,
		GatewayTransactionID: "renewal-" + uuid.NewString(),
		GatewayMessage:       "subscription renewal",
		CorrelationID:        corrID,
	}

	version, lastRenewed := sub.Version, sub.LastRenewedAt
	err := s.repos.InTransaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Subscription.Renew(ctx, sub, next, now); err != nil {
			return err
		}
		if err := tx.Transaction.Create(ctx, txn); err != nil {
			return err
		}
		return tx.Audit.Create(ctx, models.NewAuditLog("subscription.renewed", models.AuditResourceSubscription, sub.ID,
			corrID, map[string]interface{}{
				"transactionId":         txn.ID,
				"previousNextBillingAt": previous,
				"nextBillingAt":         next,
			}))
	})
	if err != nil {
		sub.NextBillingAt, sub.Version, sub.LastRenewedAt = previous, version, lastRenewed
		metrics.SubscriptionRenewals.WithLabelValues("error").Inc()
		return s.writeError(ctx, "renew", sub.ID, err)
	}

	metrics.SubscriptionRenewals.WithLabelValues("ok").Inc()
	logger.Infof(ctx, "[Subscriptions] Renewed subscription %s, next billing %s", sub.ID, next.Format(time.RFC3339))

	if s.events != nil {
		s.events.Emit(ctx, events.New(events.TypeSubscriptionCharged, sub.ID, corrID, map[string]interface{}{
			"subscriptionId":        sub.ID,
			"customerId":            sub.CustomerID,
			"planId":                sub.PlanID,
			"transactionId":         txn.ID,
			"amountCents":           sub.AmountCents,
			"currency":              sub.Currency,
			"previousNextBillingAt": previous,
			"nextBillingAt":         next,
		}))
	}
	return nil
}

func (s *Service) writeError(ctx context.Context, op, id string, err error) error {
	if errors.Is(err, repository.ErrVersionConflict) {
		logger.Infof(ctx, "[Subscriptions] Lost %s race on subscription %s", op, id)
		return apperrors.VersionConflict("subscription", id)
	}
	logger.Errorf(ctx, "[Subscriptions] Failed to %s subscription %s: %v", op, id, err)
	return apperrors.Internal(err)
}

func (s *Service) load(ctx context.Context, id string) (*models.Subscription, error) {
	sub, err := s.repos.Subscription.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("subscription", id)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return sub, nil
}
