// Package webhook authenticates, persists and processes gateway
// notifications. Each delivery is processed at most once by ingestion;
// FAILED events only move again through an explicit Retry.
package webhook

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
)

const defaultSource = "unknown"

// Archiver keeps a copy of the raw delivery.
type Archiver interface {
	Archive(ctx context.Context, event *models.WebhookEvent) error
}

// Delivery is one inbound notification as received.
type Delivery struct {
	Source    string
	Signature string
	Payload   []byte
}

type Options struct {
	// AllowUnsigned accepts deliveries that fail verification. Never for
	// production.
	AllowUnsigned bool
	Now           func() time.Time
}

type Service struct {
	repos    *repository.Repositories
	verifier *Verifier
	events   *events.Dispatcher
	archiver Archiver
	opts     Options
}

// NewService wires ingestion. archiver may be nil.
func NewService(repos *repository.Repositories, verifier *Verifier, dispatcher *events.Dispatcher, archiver Archiver, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.AllowUnsigned {
		logger.Warnf(context.Background(), "[Webhook] ************************************************************")
		logger.Warnf(context.Background(), "[Webhook] WEBHOOK_ALLOW_UNSIGNED is on: signature failures are ACCEPTED")
		logger.Warnf(context.Background(), "[Webhook] ************************************************************")
	}
	return &Service{repos: repos, verifier: verifier, events: dispatcher, archiver: archiver, opts: opts}
}

// Ingest verifies, stores and processes a delivery. A processing failure is
// persisted as FAILED and returned so the sender retries.
func (s *Service) Ingest(ctx context.Context, d Delivery) (*models.WebhookEvent, error) {
	verified := s.verifier.Verify(d.Payload, d.Signature)
	if !verified {
		if !s.opts.AllowUnsigned {
			metrics.Webhooks.WithLabelValues("rejected").Inc()
			logger.Warnf(ctx, "[Webhook] Rejected delivery from %s: invalid signature", sourceOrDefault(d.Source))
			return nil, apperrors.SignatureInvalid()
		}
		logger.Warnf(ctx, "[Webhook] SIGNATURE BYPASSED for delivery from %s (WEBHOOK_ALLOW_UNSIGNED=true)", sourceOrDefault(d.Source))
	}

	now := s.opts.Now()
	event := &models.WebhookEvent{
		ID:                uuid.NewString(),
		Source:            sourceOrDefault(d.Source),
		Payload:           d.Payload,
		Status:            models.WebhookStatusReceived,
		SignatureVerified: verified,
		SignatureBypassed: !verified,
		CorrelationID:     correlation.FromContext(ctx),
		ReceivedAt:        now,
	}
	if err := s.repos.WebhookEvent.Create(ctx, event); err != nil {
		logger.Errorf(ctx, "[Webhook] Failed to persist delivery from %s: %v", event.Source, err)
		return nil, apperrors.Internal(err)
	}
	logger.Infof(ctx, "[Webhook] Received event %s from %s (%d bytes)", event.ID, event.Source, len(d.Payload))

	if err := s.process(ctx, event); err != nil {
		return event, err
	}
	return event, nil
}

// Retry reprocesses a FAILED event.
func (s *Service) Retry(ctx context.Context, id string) (*models.WebhookEvent, error) {
	event, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if event.Status != models.WebhookStatusFailed {
		return nil, apperrors.InvalidState("webhook", "retry", string(models.WebhookStatusFailed), string(event.Status))
	}

	logger.Infof(ctx, "[Webhook] Retrying event %s (attempt %d)", event.ID, event.Attempts+1)
	if err := s.process(ctx, event); err != nil {
		return event, err
	}
	return event, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.WebhookEvent, error) {
	return s.load(ctx, id)
}

// Stats counts stored events per status.
func (s *Service) Stats(ctx context.Context) (map[models.WebhookStatus]int64, error) {
	counts, err := s.repos.WebhookEvent.CountByStatus(ctx)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return counts, nil
}

func (s *Service) process(ctx context.Context, event *models.WebhookEvent) error {
	if err := s.repos.WebhookEvent.Transition(ctx, event, models.WebhookStatusProcessing,
		repository.WebhookChanges{IncrementAttempts: true}); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return apperrors.VersionConflict("webhook", event.ID)
		}
		return apperrors.Internal(err)
	}

	if procErr := s.handle(ctx, event); procErr != nil {
		s.finish(ctx, event, models.WebhookStatusFailed, procErr)
		metrics.Webhooks.WithLabelValues("failed").Inc()
		logger.Errorf(ctx, "[Webhook] Processing of event %s failed: %v", event.ID, procErr)
		return apperrors.Internal(procErr)
	}

	if err := s.finish(ctx, event, models.WebhookStatusProcessed, nil); err != nil {
		return apperrors.Internal(err)
	}
	metrics.Webhooks.WithLabelValues("processed").Inc()
	logger.Infof(ctx, "[Webhook] Processed event %s", event.ID)
	return nil
}

// handle is the downstream work for one event.
func (s *Service) handle(ctx context.Context, event *models.WebhookEvent) error {
	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, event); err != nil {
			return err
		}
	}
	if s.events == nil {
		return nil
	}
	return s.events.Publish(ctx, events.New(events.TypeWebhookReceived, event.ID, event.CorrelationID, map[string]interface{}{
		"webhookId":         event.ID,
		"source":            event.Source,
		"signatureVerified": event.SignatureVerified,
		"receivedAt":        event.ReceivedAt,
		"payload":           event.PayloadDocument(),
	}))
}

// finish writes the terminal status with its audit entry.
func (s *Service) finish(ctx context.Context, event *models.WebhookEvent, to models.WebhookStatus, procErr error) error {
	processedAt := s.opts.Now()
	changes := repository.WebhookChanges{ProcessedAt: &processedAt}
	meta := map[string]interface{}{"attempts": event.Attempts, "source": event.Source}
	if procErr != nil {
		msg := procErr.Error()
		changes.ProcessingError = &msg
		meta["error"] = models.TruncateGatewayMessage(msg)
	}

	err := s.repos.InTransaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.WebhookEvent.Transition(ctx, event, to, changes); err != nil {
			return err
		}
		return tx.Audit.Create(ctx, models.NewAuditLog("webhook."+statusAction(to), models.AuditResourceWebhook, event.ID,
			correlation.FromContext(ctx), meta))
	})
	if err != nil {
		logger.Errorf(ctx, "[Webhook] Could not mark event %s %s: %v", event.ID, to, err)
	}
	return err
}

func statusAction(status models.WebhookStatus) string {
	if status == models.WebhookStatusFailed {
		return "failed"
	}
	return "processed"
}

func (s *Service) load(ctx context.Context, id string) (*models.WebhookEvent, error) {
	event, err := s.repos.WebhookEvent.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("webhook", id)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return event, nil
}

func sourceOrDefault(source string) string {
	if source == "" {
		return defaultSource
	}
	if len(source) > 100 {
		return source[:100]
	}
	return source
}
