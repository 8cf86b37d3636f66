package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/apperrors"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/idempotency"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/reconciliation"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/subscriptions"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/webhook"
)

// Reconciler runs one renewal pass on demand.
type Reconciler interface {
	RunOnce(ctx context.Context) (subscriptions.Report, error)
}

// AdminController exposes the explicit operational actions.
type AdminController struct {
	subscriptions *subscriptions.Service
	webhooks      *webhook.Service
	idempotency   *idempotency.Store
	reconciler    Reconciler
}

func NewAdminController(subs *subscriptions.Service, webhooks *webhook.Service, store *idempotency.Store, reconciler Reconciler) *AdminController {
	return &AdminController{subscriptions: subs, webhooks: webhooks, idempotency: store, reconciler: reconciler}
}

// MakeDue handles POST /admin/subscriptions/:id/make-due
func (ac *AdminController) MakeDue(c *fiber.Ctx) error {
	sub, err := ac.subscriptions.MakeDue(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(sub)
}

// Reconcile handles POST /admin/reconcile
func (ac *AdminController) Reconcile(c *fiber.Ctx) error {
	report, err := ac.reconciler.RunOnce(c.UserContext())
	if errors.Is(err, reconciliation.ErrPassInProgress) {
		return apperrors.New(apperrors.CodeInvalidState, "A reconciliation pass is already running", http.StatusConflict)
	}
	if err != nil {
		return apperrors.Internal(err)
	}
	return c.JSON(report)
}

// RetryWebhook handles POST /admin/webhooks/:id/retry
func (ac *AdminController) RetryWebhook(c *fiber.Ctx) error {
	event, err := ac.webhooks.Retry(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(event)
}

// WebhookStats handles GET /admin/webhooks/stats
func (ac *AdminController) WebhookStats(c *fiber.Ctx) error {
	counts, err := ac.webhooks.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(counts)
}

// PurgeIdempotency handles POST /admin/idempotency/purge
func (ac *AdminController) PurgeIdempotency(c *fiber.Ctx) error {
	n, err := ac.idempotency.PurgeExpired(c.UserContext())
	if err != nil {
		return apperrors.Internal(err)
	}
	return c.JSON(fiber.Map{"purged": n})
}
