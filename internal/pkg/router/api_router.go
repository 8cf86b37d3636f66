package router

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/app/controllers"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/apperrors"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/idempotency"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/middleware"
)

// Handlers carries everything the routers register.
type Handlers struct {
	Orders        *controllers.OrderController
	Subscriptions *controllers.SubscriptionController
	Webhooks      *controllers.WebhookController
	Admin         *controllers.AdminController
	Health        *controllers.HealthController

	Idempotency *idempotency.Store

	// AdminAPIKey guards /api/v1/admin; empty leaves the group unregistered.
	AdminAPIKey string
	// RateLimitMax is requests per minute per client IP; 0 disables limiting.
	RateLimitMax int
	// LimiterStorage shares counters across instances; nil keeps them in memory.
	LimiterStorage fiber.Storage
}

type ApiRouter struct {
	h Handlers
}

func (r ApiRouter) InstallRouter(app *fiber.App) {
	var api fiber.Router
	if r.h.RateLimitMax > 0 {
		api = app.Group("/api", limiter.New(limiter.Config{
			Max:        r.h.RateLimitMax,
			Expiration: time.Minute,
			Storage:    r.h.LimiterStorage,
			LimitReached: func(c *fiber.Ctx) error {
				return apperrors.New(apperrors.CodeRateLimited, "Too many requests", http.StatusTooManyRequests)
			},
		}))
	} else {
		api = app.Group("/api")
	}

	v1 := api.Group("/v1")
	idem := idempotency.Middleware(r.h.Idempotency)

	orders := v1.Group("/orders")
	orders.Post("/", idem, r.h.Orders.Create)
	orders.Get("/:id", r.h.Orders.Get)
	orders.Get("/:id/transactions", r.h.Orders.Transactions)
	orders.Post("/:id/authorize", idem, r.h.Orders.Authorize)
	orders.Post("/:id/capture", idem, r.h.Orders.Capture)
	orders.Post("/:id/void", idem, r.h.Orders.Void)
	orders.Post("/:id/refund", idem, r.h.Orders.Refund)
	orders.Post("/:id/cancel", idem, r.h.Orders.Cancel)

	subs := v1.Group("/subscriptions")
	subs.Post("/", idem, r.h.Subscriptions.Create)
	subs.Get("/:id", r.h.Subscriptions.Get)
	subs.Get("/:id/transactions", r.h.Subscriptions.Transactions)
	subs.Post("/:id/renew", idem, r.h.Subscriptions.Renew)
	subs.Post("/:id/cancel", idem, r.h.Subscriptions.Cancel)

	// webhooks are authenticated by signature and deduplicated downstream
	hooks := v1.Group("/webhooks")
	hooks.Post("/", r.h.Webhooks.Receive)
	hooks.Get("/:id", r.h.Webhooks.Get)

	if r.h.AdminAPIKey == "" || r.h.Admin == nil {
		return
	}
	admin := v1.Group("/admin", middleware.AdminKey(r.h.AdminAPIKey))
	admin.Post("/subscriptions/:id/make-due", r.h.Admin.MakeDue)
	admin.Post("/reconcile", r.h.Admin.Reconcile)
	admin.Post("/webhooks/:id/retry", r.h.Admin.RetryWebhook)
	admin.Get("/webhooks/stats", r.h.Admin.WebhookStats)
	admin.Post("/idempotency/purge", r.h.Admin.PurgeIdempotency)
}

func NewApiRouter(h Handlers) *ApiRouter {
	return &ApiRouter{h: h}
}
