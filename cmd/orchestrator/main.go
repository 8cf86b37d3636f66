package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/app/controllers"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/bootstrap"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/cache"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/config"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/correlation"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/env"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/middleware"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/router"
)

const shutdownTimeout = 15 * time.Second

func main() {
	env.SetupEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Orchestrator] Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("[Orchestrator] Startup failed: %v", err)
	}

	app := NewApplication(container)

	if cfg.Reconciliation.Enabled {
		container.Reconciler.Start()
	} else {
		log.Warn("[Orchestrator] Reconciliation scheduler disabled (RECONCILE_ENABLED=false)")
	}

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- app.Listen(fmt.Sprintf("%s:%s", cfg.App.Host, cfg.App.Port))
	}()

	select {
	case <-ctx.Done():
		log.Info("[Orchestrator] Shutdown signal received")
	case err := <-listenErr:
		if err != nil {
			log.Errorf("[Orchestrator] HTTP server stopped: %v", err)
		}
	}

	shutdown(app, container)
}

// shutdown stops the HTTP server, then the scheduler, then the publisher and
// the connections behind it.
func shutdown(app *fiber.App, container *bootstrap.Container) {
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Errorf("[Orchestrator] HTTP shutdown: %v", err)
	}
	container.Reconciler.Stop()
	if err := container.Close(); err != nil {
		log.Errorf("[Orchestrator] Closing resources: %v", err)
	}
	log.Info("[Orchestrator] Bye")
}

// NewApplication builds the fiber app with the middleware stack and routes.
func NewApplication(c *bootstrap.Container) *fiber.App {
	cfg := c.Config

	app := fiber.New(fiber.Config{
		AppName:      "payment-orchestrator",
		ErrorHandler: controllers.ErrorHandler,
		BodyLimit:    1 << 20,
	})

	// recovery, correlation and access logging
	app.Use(recover.New(recover.Config{EnableStackTrace: cfg.IsDev()}))
	for _, h := range middleware.CorrelationHandlers() {
		app.Use(h)
	}
	app.Use(logger.New(logger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | correlation_id=${locals:" + correlation.LocalsKey + "}\n",
	}))

	// SWAGGER / OPENAPI
	if path, ok := findOpenAPIDocument(); ok {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: path,
			Path:     "v1",
			Title:    "Payment Orchestrator API",
		}))
	} else {
		log.Warn("[Orchestrator] OpenAPI document not found, /docs/api/v1 disabled")
	}

	limiterStorage, err := cache.NewLimiterStorage(cfg.Cache)
	if err != nil {
		log.Warnf("[Orchestrator] %v, rate limits are per instance", err)
	}

	var cachePinger controllers.Pinger
	if c.Cache != nil {
		cachePinger = controllers.PingFunc(func(ctx context.Context) error { return c.Cache.Ping(ctx).Err() })
	}

	router.InstallRouter(app, router.Handlers{
		Orders:         controllers.NewOrderController(c.Orders),
		Subscriptions:  controllers.NewSubscriptionController(c.Subscriptions),
		Webhooks:       controllers.NewWebhookController(c.Webhooks),
		Admin:          controllers.NewAdminController(c.Subscriptions, c.Webhooks, c.Idempotency, c.Reconciler),
		Health:         controllers.NewHealthController(controllers.PingFunc(c.Repos.Ping), cachePinger),
		Idempotency:    c.Idempotency,
		AdminAPIKey:    cfg.AdminAPIKey,
		RateLimitMax:   cfg.RateLimitMax,
		LimiterStorage: limiterStorage,
	})

	if cfg.AdminAPIKey == "" {
		log.Warn("[Orchestrator] ADMIN_API_KEY is empty, admin routes are not registered")
	}
	return app
}

// findOpenAPIDocument looks in the project root candidates, as the .env
// lookup does.
func findOpenAPIDocument() (string, bool) {
	for _, base := range []string{"./", "../../", "../../../"} {
		path := base + "public/docs/v1/openapi.yml"
		if _, err := os.Stat(path); err == nil {
			return path, true
		} else if !errors.Is(err, os.ErrNotExist) {
			log.Warnf("[Orchestrator] Cannot read %s: %v", path, err)
		}
	}
	return "", false
}
