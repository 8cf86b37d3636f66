package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/app/controllers"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/metrics"
)

// SystemRouter serves probes and metrics.
type SystemRouter struct {
	health *controllers.HealthController
}

func (s SystemRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", s.health.Healthz)
	app.Get("/readyz", s.health.Readyz)

	// fiber metrics
	app.Get("/metrics", monitor.New(monitor.Config{Title: "Payment Orchestrator Metrics"}))
	app.Get("/metrics/prometheus", metrics.Handler())
}

func NewSystemRouter(health *controllers.HealthController) *SystemRouter {
	return &SystemRouter{health: health}
}
