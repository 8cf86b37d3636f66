package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/logger"
)

// Pinger is anything readiness depends on.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

type HealthController struct {
	db    Pinger
	cache Pinger
}

// NewHealthController wires readiness checks. cache may be nil.
func NewHealthController(db, cache Pinger) *HealthController {
	return &HealthController{db: db, cache: cache}
}

func (hc *HealthController) Healthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readyz fails only on the database; a missing cache is reported as degraded.
func (hc *HealthController) Readyz(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	checks := fiber.Map{}
	status := "ok"

	if err := hc.db.Ping(ctx); err != nil {
		logger.Errorf(ctx, "[Health] Database ping failed: %v", err)
		checks["database"] = "down"
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "down", "checks": checks})
	}
	checks["database"] = "up"

	if hc.cache != nil {
		if err := hc.cache.Ping(ctx); err != nil {
			logger.Warnf(ctx, "[Health] Cache ping failed: %v", err)
			checks["cache"] = "down"
			status = "degraded"
		} else {
			checks["cache"] = "up"
		}
	}

	return c.JSON(fiber.Map{"status": status, "checks": checks})
}
