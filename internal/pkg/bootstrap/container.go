// Package bootstrap wires configuration, storage and services into one
// container shared by the server and the operator CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/app/repository"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/archive"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/cache"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/config"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/database"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/events"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/gateway"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/idempotency"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/logger"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/orders"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/reconciliation"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/subscriptions"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/webhook"
)

// Container holds the long-lived dependencies of a process.
type Container struct {
	Config *config.Config
	DB     *gorm.DB
	Cache  *redis.Client
	Repos  *repository.Repositories

	Gateway    *gateway.Adapter
	Dispatcher *events.Dispatcher

	Orders        *orders.Service
	Subscriptions *subscriptions.Service
	Webhooks      *webhook.Service
	Idempotency   *idempotency.Store
	Reconciler    *reconciliation.Manager
}

// New builds every dependency from cfg. Only the database is mandatory; an
// unreachable cache degrades locks and rate limits.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	logger.SetLevel(cfg.IsDev())

	db, err := database.SetupDatabase(cfg.Database, cfg.IsDev())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	c := &Container{
		Config: cfg,
		DB:     db,
		Cache:  cache.SetupCache(cfg.Cache),
		Repos:  repository.NewRepositories(db),
	}

	if c.Gateway, err = gateway.New(cfg.Gateway); err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}

	publisher, err := events.NewPublisher(cfg.Events, c.Cache)
	if err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}
	c.Dispatcher = events.NewDispatcher(publisher)
	log.Infof("[Bootstrap] Domain events go to the %s backend", cfg.Events.Backend)

	verifier, err := webhook.NewVerifier(cfg.Webhook.SignatureKey)
	if err != nil {
		return nil, err
	}

	var archiver webhook.Archiver
	if cfg.Archive.Enabled {
		s3Archiver, err := archive.NewS3Archiver(ctx, cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		archiver = s3Archiver
	}

	c.Orders = orders.NewService(c.Repos, c.Gateway, c.Dispatcher, orders.Options{AutoCapture: cfg.AutoCapture})
	c.Subscriptions = subscriptions.NewService(c.Repos, c.Dispatcher, subscriptions.Options{BatchSize: cfg.Reconciliation.BatchSize})
	c.Webhooks = webhook.NewService(c.Repos, verifier, c.Dispatcher, archiver, webhook.Options{AllowUnsigned: cfg.Webhook.AllowUnsigned})
	c.Idempotency = idempotency.NewStore(c.Repos.Idempotency, idempotency.Options{
		TTL:   cfg.Idempotency.TTL,
		Lease: cfg.Idempotency.Lease,
		Wait:  cfg.Idempotency.Wait,
	})
	c.Reconciler = reconciliation.NewManager(c.Subscriptions, c.Idempotency, c.Cache, reconciliation.Options{
		Interval: cfg.Reconciliation.Interval,
	})

	return c, nil
}

// Close releases the publisher, cache and database in that order.
func (c *Container) Close() error {
	var errs []error
	if c.Dispatcher != nil {
		if err := c.Dispatcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("events: %w", err))
		}
	}
	if err := cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("cache: %w", err))
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("database: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}
