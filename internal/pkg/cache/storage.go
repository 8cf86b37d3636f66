package cache

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	redisstore "github.com/gofiber/storage/redis"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/config"
)

// limiterDatabase keeps rate limit counters apart from locks and events (DB 0).
const limiterDatabase = 1

// NewLimiterStorage returns a fiber.Storage on the cache for the rate
// limiter, so limits hold across instances. The storage driver panics when
// the server is unreachable; that is returned as an error instead.
func NewLimiterStorage(cfg config.Cache) (storage fiber.Storage, err error) {
	defer func() {
		if r := recover(); r != nil {
			storage, err = nil, fmt.Errorf("limiter storage unavailable: %v", r)
		}
	}()

	port, convErr := strconv.Atoi(cfg.Port)
	if convErr != nil {
		log.Warnf("[Cache] Invalid CACHE_PORT %q, using 6379 for limiter storage", cfg.Port)
		port = 6379
	}

	storage = redisstore.New(redisstore.Config{
		Host:     cfg.Host,
		Port:     port,
		Password: cfg.Password,
		Database: limiterDatabase,
		Reset:    false,
	})
	log.Infof("[Cache] Rate limiter storage on %s (db %d)", cfg.Addr(), limiterDatabase)
	return storage, nil
}
