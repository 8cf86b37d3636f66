package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/config"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/logger"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/metrics"
)

// Dispatcher publishes after a unit of work has committed. Failures are
// logged and counted, never returned, so committed state is not undone.
type Dispatcher struct {
	publisher Publisher
}

func NewDispatcher(publisher Publisher) *Dispatcher {
	return &Dispatcher{publisher: publisher}
}

// Emit publishes each event in order.
func (d *Dispatcher) Emit(ctx context.Context, evs ...Event) {
	for _, ev := range evs {
		if err := d.Publish(ctx, ev); err != nil {
			logger.Errorf(ctx, "[Events] Failed to publish %s %s: %v", ev.Type, ev.ID, err)
		}
	}
}

// Publish delivers one event and returns the failure to callers whose own
// processing depends on delivery.
func (d *Dispatcher) Publish(ctx context.Context, ev Event) error {
	if err := d.publisher.Publish(ctx, ev); err != nil {
		metrics.EventsPublished.WithLabelValues(string(ev.Type), "error").Inc()
		return err
	}
	metrics.EventsPublished.WithLabelValues(string(ev.Type), "ok").Inc()
	return nil
}

// Close closes the underlying publisher.
func (d *Dispatcher) Close() error {
	return d.publisher.Close()
}

// NewPublisher selects the configured backend.
func NewPublisher(cfg config.Events, rdb redis.UniversalClient) (Publisher, error) {
	switch cfg.Backend {
	case config.EventsLog, "":
		return NewLogPublisher(), nil
	case config.EventsRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis events backend requires a cache client")
		}
		return NewRedisPublisher(rdb, cfg.RedisStream), nil
	case config.EventsKafka:
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
}
