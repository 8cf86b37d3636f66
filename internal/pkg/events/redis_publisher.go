package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	EventKeyPrefix = "event:"
	EventListKey   = "events:recent"
	EventStatsKey  = "events:stats"

	EventTTL        = 24 * time.Hour
	recentEventsMax = 1000
)

// RedisPublisher publishes to a pub/sub channel and keeps a bounded list of
// recent events plus per-type counters for operators.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisPublisher(client redis.UniversalClient, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	data, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	pipe := p.client.Pipeline()
	pipe.Set(ctx, EventKeyPrefix+event.ID, data, EventTTL)
	pipe.LPush(ctx, EventListKey, data)
	pipe.LTrim(ctx, EventListKey, 0, recentEventsMax-1)
	pipe.HIncrBy(ctx, EventStatsKey, string(event.Type), 1)
	pipe.Publish(ctx, p.channel, data)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close leaves the shared client open; the cache package owns it.
func (p *RedisPublisher) Close() error {
	return nil
}
