package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/cache"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/config"
)

func TestNewEventEnvelope(t *testing.T) {
	ev := New(TypePaymentCaptured, "order-1", "corr-1", map[string]interface{}{"amountCents": 1999})

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, SchemaVersion, ev.SchemaVersion)
	assert.Equal(t, "order-1", ev.AggregateID)

	data, err := ev.Marshal()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "payment.captured", decoded["type"])
	assert.Equal(t, "1.0", decoded["schemaVersion"])
	assert.Equal(t, "corr-1", decoded["correlationId"])
}

func TestDispatcherSwallowsPublishErrors(t *testing.T) {
	pub := NewMemoryPublisher()
	pub.Err = errors.New("broker down")
	d := NewDispatcher(pub)

	assert.NotPanics(t, func() {
		d.Emit(context.Background(), New(TypePaymentVoided, "o", "c", nil))
	})
	assert.Empty(t, pub.Events())

	pub.Err = nil
	d.Emit(context.Background(), New(TypePaymentVoided, "o", "c", nil), New(TypePaymentRefunded, "o", "c", nil))
	assert.Len(t, pub.Events(), 2)
	assert.Len(t, pub.OfType(TypePaymentRefunded), 1)
}

func TestNewPublisherSelectsBackend(t *testing.T) {
	p, err := NewPublisher(config.Events{Backend: config.EventsLog}, nil)
	require.NoError(t, err)
	assert.IsType(t, &LogPublisher{}, p)

	_, err = NewPublisher(config.Events{Backend: config.EventsRedis}, nil)
	assert.Error(t, err)

	k, err := NewPublisher(config.Events{Backend: config.EventsKafka, KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "t"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &KafkaPublisher{}, k)
	assert.NoError(t, k.Close())

	_, err = NewPublisher(config.Events{Backend: "sqs"}, nil)
	assert.Error(t, err)
}

func TestRedisPublisherStoresEvent(t *testing.T) {
	rdb := cache.NewTestClient(t)
	ctx := context.Background()

	pub := NewRedisPublisher(rdb, "payment-events-test")
	ev := New(TypeSubscriptionCharged, "sub-1", "corr", map[string]interface{}{"amountCents": 500})
	require.NoError(t, pub.Publish(ctx, ev))

	stored, err := rdb.Get(ctx, EventKeyPrefix+ev.ID).Result()
	require.NoError(t, err)
	assert.Contains(t, stored, `"subscription.charged"`)

	count, err := rdb.HGet(ctx, EventStatsKey, string(TypeSubscriptionCharged)).Int()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
