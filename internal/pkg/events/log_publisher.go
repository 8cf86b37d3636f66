package events

import (
	"context"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/logger"
)

// LogPublisher writes events to the application log. It is the default
// backend when no broker is configured.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	data, err := event.Marshal()
	if err != nil {
		return err
	}
	logger.Infof(ctx, "[Events] %s %s", event.Type, data)
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
