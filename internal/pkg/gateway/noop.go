package gateway

import (
	"context"

	"github.com/google/uuid"
)

// NoopClient approves everything without leaving the process.
type NoopClient struct{}

func NewNoopClient() *NoopClient {
	return &NoopClient{}
}

func (c *NoopClient) Name() string {
	return "noop"
}

func (c *NoopClient) approve(ctx context.Context, msg string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Result{
		Success:       true,
		TransactionID: "noop-" + uuid.NewString(),
		Message:       msg,
		ResponseCode:  "1",
		AccountNumber: "XXXX1111",
	}, nil
}

func (c *NoopClient) Authorize(ctx context.Context, _ Request) (*Result, error) {
	return c.approve(ctx, "authorized by noop gateway")
}

func (c *NoopClient) Capture(ctx context.Context, _ Request) (*Result, error) {
	return c.approve(ctx, "captured by noop gateway")
}

func (c *NoopClient) Void(ctx context.Context, _ Request) (*Result, error) {
	return c.approve(ctx, "voided by noop gateway")
}

func (c *NoopClient) Refund(ctx context.Context, _ Request) (*Result, error) {
	return c.approve(ctx, "refunded by noop gateway")
}
