// Package gateway is the boundary to the external payment processor. A
// strategy Client is chosen once at startup and wrapped in an Adapter that
// adds per-attempt timeouts, bounded retries and a circuit breaker.
package gateway

import "context"

type Operation string

const (
	OpAuthorize Operation = "authorize"
	OpCapture   Operation = "capture"
	OpVoid      Operation = "void"
	OpRefund    Operation = "refund"
)

// Request carries everything a strategy may need for one call. Amounts are
// minor units.
//
// The Adapter resends the same Request after a timeout, so a strategy that
// moves money must hand the gateway a stable duplicate key derived from
// OrderID, ExternalOrderID or CorrelationID. A retry of an attempt the
// gateway already processed is then rejected as a duplicate instead of
// creating a second hold, capture or refund.
type Request struct {
	OrderID                string
	ExternalOrderID        string
	CustomerID             string
	Currency               string
	AmountCents            int64
	ReferenceTransactionID string
	AccountNumber          string
	PaymentToken           string
	CorrelationID          string
}

// Result is the normalized outcome of a successful call.
type Result struct {
	Success       bool
	TransactionID string
	Message       string
	ResponseCode  string
	AccountNumber string
}

// Client is implemented by every gateway strategy and by Adapter.
// Implementations return a non-nil error for anything but an approval.
type Client interface {
	Name() string
	Authorize(ctx context.Context, req Request) (*Result, error)
	Capture(ctx context.Context, req Request) (*Result, error)
	Void(ctx context.Context, req Request) (*Result, error)
	Refund(ctx context.Context, req Request) (*Result, error)
}
