package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/correlation"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/logger"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/metrics"
)

// Policy bounds a single logical gateway operation.
type Policy struct {
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// DefaultPolicy matches the documented configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:     5 * time.Second,
		MaxAttempts: 3,
		BackoffBase: 200 * time.Millisecond,
		BackoffMax:  2 * time.Second,
	}
}

// Backoff returns the wait before the attempt following attempt n (1-based):
// base * 2^(n-1), capped at max.
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 || p.BackoffBase <= 0 {
		return 0
	}
	d := p.BackoffBase
	for i := 1; i < n; i++ {
		d *= 2
		if p.BackoffMax > 0 && d >= p.BackoffMax {
			return p.BackoffMax
		}
	}
	if p.BackoffMax > 0 && d > p.BackoffMax {
		return p.BackoffMax
	}
	return d
}

// Adapter composes per-attempt timeout, retry with exponential backoff and a
// circuit breaker around a strategy Client. It implements Client itself.
type Adapter struct {
	client  Client
	policy  Policy
	breaker *Breaker
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewAdapter(client Client, policy Policy, breaker *Breaker) *Adapter {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if breaker == nil {
		breaker = NewBreaker(5, 30*time.Second)
	}
	breaker.onChange = func(s BreakerState) {
		metrics.GatewayBreakerState.Set(float64(s))
	}
	return &Adapter{
		client:  client,
		policy:  policy,
		breaker: breaker,
		sleep:   sleepContext,
	}
}

func (a *Adapter) Name() string {
	return a.client.Name()
}

// BreakerState exposes the breaker for readiness reporting.
func (a *Adapter) BreakerState() BreakerState {
	return a.breaker.State()
}

func (a *Adapter) Authorize(ctx context.Context, req Request) (*Result, error) {
	return a.execute(ctx, OpAuthorize, req, a.client.Authorize)
}

func (a *Adapter) Capture(ctx context.Context, req Request) (*Result, error) {
	return a.execute(ctx, OpCapture, req, a.client.Capture)
}

func (a *Adapter) Void(ctx context.Context, req Request) (*Result, error) {
	return a.execute(ctx, OpVoid, req, a.client.Void)
}

func (a *Adapter) Refund(ctx context.Context, req Request) (*Result, error) {
	return a.execute(ctx, OpRefund, req, a.client.Refund)
}

type callFunc func(ctx context.Context, req Request) (*Result, error)

func (a *Adapter) execute(ctx context.Context, op Operation, req Request, call callFunc) (*Result, error) {
	if req.CorrelationID == "" {
		req.CorrelationID = correlation.FromContext(ctx)
	}

	var lastErr error
	for attempt := 1; attempt <= a.policy.MaxAttempts; attempt++ {
		if !a.breaker.Allow() {
			metrics.GatewayCalls.WithLabelValues(string(op), "short_circuit").Inc()
			logger.Warnf(ctx, "[Gateway] %s %s rejected: circuit open", a.client.Name(), op)
			return nil, Retryable(op, "CIRCUIT_OPEN", "circuit breaker open", ErrCircuitOpen)
		}

		res, err := a.attempt(ctx, op, req, call)
		if err == nil {
			a.breaker.RecordSuccess()
			metrics.GatewayCalls.WithLabelValues(string(op), "success").Inc()
			return res, nil
		}

		if !IsRetryable(err) {
			// a decline is a healthy answer
			a.breaker.RecordSuccess()
			metrics.GatewayCalls.WithLabelValues(string(op), "fatal").Inc()
			logger.Infof(ctx, "[Gateway] %s %s rejected: %v", a.client.Name(), op, err)
			return nil, err
		}

		lastErr = err
		if ctx.Err() != nil {
			// caller went away; not the gateway's fault
			a.breaker.Abort()
			metrics.GatewayCalls.WithLabelValues(string(op), "cancelled").Inc()
			break
		}
		a.breaker.RecordFailure()
		metrics.GatewayCalls.WithLabelValues(string(op), "retryable").Inc()

		if attempt == a.policy.MaxAttempts {
			break
		}

		wait := a.policy.Backoff(attempt)
		logger.Warnf(ctx, "[Gateway] %s %s attempt %d/%d failed, retrying in %s: %v",
			a.client.Name(), op, attempt, a.policy.MaxAttempts, wait, err)
		if err := a.sleep(ctx, wait); err != nil {
			break
		}
	}

	logger.Errorf(ctx, "[Gateway] %s %s failed after retries: %v", a.client.Name(), op, lastErr)
	return nil, lastErr
}

// attempt runs one call bounded by the policy timeout. Exceeding it is a
// retryable fault.
func (a *Adapter) attempt(ctx context.Context, op Operation, req Request, call callFunc) (*Result, error) {
	cctx, cancel := context.WithTimeout(ctx, a.policy.Timeout)
	defer cancel()

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := call(cctx, req)
		done <- outcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		return normalize(op, out.res, out.err)
	case <-cctx.Done():
		if ctx.Err() != nil {
			return nil, Retryable(op, "CANCELLED", "request cancelled", ctx.Err())
		}
		return nil, Retryable(op, "TIMEOUT", "gateway call timed out", context.DeadlineExceeded)
	}
}

func normalize(op Operation, res *Result, err error) (*Result, error) {
	if err != nil {
		var gwErr *Error
		if errors.As(err, &gwErr) {
			return nil, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, Retryable(op, "TIMEOUT", "gateway call timed out", err)
		}
		return nil, Retryable(op, "TRANSPORT", err.Error(), err)
	}
	if res == nil {
		return nil, Retryable(op, "EMPTY_RESPONSE", "gateway returned no result", nil)
	}
	if !res.Success {
		return nil, Declined(op, res.ResponseCode, res.Message)
	}
	return res, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
