package gateway_test

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/apperrors"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/correlation"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/gateway"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/gateway/gatewaytest"
)

func fastPolicy(attempts int) gateway.Policy {
	return gateway.Policy{
		Timeout:     200 * time.Millisecond,
		MaxAttempts: attempts,
		BackoffBase: time.Millisecond,
		BackoffMax:  2 * time.Millisecond,
	}
}

func TestBackoffIsExponentialAndCapped(t *testing.T) {
	p := gateway.Policy{BackoffBase: 200 * time.Millisecond, BackoffMax: 2 * time.Second}

	assert.Equal(t, 200*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 800*time.Millisecond, p.Backoff(3))
	assert.Equal(t, 1600*time.Millisecond, p.Backoff(4))
	assert.Equal(t, 2*time.Second, p.Backoff(5))
	assert.Equal(t, 2*time.Second, p.Backoff(30))
	assert.Equal(t, time.Duration(0), p.Backoff(0))
}

func TestAdapterRetriesRetryableFaults(t *testing.T) {
	fake := gatewaytest.New().
		Fail(gateway.OpAuthorize, gateway.Retryable(gateway.OpAuthorize, "HTTP_503", "unavailable", nil)).
		Fail(gateway.OpAuthorize, errors.New("connection reset"))
	a := gateway.NewAdapter(fake, fastPolicy(3), gateway.NewBreaker(10, time.Minute))

	res, err := a.Authorize(context.Background(), gateway.Request{AmountCents: 1999})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, fake.Count(gateway.OpAuthorize))
}

func TestAdapterDoesNotRetryFatalFaults(t *testing.T) {
	fake := gatewaytest.New().Fail(gateway.OpCapture, gateway.Declined(gateway.OpCapture, "2", "This transaction has been declined."))
	a := gateway.NewAdapter(fake, fastPolicy(3), gateway.NewBreaker(1, time.Minute))

	_, err := a.Capture(context.Background(), gateway.Request{})
	require.Error(t, err)
	assert.False(t, gateway.IsRetryable(err))
	assert.Equal(t, 1, fake.Count(gateway.OpCapture))

	appErr := gateway.ToAppError(err)
	assert.Equal(t, apperrors.CodeGatewayDeclined, appErr.Code)
	assert.Equal(t, http.StatusPaymentRequired, appErr.HTTPCode)

	// declines leave the breaker closed
	assert.Equal(t, gateway.BreakerClosed, a.BreakerState())
}

func TestAdapterUnsuccessfulResultIsDecline(t *testing.T) {
	fake := gatewaytest.New().On(gateway.OpVoid, gatewaytest.Response{Result: &gateway.Result{Success: false, ResponseCode: "2", Message: "nope"}})
	a := gateway.NewAdapter(fake, fastPolicy(3), nil)

	_, err := a.Void(context.Background(), gateway.Request{})
	require.Error(t, err)
	var gwErr *gateway.Error
	require.ErrorAs(t, err, &gwErr)
	assert.True(t, gwErr.Declined)
	assert.Equal(t, 1, fake.Count(gateway.OpVoid))
}

func TestAdapterExhaustionMapsToUnavailable(t *testing.T) {
	boom := gateway.Retryable(gateway.OpRefund, "HTTP_500", "boom", nil)
	fake := gatewaytest.New().Fail(gateway.OpRefund, boom).Fail(gateway.OpRefund, boom).Fail(gateway.OpRefund, boom)
	a := gateway.NewAdapter(fake, fastPolicy(3), gateway.NewBreaker(10, time.Minute))

	_, err := a.Refund(context.Background(), gateway.Request{})
	require.Error(t, err)
	assert.Equal(t, 3, fake.Count(gateway.OpRefund))

	appErr := gateway.ToAppError(err)
	assert.Equal(t, apperrors.CodeGatewayUnavailable, appErr.Code)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.HTTPCode)
}

func TestAdapterTimeoutIsRetryable(t *testing.T) {
	fake := gatewaytest.New()
	var calls atomic.Int32
	fake.Before = func(ctx context.Context, op gateway.Operation, req gateway.Request) {
		if calls.Add(1) == 1 {
			time.Sleep(150 * time.Millisecond)
		}
	}
	policy := fastPolicy(2)
	policy.Timeout = 20 * time.Millisecond
	a := gateway.NewAdapter(fake, policy, nil)

	res, err := a.Authorize(context.Background(), gateway.Request{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAdapterCircuitOpensAndShortCircuits(t *testing.T) {
	boom := gateway.Retryable(gateway.OpAuthorize, "HTTP_502", "bad gateway", nil)
	fake := gatewaytest.New().Fail(gateway.OpAuthorize, boom).Fail(gateway.OpAuthorize, boom)
	a := gateway.NewAdapter(fake, fastPolicy(5), gateway.NewBreaker(2, time.Hour))

	_, err := a.Authorize(context.Background(), gateway.Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrCircuitOpen)
	assert.Equal(t, 2, fake.Count(gateway.OpAuthorize))
	assert.Equal(t, gateway.BreakerOpen, a.BreakerState())

	_, err = a.Authorize(context.Background(), gateway.Request{})
	assert.ErrorIs(t, err, gateway.ErrCircuitOpen)
	assert.Equal(t, 2, fake.Count(gateway.OpAuthorize), "no call while open")
	assert.Equal(t, apperrors.CodeGatewayUnavailable, gateway.ToAppError(err).Code)
}

func TestAdapterPropagatesCorrelationID(t *testing.T) {
	fake := gatewaytest.New()
	a := gateway.NewAdapter(fake, fastPolicy(1), nil)

	ctx := correlation.WithID(context.Background(), "corr-42")
	_, err := a.Authorize(ctx, gateway.Request{})
	require.NoError(t, err)

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "corr-42", calls[0].Req.CorrelationID)
}

func TestAdapterStopsWhenCallerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fake := gatewaytest.New()
	var calls atomic.Int32
	fake.Before = func(cctx context.Context, op gateway.Operation, req gateway.Request) {
		calls.Add(1)
		cancel()
		time.Sleep(100 * time.Millisecond)
	}
	a := gateway.NewAdapter(fake, fastPolicy(3), gateway.NewBreaker(1, time.Hour))

	_, err := a.Authorize(ctx, gateway.Request{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, gateway.BreakerClosed, a.BreakerState())
}

func TestAdapterCancelledTrialDoesNotWedgeBreaker(t *testing.T) {
	fake := gatewaytest.New().
		Fail(gateway.OpAuthorize, gateway.Retryable(gateway.OpAuthorize, "HTTP_503", "unavailable", nil))
	var cancelNext atomic.Bool
	fake.Before = func(cctx context.Context, op gateway.Operation, req gateway.Request) {
		if cancelNext.Load() {
			<-cctx.Done()
		}
	}
	a := gateway.NewAdapter(fake, fastPolicy(1), gateway.NewBreaker(1, 20*time.Millisecond))

	_, err := a.Authorize(context.Background(), gateway.Request{})
	require.Error(t, err)
	require.Equal(t, gateway.BreakerOpen, a.BreakerState())

	time.Sleep(30 * time.Millisecond)
	cancelNext.Store(true)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = a.Authorize(ctx, gateway.Request{})
	require.Error(t, err)
	var gwErr *gateway.Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "CANCELLED", gwErr.Code)

	cancelNext.Store(false)
	res, err := a.Authorize(context.Background(), gateway.Request{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, gateway.BreakerClosed, a.BreakerState())
}
