// Package gatewaytest provides a scriptable gateway client for tests.
package gatewaytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/gateway"
)

// Response is one scripted reply.
type Response struct {
	Result *gateway.Result
	Err    error
}

// Call records a request seen by the fake.
type Call struct {
	Op  gateway.Operation
	Req gateway.Request
}

// Fake approves every call unless a response was queued for the operation.
type Fake struct {
	mu     sync.Mutex
	queued map[gateway.Operation][]Response
	calls  []Call

	// Before, when set, runs before each call is answered.
	Before func(ctx context.Context, op gateway.Operation, req gateway.Request)
}

func New() *Fake {
	return &Fake{queued: map[gateway.Operation][]Response{}}
}

// On queues replies for op, consumed in order.
func (f *Fake) On(op gateway.Operation, responses ...Response) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[op] = append(f.queued[op], responses...)
	return f
}

// Fail queues err for op.
func (f *Fake) Fail(op gateway.Operation, err error) *Fake {
	return f.On(op, Response{Err: err})
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Count returns how many times op was called.
func (f *Fake) Count(op gateway.Operation) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (f *Fake) Name() string {
	return "fake"
}

func (f *Fake) Authorize(ctx context.Context, req gateway.Request) (*gateway.Result, error) {
	return f.answer(ctx, gateway.OpAuthorize, req)
}

func (f *Fake) Capture(ctx context.Context, req gateway.Request) (*gateway.Result, error) {
	return f.answer(ctx, gateway.OpCapture, req)
}

func (f *Fake) Void(ctx context.Context, req gateway.Request) (*gateway.Result, error) {
	return f.answer(ctx, gateway.OpVoid, req)
}

func (f *Fake) Refund(ctx context.Context, req gateway.Request) (*gateway.Result, error) {
	return f.answer(ctx, gateway.OpRefund, req)
}

func (f *Fake) answer(ctx context.Context, op gateway.Operation, req gateway.Request) (*gateway.Result, error) {
	if f.Before != nil {
		f.Before(ctx, op, req)
	}

	f.mu.Lock()
	f.calls = append(f.calls, Call{Op: op, Req: req})
	n := len(f.calls)
	var resp *Response
	if q := f.queued[op]; len(q) > 0 {
		resp = &q[0]
		f.queued[op] = q[1:]
	}
	f.mu.Unlock()

	if resp != nil {
		return resp.Result, resp.Err
	}
	return &gateway.Result{
		Success:       true,
		TransactionID: fmt.Sprintf("fake-%s-%d", op, n),
		Message:       "approved",
		ResponseCode:  "1",
		AccountNumber: "XXXX1111",
	}, nil
}
