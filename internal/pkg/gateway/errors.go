package gateway

import (
	"errors"
	"fmt"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/apperrors"
)

// ErrCircuitOpen is returned without calling the gateway while the breaker
// sheds load.
var ErrCircuitOpen = errors.New("gateway circuit open")

// Error classifies a failed gateway call.
type Error struct {
	Op        Operation
	Retryable bool
	Declined  bool
	Code      string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("gateway %s failed [%s]: %s", e.Op, e.Code, msg)
	}
	return fmt.Sprintf("gateway %s failed: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable builds a transient failure.
func Retryable(op Operation, code, message string, err error) *Error {
	return &Error{Op: op, Retryable: true, Code: code, Message: message, Err: err}
}

// Declined builds a business rejection by the processor.
func Declined(op Operation, code, message string) *Error {
	return &Error{Op: op, Declined: true, Code: code, Message: message}
}

// Fatal builds a non-retryable failure that is not a decline, such as an
// invalid request.
func Fatal(op Operation, code, message string, err error) *Error {
	return &Error{Op: op, Code: code, Message: message, Err: err}
}

// IsRetryable reports whether err may succeed on another attempt. Errors
// that are not classified are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Retryable
	}
	return true
}

// ToAppError maps a gateway failure onto the HTTP facing taxonomy: declines
// and invalid requests are business failures (402), everything else means
// the gateway is unavailable (503).
func ToAppError(err error) *apperrors.AppError {
	var gwErr *Error
	if errors.As(err, &gwErr) && !gwErr.Retryable {
		reason := gwErr.Message
		if reason == "" {
			reason = "rejected by payment gateway"
		}
		return apperrors.GatewayDeclined(string(gwErr.Op), reason, err)
	}
	op := ""
	if gwErr != nil {
		op = string(gwErr.Op)
	}
	return apperrors.GatewayUnavailable(op, err)
}
