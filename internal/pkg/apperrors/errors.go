package apperrors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AppError carries everything the HTTP layer needs to render a failure.
type AppError struct {
	Code     ErrorCode              `json:"error"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`
	Err      error                  `json:"-"`
	HTTPCode int                    `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New builds an AppError without a cause.
func New(code ErrorCode, message string, httpCode int) *AppError {
	return &AppError{Code: code, Message: message, HTTPCode: httpCode}
}

// Wrap builds an AppError around an underlying error.
func Wrap(err error, code ErrorCode, message string, httpCode int) *AppError {
	return &AppError{Code: code, Message: message, Err: err, HTTPCode: httpCode}
}

// WithDetails attaches structured context for the client.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// IsServerError reports whether the failure is the server's fault.
func (e *AppError) IsServerError() bool {
	return e.HTTPCode >= http.StatusInternalServerError
}

// AsAppError unwraps err into an *AppError when possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err is an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// Internal wraps an unexpected error. The message stays generic.
func Internal(err error) *AppError {
	return Wrap(err, CodeInternalError, "Internal server error", http.StatusInternalServerError)
}

// Validation reports invalid input; details map field names to failed rules.
func Validation(details map[string]interface{}) *AppError {
	return New(CodeValidation, "Validation failed", http.StatusBadRequest).WithDetails(details)
}

// BadRequest reports an unparsable request.
func BadRequest(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

// NotFound reports an unknown resource id.
func NotFound(resource, id string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s %s not found", resource, id), http.StatusNotFound).
		WithDetails(map[string]interface{}{"resource": resource, "id": id})
}

// AlreadyExists reports a unique-key collision on create.
func AlreadyExists(resource, field, value string) *AppError {
	return New(CodeAlreadyExists, fmt.Sprintf("%s with %s %s already exists", resource, field, value), http.StatusConflict).
		WithDetails(map[string]interface{}{field: value})
}

// InvalidState reports an operation that is not legal from the current status.
// The order or subscription is left untouched.
func InvalidState(resource, operation, required, actual string) *AppError {
	msg := fmt.Sprintf("cannot %s %s in state %s (requires %s)", operation, resource, actual, required)
	return New(CodeInvalidState, msg, http.StatusConflict).WithDetails(map[string]interface{}{
		"operation": operation,
		"required":  required,
		"actual":    actual,
	})
}

// VersionConflict reports a lost compare-and-swap against a concurrent writer.
func VersionConflict(resource, id string) *AppError {
	return New(CodeVersionConflict, fmt.Sprintf("%s %s was modified concurrently, re-read and retry", resource, id), http.StatusConflict).
		WithDetails(map[string]interface{}{"resource": resource, "id": id})
}

// Unauthorized reports missing or invalid credentials.
func Unauthorized(message string) *AppError {
	return New(CodeUnauthorized, message, http.StatusUnauthorized)
}

// SignatureInvalid reports a webhook that failed authentication.
func SignatureInvalid() *AppError {
	return New(CodeSignatureInvalid, "Invalid signature", http.StatusUnauthorized)
}

// GatewayDeclined reports a business rejection by the payment gateway.
func GatewayDeclined(operation, reason string, err error) *AppError {
	return Wrap(err, CodeGatewayDeclined, fmt.Sprintf("%s declined by payment gateway: %s", operation, reason), http.StatusPaymentRequired).
		WithDetails(map[string]interface{}{"operation": operation})
}

// GatewayUnavailable reports an upstream outage after retries or while the breaker is open.
func GatewayUnavailable(operation string, err error) *AppError {
	return Wrap(err, CodeGatewayUnavailable, "Payment gateway temporarily unavailable", http.StatusServiceUnavailable).
		WithDetails(map[string]interface{}{"operation": operation})
}
