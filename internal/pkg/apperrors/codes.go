package apperrors

// ErrorCode is the machine-readable error identifier returned to clients.
type ErrorCode string

const (
	CodeInternalError ErrorCode = "INTERNAL_ERROR"
	CodeValidation    ErrorCode = "VALIDATION_FAILED"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	CodeUnauthorized  ErrorCode = "UNAUTHORIZED"
	CodeRateLimited   ErrorCode = "RATE_LIMITED"

	// Order and subscription lifecycle
	CodeInvalidState          ErrorCode = "INVALID_STATE"
	CodeVersionConflict       ErrorCode = "VERSION_CONFLICT"
	CodeRefundExceedsCaptured ErrorCode = "REFUND_EXCEEDS_CAPTURED"

	// Idempotency
	CodeIdempotencyConflict   ErrorCode = "IDEMPOTENCY_CONFLICT"
	CodeIdempotencyInProgress ErrorCode = "IDEMPOTENCY_IN_PROGRESS"

	// Gateway
	CodeGatewayUnavailable ErrorCode = "GATEWAY_UNAVAILABLE"
	CodeGatewayDeclined    ErrorCode = "GATEWAY_DECLINED"

	// Webhooks
	CodeSignatureInvalid ErrorCode = "SIGNATURE_INVALID"
)
