package controllers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/apperrors"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/correlation"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/logger"
)

// errorBody is the single error shape of the API.
type errorBody struct {
	Error         apperrors.ErrorCode    `json:"error"`
	Message       string                 `json:"message"`
	Details       map[string]interface{} `json:"details,omitempty"`
	CorrelationID string                 `json:"correlation_id"`
}

// ErrorHandler is installed as the fiber ErrorHandler. Every failure leaves
// the API through here, carrying the correlation id.
func ErrorHandler(c *fiber.Ctx, err error) error {
	appErr := toAppError(err)

	ctx := c.UserContext()
	switch {
	case appErr.IsServerError():
		logger.Errorf(ctx, "[HTTP] %s %s failed: %v", c.Method(), c.Path(), err)
	case appErr.Code == apperrors.CodeSignatureInvalid || appErr.Code == apperrors.CodeUnauthorized:
		logger.Warnf(ctx, "[HTTP] %s %s: %s", c.Method(), c.Path(), appErr.Message)
	default:
		logger.Infof(ctx, "[HTTP] %s %s: %s %s", c.Method(), c.Path(), appErr.Code, appErr.Message)
	}

	body := errorBody{
		Error:         appErr.Code,
		Message:       appErr.Message,
		CorrelationID: correlation.FromFiber(c),
	}
	if !appErr.IsServerError() {
		body.Details = appErr.Details
	}
	return c.Status(appErr.HTTPCode).JSON(body)
}

func toAppError(err error) *apperrors.AppError {
	if appErr, ok := apperrors.AsAppError(err); ok {
		if appErr.HTTPCode == 0 {
			appErr.HTTPCode = http.StatusInternalServerError
		}
		return appErr
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		switch fiberErr.Code {
		case fiber.StatusNotFound:
			return apperrors.New(apperrors.CodeNotFound, fiberErr.Message, fiberErr.Code)
		case fiber.StatusMethodNotAllowed, fiber.StatusRequestEntityTooLarge, fiber.StatusUnsupportedMediaType, fiber.StatusBadRequest:
			return apperrors.New(apperrors.CodeValidation, fiberErr.Message, fiberErr.Code)
		case fiber.StatusTooManyRequests:
			return apperrors.New(apperrors.CodeRateLimited, "Too many requests", fiberErr.Code)
		}
		if fiberErr.Code < http.StatusInternalServerError {
			return apperrors.New(apperrors.CodeValidation, fiberErr.Message, fiberErr.Code)
		}
	}

	return apperrors.Internal(err)
}

// parseBody decodes an optional JSON body; an empty body leaves out untouched.
func parseBody(c *fiber.Ctx, out interface{}, required bool) error {
	if len(c.Body()) == 0 {
		if required {
			return apperrors.BadRequest("Request body is required")
		}
		return nil
	}
	if err := c.App().Config().JSONDecoder(c.Body(), out); err != nil {
		return apperrors.BadRequest("Malformed JSON body")
	}
	return nil
}
