package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvalidStateNamesRequiredAndActual(t *testing.T) {
	err := InvalidState("order", "capture", "AUTHORIZED", "PENDING")

	assert.Equal(t, CodeInvalidState, err.Code)
	assert.Equal(t, http.StatusConflict, err.HTTPCode)
	assert.Contains(t, err.Message, "AUTHORIZED")
	assert.Contains(t, err.Message, "PENDING")
	assert.Equal(t, "AUTHORIZED", err.Details["required"])
	assert.Equal(t, "PENDING", err.Details["actual"])
}

func TestAsAppErrorThroughWrapping(t *testing.T) {
	base := NotFound("order", "o-1")
	wrapped := fmt.Errorf("load: %w", base)

	got, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Same(t, base, got)
	assert.True(t, HasCode(wrapped, CodeNotFound))
	assert.False(t, HasCode(errors.New("plain"), CodeNotFound))
}

func TestServerErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		server bool
		status int
	}{
		{"internal", Internal(errors.New("db down")), true, http.StatusInternalServerError},
		{"gateway unavailable", GatewayUnavailable("authorize", nil), true, http.StatusServiceUnavailable},
		{"declined", GatewayDeclined("authorize", "card declined", nil), false, http.StatusPaymentRequired},
		{"signature", SignatureInvalid(), false, http.StatusUnauthorized},
		{"version", VersionConflict("order", "o-1"), false, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.server, tt.err.IsServerError())
			assert.Equal(t, tt.status, tt.err.HTTPCode)
		})
	}
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := errors.New("timeout")
	err := GatewayUnavailable("capture", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "timeout")
}
