package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/apperrors"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/logger"
)

const AdminKeyHeader = "X-Admin-Key"

// AdminKey guards operator routes with a static shared key.
func AdminKey(expected string) fiber.Handler {
	want := []byte(expected)
	return func(c *fiber.Ctx) error {
		got := strings.TrimSpace(c.Get(AdminKeyHeader))
		if got == "" {
			return apperrors.Unauthorized("Missing admin key")
		}
		if len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			logger.Warnf(c.UserContext(), "[Admin] Rejected admin call to %s from %s", c.Path(), c.IP())
			return apperrors.Unauthorized("Invalid admin key")
		}
		return c.Next()
	}
}
