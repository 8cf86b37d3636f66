package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/correlation"
)

// CorrelationHandlers returns, in order, the handlers that establish the
// request's correlation id: drop an unusable client id, reuse or generate
// one (echoed in the response header), then thread it into the user context.
func CorrelationHandlers() []fiber.Handler {
	return []fiber.Handler{
		sanitizeCorrelationHeader,
		requestid.New(requestid.Config{
			Header:     correlation.HeaderName,
			Generator:  correlation.New,
			ContextKey: correlation.LocalsKey,
		}),
		correlationContext,
	}
}

func sanitizeCorrelationHeader(c *fiber.Ctx) error {
	if id := c.Get(correlation.HeaderName); id != "" && !correlation.Valid(id) {
		c.Request().Header.Del(correlation.HeaderName)
	}
	return c.Next()
}

func correlationContext(c *fiber.Ctx) error {
	if id := correlation.FromFiber(c); id != "" {
		c.SetUserContext(correlation.WithID(c.UserContext(), id))
	}
	return c.Next()
}
