package idempotency

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/apperrors"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/correlation"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/logger"
)

const (
	HeaderKey    = "Idempotency-Key"
	maxKeyLength = 255
)

// excludedHeaders are per-response transport headers that are regenerated
// on replay rather than stored.
var excludedHeaders = map[string]struct{}{
	"content-length":    {},
	"date":              {},
	"server":            {},
	"connection":        {},
	"transfer-encoding": {},
	strings.ToLower(correlation.HeaderName): {},
}

// Middleware applies Idempotency-Key semantics to write requests. Requests
// without the header pass through untouched.
func Middleware(store *Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := strings.TrimSpace(c.Get(HeaderKey))
		if key == "" || !isWrite(c.Method()) {
			return c.Next()
		}
		if len(key) > maxKeyLength {
			return apperrors.BadRequest("Idempotency-Key must be at most 255 characters")
		}

		ctx := c.UserContext()
		hash := Fingerprint(c.Method(), c.Path(), c.Body())

		claim, err := store.Claim(ctx, key, c.Method(), c.Path(), hash)
		if err != nil {
			return err
		}

		switch claim.Outcome {
		case OutcomeReplay:
			logger.Infof(ctx, "[Idempotency] Replaying stored response for key %s", key)
			return replay(c, claim)
		case OutcomeConflict:
			if claim.Reason == ReasonInProgress {
				return apperrors.New(apperrors.CodeIdempotencyInProgress,
					"A request with this Idempotency-Key is still being processed", http.StatusConflict)
			}
			return apperrors.New(apperrors.CodeIdempotencyConflict,
				"Idempotency-Key was already used for a different request", http.StatusConflict)
		}

		if err := c.Next(); err != nil {
			if herr := c.App().Config().ErrorHandler(c, err); herr != nil {
				releaseClaim(c, store, claim)
				return herr
			}
		}

		status := c.Response().StatusCode()
		if status >= http.StatusInternalServerError {
			releaseClaim(c, store, claim)
			return nil
		}

		body := append([]byte(nil), c.Response().Body()...)
		if err := store.SaveResponse(ctx, claim.Record, status, snapshotHeaders(c), body); err != nil {
			logger.Warnf(ctx, "[Idempotency] Could not store response for key %s: %v", key, err)
		}
		return nil
	}
}

func replay(c *fiber.Ctx, claim *Claim) error {
	rec := claim.Record
	for name, values := range rec.ResponseHeaders.Data() {
		c.Response().Header.Del(name)
		for _, v := range values {
			c.Response().Header.Add(name, v)
		}
	}
	c.Status(rec.ResponseStatus)
	return c.Send(rec.ResponseBody)
}

func releaseClaim(c *fiber.Ctx, store *Store, claim *Claim) {
	if err := store.Release(c.UserContext(), claim.Record); err != nil {
		logger.Warnf(c.UserContext(), "[Idempotency] Could not release key %s: %v", claim.Record.Key, err)
	}
}

func snapshotHeaders(c *fiber.Ctx) map[string][]string {
	headers := map[string][]string{}
	c.Response().Header.VisitAll(func(k, v []byte) {
		name := string(k)
		if _, skip := excludedHeaders[strings.ToLower(name)]; skip {
			return
		}
		headers[name] = append(headers[name], string(v))
	})
	return headers
}

func isWrite(method string) bool {
	switch method {
	case fiber.MethodPost, fiber.MethodPut, fiber.MethodPatch, fiber.MethodDelete:
		return true
	}
	return false
}
