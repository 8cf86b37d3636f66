package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/correlation"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/webhook"
)

const SourceHeader = "X-Source"

type WebhookController struct {
	webhooks *webhook.Service
}

func NewWebhookController(svc *webhook.Service) *WebhookController {
	return &WebhookController{webhooks: svc}
}

// Receive handles POST /webhooks. The raw body bytes are what is verified
// and stored.
func (wc *WebhookController) Receive(c *fiber.Ctx) error {
	event, err := wc.webhooks.Ingest(c.UserContext(), webhook.Delivery{
		Source:    c.Get(SourceHeader),
		Signature: c.Get(webhook.SignatureHeader),
		Payload:   append([]byte(nil), c.Body()...),
	})
	if err != nil {
		return err
	}

	c.Location("/api/v1/webhooks/" + event.ID)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":            event.ID,
		"status":        "accepted",
		"correlationId": correlation.FromFiber(c),
	})
}

// Get handles GET /webhooks/:id; the payload is never echoed.
func (wc *WebhookController) Get(c *fiber.Ctx) error {
	event, err := wc.webhooks.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(event)
}
