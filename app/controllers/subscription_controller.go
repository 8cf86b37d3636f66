package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/subscriptions"
)

type SubscriptionController struct {
	subscriptions *subscriptions.Service
}

func NewSubscriptionController(svc *subscriptions.Service) *SubscriptionController {
	return &SubscriptionController{subscriptions: svc}
}

// Create handles POST /subscriptions
func (sc *SubscriptionController) Create(c *fiber.Ctx) error {
	var in subscriptions.CreateInput
	if err := parseBody(c, &in, true); err != nil {
		return err
	}
	sub, err := sc.subscriptions.Create(c.UserContext(), in)
	if err != nil {
		return err
	}
	c.Location("/api/v1/subscriptions/" + sub.ID)
	return c.Status(fiber.StatusCreated).JSON(sub)
}

func (sc *SubscriptionController) Get(c *fiber.Ctx) error {
	sub, err := sc.subscriptions.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(sub)
}

func (sc *SubscriptionController) Transactions(c *fiber.Ctx) error {
	txns, err := sc.subscriptions.Transactions(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"subscriptionId": c.Params("id"), "transactions": txns})
}

func (sc *SubscriptionController) Renew(c *fiber.Ctx) error {
	sub, err := sc.subscriptions.Renew(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(sub)
}

func (sc *SubscriptionController) Cancel(c *fiber.Ctx) error {
	sub, err := sc.subscriptions.Cancel(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(sub)
}
