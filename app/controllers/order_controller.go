package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/orders"
)

// OrderController exposes the order state machine.
type OrderController struct {
	orders *orders.Service
}

func NewOrderController(svc *orders.Service) *OrderController {
	return &OrderController{orders: svc}
}

// Create handles POST /orders
func (oc *OrderController) Create(c *fiber.Ctx) error {
	var in orders.CreateInput
	if err := parseBody(c, &in, true); err != nil {
		return err
	}
	order, err := oc.orders.Create(c.UserContext(), in)
	if err != nil {
		return err
	}
	c.Location("/api/v1/orders/" + order.ID)
	return c.Status(fiber.StatusCreated).JSON(order)
}

// Get handles GET /orders/:id
func (oc *OrderController) Get(c *fiber.Ctx) error {
	order, err := oc.orders.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(order)
}

// Transactions handles GET /orders/:id/transactions
func (oc *OrderController) Transactions(c *fiber.Ctx) error {
	txns, err := oc.orders.Transactions(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"orderId": c.Params("id"), "transactions": txns})
}

func (oc *OrderController) Authorize(c *fiber.Ctx) error {
	var in orders.AuthorizeInput
	if err := parseBody(c, &in, false); err != nil {
		return err
	}
	order, err := oc.orders.Authorize(c.UserContext(), c.Params("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(order)
}

func (oc *OrderController) Capture(c *fiber.Ctx) error {
	order, err := oc.orders.Capture(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(order)
}

func (oc *OrderController) Void(c *fiber.Ctx) error {
	order, err := oc.orders.Void(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(order)
}

// Refund handles POST /orders/:id/refund with an optional {amountCents}.
func (oc *OrderController) Refund(c *fiber.Ctx) error {
	var in orders.RefundInput
	if err := parseBody(c, &in, false); err != nil {
		return err
	}
	order, err := oc.orders.Refund(c.UserContext(), c.Params("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(order)
}

func (oc *OrderController) Cancel(c *fiber.Ctx) error {
	order, err := oc.orders.Cancel(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(order)
}
