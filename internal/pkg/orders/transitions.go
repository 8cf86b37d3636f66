package orders

import (
	"github.com/rahulsingh2997/springboot-payment-orchestrator/app/models"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/apperrors"
)

// Operation is a client-driven order transition.
type Operation string

const (
	OpAuthorize Operation = "authorize"
	OpCapture   Operation = "capture"
	OpVoid      Operation = "void"
	OpRefund    Operation = "refund"
	OpCancel    Operation = "cancel"
)

type transition struct {
	from models.OrderStatus
	to   models.OrderStatus
}

var transitions = map[Operation]transition{
	OpAuthorize: {from: models.OrderStatusPending, to: models.OrderStatusAuthorized},
	OpCapture:   {from: models.OrderStatusAuthorized, to: models.OrderStatusCaptured},
	OpVoid:      {from: models.OrderStatusAuthorized, to: models.OrderStatusVoided},
	OpRefund:    {from: models.OrderStatusCaptured, to: models.OrderStatusRefunded},
	OpCancel:    {from: models.OrderStatusPending, to: models.OrderStatusCancelled},
}

// Target returns the status op moves an order into from current, or an
// INVALID_STATE error naming the required and actual status.
func Target(op Operation, current models.OrderStatus) (models.OrderStatus, error) {
	t, ok := transitions[op]
	if !ok {
		return "", apperrors.BadRequest("unknown order operation " + string(op))
	}
	if current != t.from {
		return "", apperrors.InvalidState("order", string(op), string(t.from), string(current))
	}
	return t.to, nil
}

// IsTerminal reports whether no operation can leave status.
func IsTerminal(status models.OrderStatus) bool {
	for _, t := range transitions {
		if t.from == status {
			return false
		}
	}
	return true
}
