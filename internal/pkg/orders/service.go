// Package orders drives the payment order state machine. Each operation
// checks its guard on a fresh read, calls the gateway with no transaction
// open and commits the status change, the transaction row and the audit
// entry in one unit of work guarded by the order version.
package orders

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/rahulsingh2997/springboot-payment-orchestrator/app/models"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/app/repository"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/apperrors"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/correlation"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/events"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/gateway"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/logger"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/metrics"
	"github.com/rahulsingh2997/springboot-payment-orchestrator/internal/pkg/validator"
)

type CreateInput struct {
	ExternalOrderID string `json:"externalOrderId" validate:"required,max=100"`
	CustomerID      string `json:"customerId" validate:"required,max=100"`
	AmountCents     int64  `json:"amountCents" validate:"gt=0"`
	Currency        string `json:"currency" validate:"required,currency"`
}

type AuthorizeInput struct {
	// PaymentToken is an opaque tokenized card from the client's payment form.
	PaymentToken string `json:"paymentToken,omitempty" validate:"omitempty,max=8192"`
}

type RefundInput struct {
	// AmountCents defaults to the order amount when nil.
	AmountCents *int64 `json:"amountCents,omitempty"`
}

type Options struct {
	// AutoCapture authorizes and captures right after create.
	AutoCapture bool
}

type Service struct {
	repos  *repository.Repositories
	gw     gateway.Client
	events *events.Dispatcher
	opts   Options
}

func NewService(repos *repository.Repositories, gw gateway.Client, dispatcher *events.Dispatcher, opts Options) *Service {
	return &Service{repos: repos, gw: gw, events: dispatcher, opts: opts}
}

// Create persists a PENDING order.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Order, error) {
	if err := validator.Struct(in); err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:              uuid.NewString(),
		ExternalOrderID: in.ExternalOrderID,
		CustomerID:      in.CustomerID,
		AmountCents:     in.AmountCents,
		Currency:        in.Currency,
		Status:          models.OrderStatusPending,
	}

	err := s.repos.InTransaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Order.Create(ctx, order); err != nil {
			return err
		}
		return tx.Audit.Create(ctx, models.NewAuditLog("order.created", models.AuditResourceOrder, order.ID,
			correlation.FromContext(ctx), map[string]interface{}{
				"externalOrderId": order.ExternalOrderID,
				"amountCents":     order.AmountCents,
				"currency":        order.Currency,
			}))
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, apperrors.AlreadyExists("order", "externalOrderId", in.ExternalOrderID)
	}
	if err != nil {
		logger.Errorf(ctx, "[Orders] Failed to create order %s: %v", in.ExternalOrderID, err)
		return nil, apperrors.Internal(err)
	}

	metrics.OrderTransitions.WithLabelValues("create", "ok").Inc()
	logger.Infof(ctx, "[Orders] Created order %s (external %s, %d %s)", order.ID, order.ExternalOrderID, order.AmountCents, order.Currency)

	if s.opts.AutoCapture {
		return s.autoCapture(ctx, order), nil
	}
	return order, nil
}

// autoCapture never fails creation; the order is returned in whatever state
// the gateway let it reach.
func (s *Service) autoCapture(ctx context.Context, order *models.Order) *models.Order {
	authorized, err := s.Authorize(ctx, order.ID, AuthorizeInput{})
	if err != nil {
		logger.Warnf(ctx, "[Orders] Auto capture: authorize of order %s failed: %v", order.ID, err)
		return s.reload(ctx, order)
	}
	captured, err := s.Capture(ctx, order.ID)
	if err != nil {
		logger.Warnf(ctx, "[Orders] Auto capture: capture of order %s failed: %v", order.ID, err)
		return s.reload(ctx, authorized)
	}
	return captured
}

func (s *Service) reload(ctx context.Context, order *models.Order) *models.Order {
	fresh, err := s.repos.Order.GetByID(ctx, order.ID)
	if err != nil {
		return order
	}
	return fresh
}

func (s *Service) Get(ctx context.Context, id string) (*models.Order, error) {
	return s.load(ctx, id)
}

// Transactions returns the order's history, oldest first.
func (s *Service) Transactions(ctx context.Context, id string) ([]models.Transaction, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	txns, err := s.repos.Transaction.ListByOrder(ctx, id)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return txns, nil
}

func (s *Service) Authorize(ctx context.Context, id string, in AuthorizeInput) (*models.Order, error) {
	if err := validator.Struct(in); err != nil {
		return nil, err
	}
	return s.apply(ctx, id, OpAuthorize, func(ctx context.Context, order *models.Order) (*models.Transaction, error) {
		req := s.request(ctx, order, order.AmountCents)
		req.PaymentToken = in.PaymentToken
		return s.callGateway(ctx, OpAuthorize, order, models.TransactionTypeAuthorization, s.gw.Authorize, req)
	})
}

// Capture settles the latest authorization for the full order amount.
func (s *Service) Capture(ctx context.Context, id string) (*models.Order, error) {
	return s.apply(ctx, id, OpCapture, func(ctx context.Context, order *models.Order) (*models.Transaction, error) {
		auth, err := s.latest(ctx, order, models.TransactionTypeAuthorization)
		if err != nil {
			return nil, err
		}
		req := s.request(ctx, order, order.AmountCents)
		req.ReferenceTransactionID = auth.GatewayTransactionID
		req.AccountNumber = auth.PaymentReference
		return s.callGateway(ctx, OpCapture, order, models.TransactionTypeCapture, s.gw.Capture, req)
	})
}

// Void releases the latest authorization.
func (s *Service) Void(ctx context.Context, id string) (*models.Order, error) {
	return s.apply(ctx, id, OpVoid, func(ctx context.Context, order *models.Order) (*models.Transaction, error) {
		auth, err := s.latest(ctx, order, models.TransactionTypeAuthorization)
		if err != nil {
			return nil, err
		}
		req := s.request(ctx, order, order.AmountCents)
		req.ReferenceTransactionID = auth.GatewayTransactionID
		return s.callGateway(ctx, OpVoid, order, models.TransactionTypeVoid, s.gw.Void, req)
	})
}

// Refund returns money against the latest capture. The sum of all refunds
// may never exceed the captured amount.
func (s *Service) Refund(ctx context.Context, id string, in RefundInput) (*models.Order, error) {
	return s.apply(ctx, id, OpRefund, func(ctx context.Context, order *models.Order) (*models.Transaction, error) {
		amount := order.AmountCents
		if in.AmountCents != nil {
			amount = *in.AmountCents
		}
		if amount <= 0 {
			return nil, apperrors.Validation(map[string]interface{}{"amountCents": "gt=0"})
		}

		capture, err := s.latest(ctx, order, models.TransactionTypeCapture)
		if err != nil {
			return nil, err
		}
		refunded, err := s.repos.Transaction.SumAmountByType(ctx, order.ID, models.TransactionTypeRefund)
		if err != nil {
			return nil, apperrors.Internal(err)
		}
		if refunded+amount > capture.AmountCents {
			metrics.OrderTransitions.WithLabelValues(string(OpRefund), "rejected").Inc()
			logger.Infof(ctx, "[Orders] Refund of %d on order %s exceeds captured %d (already refunded %d)",
				amount, order.ID, capture.AmountCents, refunded)
			return nil, apperrors.New(apperrors.CodeRefundExceedsCaptured,
				"Refund amount exceeds the captured amount", http.StatusUnprocessableEntity).
				WithDetails(map[string]interface{}{
					"requested": amount,
					"captured":  capture.AmountCents,
					"refunded":  refunded,
				})
		}

		req := s.request(ctx, order, amount)
		req.ReferenceTransactionID = capture.GatewayTransactionID
		req.AccountNumber = capture.PaymentReference
		return s.callGateway(ctx, OpRefund, order, models.TransactionTypeRefund, s.gw.Refund, req)
	})
}

// Cancel abandons a PENDING order. No gateway call is needed.
func (s *Service) Cancel(ctx context.Context, id string) (*models.Order, error) {
	return s.apply(ctx, id, OpCancel, nil)
}

type gatewayStep func(ctx context.Context, order *models.Order) (*models.Transaction, error)

func (s *Service) apply(ctx context.Context, id string, op Operation, step gatewayStep) (*models.Order, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	to, err := Target(op, order.Status)
	if err != nil {
		metrics.OrderTransitions.WithLabelValues(string(op), "invalid_state").Inc()
		logger.Infof(ctx, "[Orders] Rejected %s on order %s in state %s", op, order.ID, order.Status)
		return nil, err
	}

	var txn *models.Transaction
	if step != nil {
		if txn, err = step(ctx, order); err != nil {
			return nil, err
		}
	}

	from := order.Status
	if err := s.commit(ctx, order, op, to, txn); err != nil {
		return nil, err
	}

	metrics.OrderTransitions.WithLabelValues(string(op), "ok").Inc()
	logger.Infof(ctx, "[Orders] Order %s %s -> %s (version %d)", order.ID, from, order.Status, order.Version)
	s.emit(ctx, op, order, txn)
	return order, nil
}

func (s *Service) commit(ctx context.Context, order *models.Order, op Operation, to models.OrderStatus, txn *models.Transaction) error {
	from, version := order.Status, order.Version
	meta := map[string]interface{}{"from": string(from), "to": string(to)}
	if txn != nil {
		meta["transactionId"] = txn.ID
		meta["gatewayTransactionId"] = txn.GatewayTransactionID
		meta["amountCents"] = txn.AmountCents
	}

	err := s.repos.InTransaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Order.UpdateStatus(ctx, order, to); err != nil {
			return err
		}
		if txn != nil {
			if err := tx.Transaction.Create(ctx, txn); err != nil {
				return err
			}
		}
		return tx.Audit.Create(ctx, models.NewAuditLog("order."+string(op), models.AuditResourceOrder, order.ID,
			correlation.FromContext(ctx), meta))
	})
	if err == nil {
		return nil
	}

	// the in-memory copy may have been advanced before the rollback
	order.Status, order.Version = from, version

	if errors.Is(err, repository.ErrVersionConflict) {
		metrics.OrderTransitions.WithLabelValues(string(op), "conflict").Inc()
		if txn != nil {
			logger.Warnf(ctx, "[Orders] Lost %s race on order %s after gateway approval %s, needs review",
				op, order.ID, txn.GatewayTransactionID)
		} else {
			logger.Infof(ctx, "[Orders] Lost %s race on order %s", op, order.ID)
		}
		return apperrors.VersionConflict("order", order.ID)
	}
	logger.Errorf(ctx, "[Orders] Failed to commit %s on order %s: %v", op, order.ID, err)
	return apperrors.Internal(err)
}

func (s *Service) callGateway(
	ctx context.Context,
	op Operation,
	order *models.Order,
	txnType models.TransactionType,
	call func(context.Context, gateway.Request) (*gateway.Result, error),
	req gateway.Request,
) (*models.Transaction, error) {
	res, err := call(ctx, req)
	if err != nil {
		appErr := gateway.ToAppError(err)
		if appErr.Code == apperrors.CodeGatewayUnavailable {
			metrics.OrderTransitions.WithLabelValues(string(op), "unavailable").Inc()
			logger.Errorf(ctx, "[Orders] Gateway unavailable for %s on order %s: %v", op, order.ID, err)
		} else {
			metrics.OrderTransitions.WithLabelValues(string(op), "declined").Inc()
			logger.Warnf(ctx, "[Orders] Gateway declined %s on order %s: %v", op, order.ID, err)
		}
		return nil, appErr
	}

	return &models.Transaction{
		ID:                   uuid.NewString(),
		OrderID:              &order.ID,
		Type:                 txnType,
		Status:               models.TransactionStatusSucceeded,
		AmountCents:          req.AmountCents,
		Currency:             order.Currency,
		Gateway:              s.gw.Name(),
		GatewayTransactionID: res.TransactionID,
		GatewayMessage:       res.Message,
		PaymentReference:     res.AccountNumber,
		CorrelationID:        req.CorrelationID,
	}, nil
}

func (s *Service) request(ctx context.Context, order *models.Order, amount int64) gateway.Request {
	return gateway.Request{
		OrderID:         order.ID,
		ExternalOrderID: order.ExternalOrderID,
		CustomerID:      order.CustomerID,
		Currency:        order.Currency,
		AmountCents:     amount,
		CorrelationID:   correlation.FromContext(ctx),
	}
}

func (s *Service) latest(ctx context.Context, order *models.Order, txnType models.TransactionType) (*models.Transaction, error) {
	txn, err := s.repos.Transaction.LatestByType(ctx, order.ID, txnType)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Internal(fmt.Errorf("order %s is %s without a %s transaction", order.ID, order.Status, txnType))
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return txn, nil
}

func (s *Service) load(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.repos.Order.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("order", id)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return order, nil
}

var eventTypes = map[Operation]events.Type{
	OpAuthorize: events.TypePaymentAuthorized,
	OpCapture:   events.TypePaymentCaptured,
	OpVoid:      events.TypePaymentVoided,
	OpRefund:    events.TypePaymentRefunded,
}

func (s *Service) emit(ctx context.Context, op Operation, order *models.Order, txn *models.Transaction) {
	eventType, ok := eventTypes[op]
	if !ok || s.events == nil {
		return
	}
	data := map[string]interface{}{
		"orderId":         order.ID,
		"externalOrderId": order.ExternalOrderID,
		"customerId":      order.CustomerID,
		"status":          string(order.Status),
		"currency":        order.Currency,
	}
	if txn != nil {
		data["transactionId"] = txn.ID
		data["gatewayTransactionId"] = txn.GatewayTransactionID
		data["amountCents"] = txn.AmountCents
	}
	s.events.Emit(ctx, events.New(eventType, order.ID, correlation.FromContext(ctx), data))
}
