package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Mino1214/juncom-server/internal/domain"
	"github.com/Mino1214/juncom-server/internal/gateway"
	apperrors "github.com/Mino1214/juncom-server/pkg/errors"
)

// CancelReasonRequested is recorded when no explicit reason accompanies a
// cancellation request.
const CancelReasonRequested = "customer request"

// GatewayStatusCancelled is the gateway's record state for a voided
// transaction.
const GatewayStatusCancelled = "cancelled"

// PaymentCanceler is the slice of the gateway client used to void payments.
type PaymentCanceler interface {
	GetResult(ctx context.Context, tid string) (*gateway.PaymentResult, error)
	Cancel(ctx context.Context, tid, reason string, amount int64) (*gateway.PaymentResult, error)
}

// PaymentService voids settled payments at the gateway and applies the
// resulting refund to the order.
type PaymentService struct {
	orders  *OrderService
	gateway PaymentCanceler
	logger  *slog.Logger
}

// NewPaymentService creates a new payment service.
func NewPaymentService(orders *OrderService, gw PaymentCanceler, logger *slog.Logger) *PaymentService {
	return &PaymentService{
		orders:  orders,
		gateway: gw,
		logger:  logger,
	}
}

// CancelPayment refunds a paid order. The gateway is asked to void the
// transaction first; only after it confirms is the order marked canceled and
// the stock unit returned. The gateway also notifies the webhook about the
// cancellation, which ReconcilePayment treats as a duplicate.
func (s *PaymentService) CancelPayment(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status != domain.OrderStatusPaid {
		return nil, apperrors.InvalidTransition(order.Status, domain.OrderStatusCanceled)
	}
	if order.GatewayTID == "" {
		return nil, apperrors.InvalidInput(fmt.Sprintf("order %s has no gateway transaction", orderID))
	}

	if reason == "" {
		reason = CancelReasonRequested
	}

	// Consult the gateway's own record first. A re-sent cancellation for a
	// transaction the gateway already voided must not fail; it only needs
	// the local transition applied.
	alreadyVoided := false
	if result, err := s.gateway.GetResult(ctx, order.GatewayTID); err != nil {
		s.logger.WarnContext(ctx, "gateway result lookup failed, proceeding with cancel",
			slog.String("order_id", orderID),
			slog.String("tid", order.GatewayTID),
			slog.String("error", err.Error()),
		)
	} else if result.Status == GatewayStatusCancelled {
		alreadyVoided = true
	}

	if !alreadyVoided {
		if _, err := s.gateway.Cancel(ctx, order.GatewayTID, reason, order.Amount); err != nil {
			s.logger.ErrorContext(ctx, "gateway cancel failed",
				slog.String("order_id", orderID),
				slog.String("tid", order.GatewayTID),
				slog.String("error", err.Error()),
			)
			return nil, apperrors.PaymentFailed(fmt.Sprintf("gateway refused cancellation for order %s", orderID))
		}
	}

	err = s.orders.ReconcilePayment(ctx, PaymentNotification{
		OrderID: orderID,
		Outcome: OutcomeRefunded,
		TID:     order.GatewayTID,
		Amount:  order.Amount,
	})
	if err != nil {
		// The gateway already voided the payment. The webhook notification for
		// the cancellation will retry the local transition.
		return nil, fmt.Errorf("apply refund for order %s: %w", orderID, err)
	}

	s.logger.InfoContext(ctx, "payment canceled",
		slog.String("order_id", orderID),
		slog.String("tid", order.GatewayTID),
		slog.String("reason", reason),
	)

	return s.orders.GetOrder(ctx, orderID)
}
