package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/Mino1214/juncom-server/internal/domain"
	apperrors "github.com/Mino1214/juncom-server/pkg/errors"
)

// Gateway outcomes carried by payment notifications.
const (
	OutcomePaid      = "paid"
	OutcomeCancelled = "cancelled"
	OutcomeRefunded  = "refunded"
)

// CancelReasonGateway is recorded when the gateway reports a cancellation or
// refund.
const CancelReasonGateway = "gateway cancellation"

// PaymentNotification is the normalized form of a gateway webhook.
type PaymentNotification struct {
	OrderID string
	Outcome string
	TID     string
	Amount  int64
}

// ReconcilePayment applies a gateway notification to the order it names.
// The order row is locked for the duration so concurrent notifications and
// the auto-cancel job serialize against each other. Re-delivery of an
// already-applied notification is a no-op.
func (s *OrderService) ReconcilePayment(ctx context.Context, n PaymentNotification) error {
	switch n.Outcome {
	case OutcomePaid, OutcomeCancelled, OutcomeRefunded:
	default:
		return apperrors.InvalidInput(fmt.Sprintf("unknown payment outcome %q", n.Outcome))
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin reconcile transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		status    string
		productID string
		amount    int64
	)
	lockQuery := `
		SELECT status, product_id, amount
		FROM orders
		WHERE id = $1
		FOR UPDATE`

	err = tx.QueryRow(ctx, lockQuery, n.OrderID).Scan(&status, &productID, &amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("order", n.OrderID)
		}
		return fmt.Errorf("lock order row: %w", err)
	}

	if n.Amount > 0 && n.Amount != amount {
		return apperrors.InvalidInput(fmt.Sprintf(
			"amount mismatch for order %s: notified %d, recorded %d", n.OrderID, n.Amount, amount))
	}

	switch n.Outcome {
	case OutcomePaid:
		if status == domain.OrderStatusPaid {
			// Gateway re-delivery of a notification we already applied.
			s.logger.DebugContext(ctx, "duplicate payment notification, skipping",
				slog.String("order_id", n.OrderID),
				slog.String("tid", n.TID),
			)
			return nil
		}
		if cur := (&domain.Order{Status: status}); !cur.CanTransitionTo(domain.OrderStatusPaid) {
			return apperrors.InvalidTransition(status, domain.OrderStatusPaid)
		}

		payQuery := `
			UPDATE orders
			SET status = $1, paid_at = NOW(), gateway_tid = $2
			WHERE id = $3`

		if _, err := tx.Exec(ctx, payQuery, domain.OrderStatusPaid, n.TID, n.OrderID); err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit reconcile transaction: %w", err)
		}

		order := &domain.Order{ID: n.OrderID, ProductID: productID, Amount: amount, GatewayTID: n.TID}
		if err := s.producer.PublishOrderPaid(ctx, order); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish order.paid event",
				slog.String("order_id", n.OrderID),
				slog.String("error", err.Error()),
			)
		}

		s.logger.InfoContext(ctx, "order paid",
			slog.String("order_id", n.OrderID),
			slog.String("tid", n.TID),
		)
		return nil

	default: // OutcomeCancelled, OutcomeRefunded
		if status == domain.OrderStatusCanceled {
			s.logger.DebugContext(ctx, "duplicate cancellation notification, skipping",
				slog.String("order_id", n.OrderID),
			)
			return nil
		}
		if cur := (&domain.Order{Status: status}); !cur.CanTransitionTo(domain.OrderStatusCanceled) {
			return apperrors.InvalidTransition(status, domain.OrderStatusCanceled)
		}

		// pending -> canceled, and the one terminal edge: paid -> canceled (refund).
		cancelQuery := `
			UPDATE orders
			SET status = $1, canceled_at = NOW(), cancel_reason = $2
			WHERE id = $3`

		if _, err := tx.Exec(ctx, cancelQuery, domain.OrderStatusCanceled, CancelReasonGateway, n.OrderID); err != nil {
			return fmt.Errorf("cancel order: %w", err)
		}

		restoreQuery := `
			UPDATE products
			SET stock = stock + 1, updated_at = NOW()
			WHERE id = $1`

		if _, err := tx.Exec(ctx, restoreQuery, productID); err != nil {
			return fmt.Errorf("restore stock: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit reconcile transaction: %w", err)
		}

		s.afterStockChange(ctx, productID)

		if err := s.producer.PublishOrderCanceled(ctx, n.OrderID, CancelReasonGateway); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish order.canceled event",
				slog.String("order_id", n.OrderID),
				slog.String("error", err.Error()),
			)
		}
		if err := s.producer.PublishStockRestored(ctx, productID, n.OrderID); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish stock.restored event",
				slog.String("order_id", n.OrderID),
				slog.String("error", err.Error()),
			)
		}

		s.logger.InfoContext(ctx, "order canceled by gateway",
			slog.String("order_id", n.OrderID),
			slog.String("outcome", n.Outcome),
		)
		return nil
	}
}
