package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Mino1214/juncom-server/internal/domain"
	pkgkafka "github.com/Mino1214/juncom-server/pkg/kafka"
)

// OrderLookup is the read access the consumer needs to build a receipt.
type OrderLookup interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
}

// ReceiptMailer delivers a payment receipt to a buyer.
type ReceiptMailer interface {
	SendReceipt(ctx context.Context, email string, order *domain.Order) error
}

// LogReceiptMailer logs receipts instead of mailing them. Stands in until an
// SMTP transport is configured.
type LogReceiptMailer struct {
	Logger *slog.Logger
}

func (m *LogReceiptMailer) SendReceipt(ctx context.Context, email string, order *domain.Order) error {
	m.Logger.InfoContext(ctx, "payment receipt",
		slog.String("email", email),
		slog.String("order_id", order.ID),
		slog.String("product_name", order.ProductName),
		slog.Int64("amount", order.Amount),
	)
	return nil
}

// Consumer processes order lifecycle events on the notification side.
type Consumer struct {
	orders OrderLookup
	mailer ReceiptMailer
	logger *slog.Logger
}

// NewConsumer creates a notification event consumer.
func NewConsumer(orders OrderLookup, mailer ReceiptMailer, logger *slog.Logger) *Consumer {
	return &Consumer{
		orders: orders,
		mailer: mailer,
		logger: logger,
	}
}

// HandleOrderPaid sends a receipt for a paid order. Orders without a buyer
// email (guest checkouts) are skipped.
func (c *Consumer) HandleOrderPaid(ctx context.Context, event *pkgkafka.Event) error {
	var data OrderPaidData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal order.paid data: %w", err)
	}

	order, err := c.orders.GetByID(ctx, data.OrderID)
	if err != nil {
		return fmt.Errorf("load order %s for receipt: %w", data.OrderID, err)
	}

	if order.UserEmail == "" {
		c.logger.DebugContext(ctx, "no buyer email on paid order, skipping receipt",
			slog.String("order_id", order.ID),
		)
		return nil
	}

	if err := c.mailer.SendReceipt(ctx, order.UserEmail, order); err != nil {
		return fmt.Errorf("send receipt for order %s: %w", order.ID, err)
	}

	c.logger.InfoContext(ctx, "receipt sent",
		slog.String("order_id", order.ID),
		slog.String("email", order.UserEmail),
	)

	return nil
}

// HandleOrderCanceled logs cancellation notices. Mail content for
// cancellations is not produced here.
func (c *Consumer) HandleOrderCanceled(ctx context.Context, event *pkgkafka.Event) error {
	var data OrderCanceledData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal order.canceled data: %w", err)
	}

	c.logger.InfoContext(ctx, "order canceled notice",
		slog.String("order_id", data.OrderID),
		slog.String("reason", data.Reason),
	)

	return nil
}
