package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Mino1214/juncom-server/internal/domain"
	pkgkafka "github.com/Mino1214/juncom-server/pkg/kafka"
)

// Kafka topic constants for order and stock domain events.
const (
	TopicOrderCreated  = "juncom.order.created"
	TopicOrderPaid     = "juncom.order.paid"
	TopicOrderCanceled = "juncom.order.canceled"
	TopicStockReserved = "juncom.stock.reserved"
	TopicStockRestored = "juncom.stock.restored"
)

// Aggregate type constants.
const (
	AggregateTypeOrder = "order"
	AggregateTypeStock = "stock"
)

// Source identifier for events originating from this server.
const SourceJuncomServer = "juncom-server"

// OrderCreatedData is the payload for an order.created event (full order snapshot).
type OrderCreatedData struct {
	OrderID     string `json:"order_id"`
	EmployeeID  string `json:"employee_id"`
	UserName    string `json:"user_name"`
	UserEmail   string `json:"user_email"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Amount      int64  `json:"amount"`
	Status      string `json:"status"`
}

// OrderPaidData is the payload for an order.paid event.
type OrderPaidData struct {
	OrderID    string `json:"order_id"`
	EmployeeID string `json:"employee_id"`
	Amount     int64  `json:"amount"`
	GatewayTID string `json:"gateway_tid"`
}

// OrderCanceledData is the payload for an order.canceled event.
type OrderCanceledData struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// StockChangedData is the payload for stock.reserved and stock.restored events.
type StockChangedData struct {
	ProductID string `json:"product_id"`
	OrderID   string `json:"order_id"`
	Delta     int    `json:"delta"`
}

// Producer publishes order and stock domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishOrderCreated publishes an order.created event with the full order snapshot.
func (p *Producer) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	data := OrderCreatedData{
		OrderID:     order.ID,
		EmployeeID:  order.EmployeeID,
		UserName:    order.UserName,
		UserEmail:   order.UserEmail,
		ProductID:   order.ProductID,
		ProductName: order.ProductName,
		Amount:      order.Amount,
		Status:      order.Status,
	}

	event, err := pkgkafka.NewEvent(TopicOrderCreated, order.ID, AggregateTypeOrder, SourceJuncomServer, data)
	if err != nil {
		return fmt.Errorf("create order.created event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicOrderCreated, event); err != nil {
		return fmt.Errorf("publish order.created event: %w", err)
	}

	p.logger.DebugContext(ctx, "published order.created event",
		slog.String("order_id", order.ID),
		slog.String("employee_id", order.EmployeeID),
	)

	return nil
}

// PublishOrderPaid publishes an order.paid event.
func (p *Producer) PublishOrderPaid(ctx context.Context, order *domain.Order) error {
	data := OrderPaidData{
		OrderID:    order.ID,
		EmployeeID: order.EmployeeID,
		Amount:     order.Amount,
		GatewayTID: order.GatewayTID,
	}

	event, err := pkgkafka.NewEvent(TopicOrderPaid, order.ID, AggregateTypeOrder, SourceJuncomServer, data)
	if err != nil {
		return fmt.Errorf("create order.paid event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicOrderPaid, event); err != nil {
		return fmt.Errorf("publish order.paid event: %w", err)
	}

	p.logger.DebugContext(ctx, "published order.paid event",
		slog.String("order_id", order.ID),
		slog.String("gateway_tid", order.GatewayTID),
	)

	return nil
}

// PublishOrderCanceled publishes an order.canceled event.
func (p *Producer) PublishOrderCanceled(ctx context.Context, orderID, reason string) error {
	data := OrderCanceledData{
		OrderID: orderID,
		Reason:  reason,
	}

	event, err := pkgkafka.NewEvent(TopicOrderCanceled, orderID, AggregateTypeOrder, SourceJuncomServer, data)
	if err != nil {
		return fmt.Errorf("create order.canceled event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicOrderCanceled, event); err != nil {
		return fmt.Errorf("publish order.canceled event: %w", err)
	}

	p.logger.DebugContext(ctx, "published order.canceled event",
		slog.String("order_id", orderID),
		slog.String("reason", reason),
	)

	return nil
}

// PublishStockReserved publishes a stock.reserved event after a successful
// reservation commits.
func (p *Producer) PublishStockReserved(ctx context.Context, productID, orderID string) error {
	return p.publishStockChanged(ctx, TopicStockReserved, productID, orderID, -1)
}

// PublishStockRestored publishes a stock.restored event after a cancellation
// returns a unit.
func (p *Producer) PublishStockRestored(ctx context.Context, productID, orderID string) error {
	return p.publishStockChanged(ctx, TopicStockRestored, productID, orderID, 1)
}

func (p *Producer) publishStockChanged(ctx context.Context, topic, productID, orderID string, delta int) error {
	data := StockChangedData{
		ProductID: productID,
		OrderID:   orderID,
		Delta:     delta,
	}

	event, err := pkgkafka.NewEvent(topic, productID, AggregateTypeStock, SourceJuncomServer, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published stock event",
		slog.String("topic", topic),
		slog.String("product_id", productID),
		slog.String("order_id", orderID),
	)

	return nil
}
