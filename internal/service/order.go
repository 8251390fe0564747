package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Mino1214/juncom-server/internal/cache"
	"github.com/Mino1214/juncom-server/internal/domain"
	"github.com/Mino1214/juncom-server/internal/event"
	"github.com/Mino1214/juncom-server/internal/queue"
	"github.com/Mino1214/juncom-server/internal/repository"
	"github.com/Mino1214/juncom-server/pkg/database"
	apperrors "github.com/Mino1214/juncom-server/pkg/errors"
)

// CancelReasonTimeout is recorded when the auto-cancel job fires before
// payment arrives.
const CancelReasonTimeout = "payment timeout"

// OrderService implements the business logic for order operations. Stock
// mutations always happen inside a transaction holding the product row lock,
// in the same transaction as the order write.
type OrderService struct {
	pool            database.DBTX
	orders          repository.OrderRepository
	queue           queue.Queue
	stockCache      *cache.StockCache
	producer        *event.Producer
	logger          *slog.Logger
	autoCancelDelay time.Duration
}

// NewOrderService creates a new order service.
func NewOrderService(
	pool database.DBTX,
	orders repository.OrderRepository,
	q queue.Queue,
	stockCache *cache.StockCache,
	producer *event.Producer,
	logger *slog.Logger,
	autoCancelDelay time.Duration,
) *OrderService {
	return &OrderService{
		pool:            pool,
		orders:          orders,
		queue:           q,
		stockCache:      stockCache,
		producer:        producer,
		logger:          logger,
		autoCancelDelay: autoCancelDelay,
	}
}

// CreateOrderInput holds the parameters for creating an order. It doubles as
// the order.create job payload.
type CreateOrderInput struct {
	EmployeeID string `json:"employee_id,omitempty"`
	UserName   string `json:"user_name"`
	UserEmail  string `json:"user_email"`
	UserPhone  string `json:"user_phone,omitempty"`
	ProductID  string `json:"product_id"`
}

// EnqueueOrder validates the input and enqueues an order.create job. The
// returned job id can be polled for the created order.
func (s *OrderService) EnqueueOrder(ctx context.Context, input CreateOrderInput) (string, error) {
	if input.ProductID == "" {
		return "", apperrors.InvalidInput("product_id is required")
	}
	if input.UserName == "" {
		return "", apperrors.InvalidInput("user_name is required")
	}
	if input.EmployeeID == "" {
		input.EmployeeID = domain.GuestEmployeeID
	}

	jobID, err := s.queue.Enqueue(ctx, queue.KindCreateOrder, input)
	if err != nil {
		return "", fmt.Errorf("enqueue order.create: %w", err)
	}

	s.logger.InfoContext(ctx, "order creation enqueued",
		slog.String("job_id", jobID),
		slog.String("employee_id", input.EmployeeID),
		slog.String("product_id", input.ProductID),
	)

	return jobID, nil
}

// CreateOrder reserves one unit of stock and writes the pending order row in
// a single transaction. The product row is locked with SELECT FOR UPDATE so
// concurrent orders cannot oversell. After commit it schedules the
// auto-cancel job and invalidates the stock cache.
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*domain.Order, error) {
	if input.EmployeeID == "" {
		input.EmployeeID = domain.GuestEmployeeID
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin order transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the product row to serialize stock checks against concurrent orders.
	var (
		productName string
		price       int64
		stock       int
	)
	lockQuery := `
		SELECT name, price, stock
		FROM products
		WHERE id = $1 AND active = TRUE
		FOR UPDATE`

	err = tx.QueryRow(ctx, lockQuery, input.ProductID).Scan(&productName, &price, &stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("product", input.ProductID)
		}
		return nil, fmt.Errorf("lock product row: %w", err)
	}

	if stock <= 0 {
		return nil, apperrors.SoldOut(input.ProductID)
	}

	updateQuery := `
		UPDATE products
		SET stock = stock - 1, updated_at = NOW()
		WHERE id = $1`

	if _, err := tx.Exec(ctx, updateQuery, input.ProductID); err != nil {
		return nil, fmt.Errorf("decrement stock: %w", err)
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:          domain.NewOrderID(now),
		EmployeeID:  input.EmployeeID,
		UserName:    input.UserName,
		UserEmail:   input.UserEmail,
		UserPhone:   input.UserPhone,
		ProductID:   input.ProductID,
		ProductName: productName,
		Amount:      price,
		Status:      domain.OrderStatusPending,
		CreatedAt:   now,
	}

	insertQuery := `
		INSERT INTO orders (id, employee_id, user_name, user_email, user_phone, product_id, product_name, amount, status, gateway_tid, cancel_reason, created_at, paid_at, canceled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = tx.Exec(ctx, insertQuery,
		order.ID, order.EmployeeID, order.UserName, order.UserEmail, order.UserPhone,
		order.ProductID, order.ProductName, order.Amount, order.Status,
		order.GatewayTID, order.CancelReason, order.CreatedAt, order.PaidAt, order.CanceledAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit order transaction: %w", err)
	}

	s.afterStockChange(ctx, order.ProductID)

	if _, err := s.queue.Enqueue(ctx, queue.KindAutoCancelOrder,
		AutoCancelPayload{OrderID: order.ID},
		queue.WithDelay(s.autoCancelDelay),
	); err != nil {
		// The order stands; reconciliation will still settle it.
		s.logger.ErrorContext(ctx, "failed to schedule auto-cancel",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := s.producer.PublishOrderCreated(ctx, order); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.created event",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.producer.PublishStockReserved(ctx, order.ProductID, order.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish stock.reserved event",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order created",
		slog.String("order_id", order.ID),
		slog.String("employee_id", order.EmployeeID),
		slog.String("product_id", order.ProductID),
		slog.Int64("amount", order.Amount),
	)

	return order, nil
}

// AutoCancelPayload is the order.autocancel job payload.
type AutoCancelPayload struct {
	OrderID string `json:"order_id"`
}

// AutoCancelOrder cancels an order that is still pending when the payment
// window closes, restoring its stock unit. Orders that were paid or already
// canceled in the meantime are left untouched, so the job is safe to retry.
func (s *OrderService) AutoCancelOrder(ctx context.Context, orderID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin auto-cancel transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		status    string
		productID string
	)
	lockQuery := `
		SELECT status, product_id
		FROM orders
		WHERE id = $1
		FOR UPDATE`

	err = tx.QueryRow(ctx, lockQuery, orderID).Scan(&status, &productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.DebugContext(ctx, "auto-cancel: order not found, skipping",
				slog.String("order_id", orderID))
			return nil
		}
		return fmt.Errorf("lock order row: %w", err)
	}

	if domain.IsTerminal(status) {
		s.logger.DebugContext(ctx, "auto-cancel: order already settled, skipping",
			slog.String("order_id", orderID),
			slog.String("status", status),
		)
		return nil
	}

	cancelQuery := `
		UPDATE orders
		SET status = $1, canceled_at = NOW(), cancel_reason = $2
		WHERE id = $3`

	if _, err := tx.Exec(ctx, cancelQuery, domain.OrderStatusCanceled, CancelReasonTimeout, orderID); err != nil {
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
		return fmt.Errorf("commit auto-cancel transaction: %w", err)
	}

	s.afterStockChange(ctx, productID)

	if err := s.producer.PublishOrderCanceled(ctx, orderID, CancelReasonTimeout); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish order.canceled event",
			slog.String("order_id", orderID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.producer.PublishStockRestored(ctx, productID, orderID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish stock.restored event",
			slog.String("order_id", orderID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order auto-canceled",
		slog.String("order_id", orderID),
		slog.String("product_id", productID),
	)

	return nil
}

// GetOrder retrieves an order by its ID.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	return order, nil
}

// ListOrders returns a filtered, paginated list of orders.
func (s *OrderService) ListOrders(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = 20
	}
	if filter.PerPage > 100 {
		filter.PerPage = 100
	}

	orders, total, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}

	return orders, total, nil
}

// GetJob exposes job status for the polling endpoint.
func (s *OrderService) GetJob(ctx context.Context, id string) (*queue.Job, error) {
	job, err := s.queue.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job by id: %w", err)
	}
	return job, nil
}

// afterStockChange drops the cached stock entry once a mutation has
// committed. Cache errors are logged, never surfaced.
func (s *OrderService) afterStockChange(ctx context.Context, productID string) {
	if err := s.stockCache.Invalidate(ctx, productID); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate stock cache",
			slog.String("product_id", productID),
			slog.String("error", err.Error()),
		)
	}
}
