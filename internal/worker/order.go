package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Mino1214/juncom-server/internal/domain"
	"github.com/Mino1214/juncom-server/internal/queue"
	"github.com/Mino1214/juncom-server/internal/service"
	apperrors "github.com/Mino1214/juncom-server/pkg/errors"
)

// OrderOperations is the slice of the order service the job handlers need.
type OrderOperations interface {
	CreateOrder(ctx context.Context, input service.CreateOrderInput) (*domain.Order, error)
	AutoCancelOrder(ctx context.Context, orderID string) error
}

// OrderHandlers owns the queue handlers for the order job kinds.
type OrderHandlers struct {
	orders OrderOperations
	logger *slog.Logger
}

// NewOrderHandlers creates the order job handlers.
func NewOrderHandlers(orders OrderOperations, logger *slog.Logger) *OrderHandlers {
	return &OrderHandlers{
		orders: orders,
		logger: logger,
	}
}

// Register binds the handlers to their job kinds.
func (h *OrderHandlers) Register(w *queue.Worker) {
	w.Register(queue.KindCreateOrder, h.HandleCreateOrder)
	w.Register(queue.KindAutoCancelOrder, h.HandleAutoCancel)
}

// CreateOrderResult is stored as the order.create job result and surfaced to
// polling clients.
type CreateOrderResult struct {
	OrderID     string `json:"order_id"`
	Status      string `json:"status"`
	ProductName string `json:"product_name"`
	Amount      int64  `json:"amount"`
}

// HandleCreateOrder runs the stock reservation and order insert for one
// order.create job. Business rejections (sold out, unknown product, bad
// payload) never retry; database trouble does.
func (h *OrderHandlers) HandleCreateOrder(ctx context.Context, job *queue.Job) (any, error) {
	var input service.CreateOrderInput
	if err := job.UnmarshalPayload(&input); err != nil {
		return nil, queue.Permanent(fmt.Errorf("decode order.create payload: %w", err))
	}

	order, err := h.orders.CreateOrder(ctx, input)
	if err != nil {
		if errors.Is(err, apperrors.ErrOutOfStock) ||
			errors.Is(err, apperrors.ErrNotFound) ||
			errors.Is(err, apperrors.ErrInvalidInput) {
			return nil, queue.Permanent(err)
		}
		return nil, err
	}

	return CreateOrderResult{
		OrderID:     order.ID,
		Status:      order.Status,
		ProductName: order.ProductName,
		Amount:      order.Amount,
	}, nil
}

// HandleAutoCancel cancels the named order if it is still pending. The
// service treats missing and already-settled orders as no-ops, so every
// failure reaching this point is transient and worth a retry.
func (h *OrderHandlers) HandleAutoCancel(ctx context.Context, job *queue.Job) (any, error) {
	var payload service.AutoCancelPayload
	if err := job.UnmarshalPayload(&payload); err != nil {
		return nil, queue.Permanent(fmt.Errorf("decode order.autocancel payload: %w", err))
	}

	if err := h.orders.AutoCancelOrder(ctx, payload.OrderID); err != nil {
		return nil, err
	}

	return nil, nil
}
