package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Mino1214/juncom-server/internal/domain"
	"github.com/Mino1214/juncom-server/internal/repository"
	"github.com/Mino1214/juncom-server/pkg/database"
	apperrors "github.com/Mino1214/juncom-server/pkg/errors"
)

// OrderRepository implements repository.OrderRepository using PostgreSQL.
type OrderRepository struct {
	pool database.DBTX
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool database.DBTX) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create inserts a new order row.
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) error {
	query := `
		INSERT INTO orders (id, employee_id, user_name, user_email, user_phone, product_id, product_name, amount, status, gateway_tid, cancel_reason, created_at, paid_at, canceled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.pool.Exec(ctx, query,
		o.ID,
		o.EmployeeID,
		o.UserName,
		o.UserEmail,
		o.UserPhone,
		o.ProductID,
		o.ProductName,
		o.Amount,
		o.Status,
		o.GatewayTID,
		o.CancelReason,
		o.CreatedAt,
		o.PaidAt,
		o.CanceledAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

// GetByID retrieves an order by its ID.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `
		SELECT id, employee_id, user_name, user_email, user_phone, product_id, product_name, amount, status, gateway_tid, cancel_reason, created_at, paid_at, canceled_at
		FROM orders
		WHERE id = $1`

	var o domain.Order
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&o.ID,
		&o.EmployeeID,
		&o.UserName,
		&o.UserEmail,
		&o.UserPhone,
		&o.ProductID,
		&o.ProductName,
		&o.Amount,
		&o.Status,
		&o.GatewayTID,
		&o.CancelReason,
		&o.CreatedAt,
		&o.PaidAt,
		&o.CanceledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("order", id)
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	return &o, nil
}

// List returns orders matching the given filter with the total count.
func (r *OrderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   int = 1
	)

	if filter.EmployeeID != nil {
		conditions = append(conditions, fmt.Sprintf("employee_id = $%d", argIndex))
		args = append(args, *filter.EmployeeID)
		argIndex++
	}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Use count(*) OVER() for total count in a single query.
	query := fmt.Sprintf(`
		SELECT id, employee_id, user_name, user_email, user_phone, product_id, product_name, amount, status, gateway_tid, cancel_reason, created_at, paid_at, canceled_at,
			   count(*) OVER() AS total_count
		FROM orders
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		whereClause, argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}

	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var totalCount int
	orders := make([]domain.Order, 0)

	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(
			&o.ID,
			&o.EmployeeID,
			&o.UserName,
			&o.UserEmail,
			&o.UserPhone,
			&o.ProductID,
			&o.ProductName,
			&o.Amount,
			&o.Status,
			&o.GatewayTID,
			&o.CancelReason,
			&o.CreatedAt,
			&o.PaidAt,
			&o.CanceledAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}

	return orders, totalCount, nil
}
