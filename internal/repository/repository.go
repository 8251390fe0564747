package repository

import (
	"context"

	"github.com/Mino1214/juncom-server/internal/domain"
)

// OrderFilter defines filter criteria for listing orders.
type OrderFilter struct {
	EmployeeID *string
	Status     *string
	Page       int
	PerPage    int
}

// OrderRepository defines the interface for order persistence operations.
type OrderRepository interface {
	// Create inserts a new order row.
	Create(ctx context.Context, order *domain.Order) error

	// GetByID retrieves an order by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// List returns orders matching the given filter along with the total count.
	List(ctx context.Context, filter OrderFilter) ([]domain.Order, int, error)
}

// ProductRepository defines the interface for product persistence operations.
type ProductRepository interface {
	// Create inserts a new product.
	Create(ctx context.Context, product *domain.Product) error

	// GetByID retrieves a product by id.
	GetByID(ctx context.Context, id string) (*domain.Product, error)

	// List returns active products with the total count.
	List(ctx context.Context, page, perPage int) ([]domain.Product, int, error)

	// Update overwrites the mutable fields of a product.
	Update(ctx context.Context, product *domain.Product) error

	// GetStock reads the current stock count for a product.
	GetStock(ctx context.Context, id string) (int, error)
}

// UserRepository defines the interface for employee account lookups.
type UserRepository interface {
	// Create inserts a new employee account.
	Create(ctx context.Context, user *domain.User) error

	// GetByEmployeeID retrieves an account by employee id.
	GetByEmployeeID(ctx context.Context, employeeID string) (*domain.User, error)

	// Update overwrites the mutable profile fields of an account.
	Update(ctx context.Context, user *domain.User) error
}
