package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Mino1214/juncom-server/internal/domain"
	"github.com/Mino1214/juncom-server/pkg/database"
	apperrors "github.com/Mino1214/juncom-server/pkg/errors"
)

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	pool database.DBTX
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(pool database.DBTX) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create inserts a new employee account.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (employee_id, name, email, phone, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		u.EmployeeID,
		u.Name,
		u.Email,
		u.Phone,
		u.PasswordHash,
		u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// Update overwrites the mutable profile fields of an account.
func (r *UserRepository) Update(ctx context.Context, u *domain.User) error {
	query := `
		UPDATE users
		SET name = $1, email = $2, phone = $3
		WHERE employee_id = $4`

	ct, err := r.pool.Exec(ctx, query,
		u.Name,
		u.Email,
		u.Phone,
		u.EmployeeID,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", u.EmployeeID)
	}

	return nil
}

// GetByEmployeeID retrieves an account by employee id.
func (r *UserRepository) GetByEmployeeID(ctx context.Context, employeeID string) (*domain.User, error) {
	query := `
		SELECT employee_id, name, email, phone, password_hash, created_at
		FROM users
		WHERE employee_id = $1`

	var u domain.User
	err := r.pool.QueryRow(ctx, query, employeeID).Scan(
		&u.EmployeeID,
		&u.Name,
		&u.Email,
		&u.Phone,
		&u.PasswordHash,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user", employeeID)
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return &u, nil
}
