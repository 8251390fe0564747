package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mino1214/juncom-server/internal/domain"
	apperrors "github.com/Mino1214/juncom-server/pkg/errors"
)

const userKeyPrefix = "user:"

// UserCache holds employee account lookups so login does not hit Postgres on
// every request. Password hashes are never cached.
type UserCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewUserCache creates a Redis-backed user cache.
func NewUserCache(client *redis.Client, ttl time.Duration) *UserCache {
	return &UserCache{
		client: client,
		ttl:    ttl,
	}
}

// cachedUser mirrors domain.User minus the password hash.
type cachedUser struct {
	EmployeeID string    `json:"employee_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	CreatedAt  time.Time `json:"created_at"`
}

// Get retrieves a cached account by employee id.
func (c *UserCache) Get(ctx context.Context, employeeID string) (*domain.User, error) {
	key := userKeyPrefix + employeeID

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, apperrors.NotFound("user", employeeID)
		}
		return nil, fmt.Errorf("redis get user: %w", err)
	}

	var cu cachedUser
	if err := json.Unmarshal(data, &cu); err != nil {
		return nil, fmt.Errorf("unmarshal cached user: %w", err)
	}

	return &domain.User{
		EmployeeID: cu.EmployeeID,
		Name:       cu.Name,
		Email:      cu.Email,
		Phone:      cu.Phone,
		CreatedAt:  cu.CreatedAt,
	}, nil
}

// Set stores an account with the configured TTL.
func (c *UserCache) Set(ctx context.Context, user *domain.User) error {
	key := userKeyPrefix + user.EmployeeID

	data, err := json.Marshal(cachedUser{
		EmployeeID: user.EmployeeID,
		Name:       user.Name,
		Email:      user.Email,
		Phone:      user.Phone,
		CreatedAt:  user.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal cached user: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set user: %w", err)
	}

	return nil
}

// Invalidate drops a cached account.
func (c *UserCache) Invalidate(ctx context.Context, employeeID string) error {
	key := userKeyPrefix + employeeID

	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del user: %w", err)
	}

	return nil
}
