package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Mino1214/juncom-server/internal/cache"
	"github.com/Mino1214/juncom-server/internal/domain"
	"github.com/Mino1214/juncom-server/internal/repository"
	apperrors "github.com/Mino1214/juncom-server/pkg/errors"
)

// AuthService implements employee login and account lookups.
type AuthService struct {
	users     repository.UserRepository
	userCache *cache.UserCache
	logger    *slog.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(users repository.UserRepository, userCache *cache.UserCache, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:     users,
		userCache: userCache,
		logger:    logger,
	}
}

// HashPassword returns the stored form of a password.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Login verifies an employee id and password. The comparison is constant
// time. On success the sanitized account is cached and returned.
func (s *AuthService) Login(ctx context.Context, employeeID, password string) (*domain.User, error) {
	if employeeID == "" || password == "" {
		return nil, apperrors.InvalidInput("employee_id and password are required")
	}

	user, err := s.users.GetByEmployeeID(ctx, employeeID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Same response as a wrong password; do not leak which ids exist.
			return nil, apperrors.Unauthorized("invalid credentials")
		}
		return nil, fmt.Errorf("get user for login: %w", err)
	}

	hashed := HashPassword(password)
	if subtle.ConstantTimeCompare([]byte(hashed), []byte(user.PasswordHash)) != 1 {
		return nil, apperrors.Unauthorized("invalid credentials")
	}

	if err := s.userCache.Set(ctx, user); err != nil {
		s.logger.WarnContext(ctx, "failed to cache user",
			slog.String("employee_id", employeeID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "employee logged in",
		slog.String("employee_id", employeeID),
	)

	user.PasswordHash = ""
	return user, nil
}

// SignupInput carries the fields for a new employee account.
type SignupInput struct {
	EmployeeID string
	Password   string
	Name       string
	Email      string
	Phone      string
}

// Signup registers a new employee account. The employee id must be unused.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*domain.User, error) {
	if _, err := s.users.GetByEmployeeID(ctx, in.EmployeeID); err == nil {
		return nil, apperrors.AlreadyExists("user", "employee_id", in.EmployeeID)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	user := &domain.User{
		EmployeeID:   in.EmployeeID,
		Name:         in.Name,
		Email:        in.Email,
		Phone:        in.Phone,
		PasswordHash: HashPassword(in.Password),
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := s.userCache.Set(ctx, user); err != nil {
		s.logger.WarnContext(ctx, "failed to cache user",
			slog.String("employee_id", in.EmployeeID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "employee registered",
		slog.String("employee_id", in.EmployeeID),
	)

	user.PasswordHash = ""
	return user, nil
}

// ProfileUpdate holds the optional profile fields of an account. Empty fields
// keep their stored value.
type ProfileUpdate struct {
	Name  string
	Email string
	Phone string
}

// UpdateProfile overwrites an account's profile fields and drops the cached
// copy so the next read sees the new values.
func (s *AuthService) UpdateProfile(ctx context.Context, employeeID string, upd ProfileUpdate) (*domain.User, error) {
	user, err := s.users.GetByEmployeeID(ctx, employeeID)
	if err != nil {
		return nil, fmt.Errorf("get user for update: %w", err)
	}

	if upd.Name != "" {
		user.Name = upd.Name
	}
	if upd.Email != "" {
		user.Email = upd.Email
	}
	if upd.Phone != "" {
		user.Phone = upd.Phone
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	if err := s.userCache.Invalidate(ctx, employeeID); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate user cache",
			slog.String("employee_id", employeeID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "employee profile updated",
		slog.String("employee_id", employeeID),
	)

	user.PasswordHash = ""
	return user, nil
}

// GetUser returns an account, reading through the user cache.
func (s *AuthService) GetUser(ctx context.Context, employeeID string) (*domain.User, error) {
	user, err := s.userCache.Get(ctx, employeeID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		s.logger.WarnContext(ctx, "user cache read failed, falling back to database",
			slog.String("employee_id", employeeID),
			slog.String("error", err.Error()),
		)
	}

	user, err = s.users.GetByEmployeeID(ctx, employeeID)
	if err != nil {
		return nil, fmt.Errorf("get user by employee id: %w", err)
	}

	if err := s.userCache.Set(ctx, user); err != nil {
		s.logger.WarnContext(ctx, "failed to cache user",
			slog.String("employee_id", employeeID),
			slog.String("error", err.Error()),
		)
	}

	user.PasswordHash = ""
	return user, nil
}
