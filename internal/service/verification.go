package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/Mino1214/juncom-server/pkg/errors"
)

const verificationKeyPrefix = "verify:"

// CodeSender delivers a verification code to an address. The mail transport
// and content live behind this interface.
type CodeSender interface {
	SendVerificationCode(ctx context.Context, email, code string) error
}

// LogCodeSender logs codes instead of mailing them. Used until a real mail
// transport is configured.
type LogCodeSender struct {
	Logger *slog.Logger
}

// SendVerificationCode logs the code at info level.
func (s *LogCodeSender) SendVerificationCode(ctx context.Context, email, code string) error {
	s.Logger.InfoContext(ctx, "verification code issued",
		slog.String("email", email),
		slog.String("code", code),
	)
	return nil
}

// VerificationService issues and checks short-lived email verification codes.
type VerificationService struct {
	client *redis.Client
	sender CodeSender
	logger *slog.Logger
	ttl    time.Duration
}

// NewVerificationService creates a new verification service.
func NewVerificationService(client *redis.Client, sender CodeSender, logger *slog.Logger, ttl time.Duration) *VerificationService {
	return &VerificationService{
		client: client,
		sender: sender,
		logger: logger,
		ttl:    ttl,
	}
}

// generateCode returns a random 6-digit code, zero-padded.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// SendCode issues a new code for the address and hands it to the sender.
// Reissuing overwrites any previous code and resets the TTL.
func (s *VerificationService) SendCode(ctx context.Context, email string) error {
	if email == "" {
		return apperrors.InvalidInput("email is required")
	}

	code, err := generateCode()
	if err != nil {
		return err
	}

	key := verificationKeyPrefix + email
	if err := s.client.Set(ctx, key, code, s.ttl).Err(); err != nil {
		return fmt.Errorf("store verification code: %w", err)
	}

	if err := s.sender.SendVerificationCode(ctx, email, code); err != nil {
		return fmt.Errorf("send verification code: %w", err)
	}

	s.logger.InfoContext(ctx, "verification code sent",
		slog.String("email", email),
	)

	return nil
}

// VerifyCode checks a submitted code. A correct code is single-use: it is
// deleted on success. Expired or absent codes fail the same way wrong ones
// do.
func (s *VerificationService) VerifyCode(ctx context.Context, email, code string) error {
	if email == "" || code == "" {
		return apperrors.InvalidInput("email and code are required")
	}

	key := verificationKeyPrefix + email
	stored, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return apperrors.Unauthorized("verification code expired or not issued")
		}
		return fmt.Errorf("load verification code: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return apperrors.Unauthorized("verification code mismatch")
	}

	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.logger.WarnContext(ctx, "failed to delete used verification code",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "verification code accepted",
		slog.String("email", email),
	)

	return nil
}
