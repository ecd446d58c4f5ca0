package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/campusbus/bus-tracker/internal/core/domain"
)

// ResetTokenStore holds single-use password reset tokens.
// Key format: password_reset:<token>
type ResetTokenStore struct {
	client *redis.Client
}

func NewResetTokenStore(client *redis.Client) *ResetTokenStore {
	return &ResetTokenStore{client: client}
}

func (s *ResetTokenStore) Issue(ctx context.Context, email string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	if err := s.client.Set(ctx, s.key(token), email, ttl).Err(); err != nil {
		return "", fmt.Errorf("issue reset token: %w", err)
	}
	return token, nil
}

// Consume returns the email the token was issued for and deletes the token.
func (s *ResetTokenStore) Consume(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", domain.ErrResetTokenInvalid
	}
	email, err := s.client.GetDel(ctx, s.key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrResetTokenInvalid
	}
	if err != nil {
		return "", fmt.Errorf("consume reset token: %w", err)
	}
	return email, nil
}

func (s *ResetTokenStore) key(token string) string {
	return "password_reset:" + token
}
