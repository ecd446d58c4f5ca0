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

// OAuthStateStore holds single-use OAuth state values.
// Key format: oauth_state:<state>
type OAuthStateStore struct {
	client *redis.Client
}

func NewOAuthStateStore(client *redis.Client) *OAuthStateStore {
	return &OAuthStateStore{client: client}
}

func (s *OAuthStateStore) Issue(ctx context.Context, ttl time.Duration) (string, error) {
	state := uuid.NewString()
	if err := s.client.Set(ctx, s.key(state), "1", ttl).Err(); err != nil {
		return "", fmt.Errorf("issue oauth state: %w", err)
	}
	return state, nil
}

func (s *OAuthStateStore) Consume(ctx context.Context, state string) error {
	if state == "" {
		return domain.ErrStateMismatch
	}
	err := s.client.GetDel(ctx, s.key(state)).Err()
	if errors.Is(err, redis.Nil) {
		return domain.ErrStateMismatch
	}
	if err != nil {
		return fmt.Errorf("consume oauth state: %w", err)
	}
	return nil
}

func (s *OAuthStateStore) key(state string) string {
	return "oauth_state:" + state
}
