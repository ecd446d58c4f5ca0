package ports

import (
	"context"
	"time"

	"github.com/campusbus/bus-tracker/internal/core/domain"
)

// UserRepository persists users/{id}.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	Save(ctx context.Context, user *domain.User) error
	SetRole(ctx context.Context, id string, role domain.Role) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// CredentialRepository stores password-based accounts.
type CredentialRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.Credential, error)
	Create(ctx context.Context, cred *domain.Credential) error
	UpdatePasswordHash(ctx context.Context, email, hash string, at time.Time) error
}

// LoginThrottle rate-limits failed password attempts per email.
type LoginThrottle interface {
	Blocked(ctx context.Context, email string) (bool, error)
	RecordFailure(ctx context.Context, email string) error
	Reset(ctx context.Context, email string) error
}

// TokenRevoker keeps a deny-list of signed-out session tokens.
type TokenRevoker interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// ResetTokenStore issues single-use password reset tokens.
type ResetTokenStore interface {
	Issue(ctx context.Context, email string, ttl time.Duration) (string, error)
	Consume(ctx context.Context, token string) (string, error)
}

// OAuthStateStore issues single-use state values binding an authorization
// code to the sign-in attempt that started it.
type OAuthStateStore interface {
	Issue(ctx context.Context, ttl time.Duration) (string, error)
	// Consume fails with domain.ErrStateMismatch for unknown or used states.
	Consume(ctx context.Context, state string) error
}

// ResetNotifier delivers a reset token to the account owner.
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, email, token string) error
}
