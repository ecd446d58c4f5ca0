package ports

import (
	"context"
	"time"

	"github.com/campusbus/bus-tracker/internal/core/domain"
)

// StudentLoginInput carries whatever the OAuth popup produced. ProviderError
// is set instead of a credential when the popup itself failed.
type StudentLoginInput struct {
	IDToken       string
	Code          string
	State         string // required with Code
	ProviderError string
}

// RegisterDriverInput creates a password-based driver account.
type RegisterDriverInput struct {
	Email    string
	Password string
	Name     string
}

type AuthService interface {
	LoginDriver(ctx context.Context, email, password string, rememberMe bool) (*domain.Session, error)
	LoginStudent(ctx context.Context, in StudentLoginInput) (*domain.Session, error)
	StudentAuthURL(ctx context.Context) (url, state string, err error)
	Logout(ctx context.Context, tokenID string, expiresAt time.Time) error
	ResolveRole(ctx context.Context, id domain.Identity) domain.Role
	RegisterDriver(ctx context.Context, in RegisterDriverInput) (*domain.User, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
	CheckPassword(password string) domain.PasswordCheck
}
