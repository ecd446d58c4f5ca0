package ports

import (
	"context"

	"github.com/campusbus/bus-tracker/internal/core/domain"
)

// IdentityProvider authenticates email/password accounts. Failures are
// returned as *domain.AuthError.
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*domain.Identity, error)
	CreateAccount(ctx context.Context, email, password, displayName string) (*domain.Identity, error)
	SetPassword(ctx context.Context, email, password string) error
	LookupEmail(ctx context.Context, email string) (*domain.Identity, error)
}

// OAuthVerifier is the institutional OAuth/OIDC boundary used for students.
type OAuthVerifier interface {
	// AuthCodeURL returns the provider URL carrying the hosted-domain hint.
	AuthCodeURL(state string) string
	// Exchange trades an authorization code for an ID token.
	Exchange(ctx context.Context, code string) (string, error)
	// Verify validates an ID token and returns the identity it asserts.
	Verify(ctx context.Context, idToken string) (*domain.Identity, error)
}
