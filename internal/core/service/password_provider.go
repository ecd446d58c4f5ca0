package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusbus/bus-tracker/internal/core/domain"
	"github.com/campusbus/bus-tracker/internal/core/ports"
)

var emailValidator = validator.New()

// PasswordProvider is the email/password identity provider backed by the
// credential store. It translates storage and hashing outcomes into
// *domain.AuthError codes.
type PasswordProvider struct {
	creds    ports.CredentialRepository
	throttle ports.LoginThrottle
	log      zerolog.Logger
	now      func() time.Time
}

func NewPasswordProvider(creds ports.CredentialRepository, throttle ports.LoginThrottle, log zerolog.Logger) *PasswordProvider {
	return &PasswordProvider{
		creds:    creds,
		throttle: throttle,
		log:      log,
		now:      time.Now,
	}
}

func (p *PasswordProvider) SignInWithPassword(ctx context.Context, email, password string) (*domain.Identity, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, domain.NewAuthError(domain.CodeWrongPassword)
	}

	blocked, err := p.throttle.Blocked(ctx, email)
	if err != nil {
		p.log.Warn().Err(err).Str("email", email).Msg("throttle check failed, allowing attempt")
	} else if blocked {
		return nil, domain.NewAuthError(domain.CodeTooManyRequests)
	}

	cred, err := p.creds.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			p.recordFailure(ctx, email)
			return nil, domain.NewAuthError(domain.CodeUserNotFound)
		}
		return nil, translateStorageError(err)
	}

	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		p.recordFailure(ctx, email)
		return nil, domain.NewAuthError(domain.CodeWrongPassword)
	}

	if err := p.throttle.Reset(ctx, email); err != nil {
		p.log.Warn().Err(err).Str("email", email).Msg("failed to reset login throttle")
	}

	return credentialIdentity(cred), nil
}

func (p *PasswordProvider) CreateAccount(ctx context.Context, email, password, displayName string) (*domain.Identity, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	now := p.now().UTC()
	cred := &domain.Credential{
		UID:          uuid.NewString(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.creds.Create(ctx, cred); err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			return nil, err
		}
		return nil, translateStorageError(err)
	}

	p.log.Info().Str("uid", cred.UID).Str("email", email).Msg("account created")
	return credentialIdentity(cred), nil
}

func (p *PasswordProvider) SetPassword(ctx context.Context, email, password string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	if err := p.creds.UpdatePasswordHash(ctx, email, hash, p.now().UTC()); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.NewAuthError(domain.CodeUserNotFound)
		}
		return translateStorageError(err)
	}
	if err := p.throttle.Reset(ctx, email); err != nil {
		p.log.Warn().Err(err).Str("email", email).Msg("failed to reset login throttle")
	}
	return nil
}

func (p *PasswordProvider) LookupEmail(ctx context.Context, email string) (*domain.Identity, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	cred, err := p.creds.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.NewAuthError(domain.CodeUserNotFound)
		}
		return nil, translateStorageError(err)
	}
	return credentialIdentity(cred), nil
}

func (p *PasswordProvider) recordFailure(ctx context.Context, email string) {
	if err := p.throttle.RecordFailure(ctx, email); err != nil {
		p.log.Warn().Err(err).Str("email", email).Msg("failed to record login failure")
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if emailValidator.Var(email, "required,email") != nil {
		return "", domain.NewAuthError(domain.CodeInvalidEmail)
	}
	return email, nil
}

func hashPassword(password string) (string, error) {
	if check := ValidatePassword(password); !check.Valid {
		return "", &domain.PasswordPolicyError{Reasons: check.Errors}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// translateStorageError maps an unreachable backend to the network code the
// UI knows how to explain; anything else stays an internal error.
func translateStorageError(err error) error {
	if errors.Is(err, domain.ErrStorageUnavailable) {
		return domain.NewAuthError(domain.CodeNetwork)
	}
	return err
}

func credentialIdentity(c *domain.Credential) *domain.Identity {
	return &domain.Identity{UID: c.UID, Email: c.Email, DisplayName: c.DisplayName}
}
