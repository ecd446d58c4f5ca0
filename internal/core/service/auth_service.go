package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/campusbus/bus-tracker/internal/core/domain"
	"github.com/campusbus/bus-tracker/internal/core/ports"
	"github.com/campusbus/bus-tracker/internal/infrastructure/metrics"
)

const (
	defaultDurableTTL = 30 * 24 * time.Hour
	defaultSessionTTL = 12 * time.Hour
	defaultResetTTL   = time.Hour

	defaultOAuthStateTTL = 10 * time.Minute

	demoDriverName = "Demo Driver"
)

// AuthOptions configures token issuing and the demo driver account.
type AuthOptions struct {
	JWTSecret          string
	DurableTTL         time.Duration // "remember me"
	SessionTTL         time.Duration
	ResetTTL           time.Duration
	OAuthStateTTL      time.Duration
	DemoDriverEmail    string
	DemoDriverPassword string
	StudentRule        *StudentEmailRule
}

// AuthDeps groups the collaborators of AuthService.
type AuthDeps struct {
	Identities  ports.IdentityProvider
	OAuth       ports.OAuthVerifier
	Users       ports.UserRepository
	Roles       *RoleResolver
	Revocations ports.TokenRevoker
	Resets      ports.ResetTokenStore
	States      ports.OAuthStateStore
	Notifier    ports.ResetNotifier
}

// AuthService implements driver and student login on top of the identity
// boundaries and the users collection.
type AuthService struct {
	deps AuthDeps
	opts AuthOptions
	log  zerolog.Logger
	now  func() time.Time
}

func NewAuthService(deps AuthDeps, opts AuthOptions, log zerolog.Logger) *AuthService {
	if opts.DurableTTL <= 0 {
		opts.DurableTTL = defaultDurableTTL
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = defaultResetTTL
	}
	if opts.OAuthStateTTL <= 0 {
		opts.OAuthStateTTL = defaultOAuthStateTTL
	}
	if opts.StudentRule == nil {
		opts.StudentRule = DefaultStudentEmailRule
	}
	opts.DemoDriverEmail = strings.ToLower(strings.TrimSpace(opts.DemoDriverEmail))
	return &AuthService{
		deps: deps,
		opts: opts,
		log:  log,
		now:  time.Now,
	}
}

// LoginDriver authenticates a password account and requires the driver role.
// rememberMe selects a durable token; otherwise the token is session-scoped.
func (s *AuthService) LoginDriver(ctx context.Context, email, password string, rememberMe bool) (*domain.Session, error) {
	session, err := s.loginDriver(ctx, email, password, rememberMe)
	recordLogin("driver", err)
	return session, err
}

func (s *AuthService) loginDriver(ctx context.Context, email, password string, rememberMe bool) (*domain.Session, error) {
	identity, err := s.deps.Identities.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user, err := s.deps.Users.FindByID(ctx, identity.UID)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("login driver: %w", err)
	}

	if s.isDemoDriver(identity.Email) {
		user, err = s.healDemoDriver(ctx, identity, user, now)
		if err != nil {
			return nil, err
		}
	} else {
		switch {
		case user == nil:
			s.signOut(identity, domain.ErrNotRegistered)
			return nil, domain.ErrNotRegistered
		case user.Role != domain.RoleDriver:
			s.signOut(identity, domain.ErrNotADriver)
			return nil, domain.ErrNotADriver
		}
	}

	if err := s.deps.Users.TouchLastLogin(ctx, identity.UID, now); err != nil {
		s.log.Warn().Err(err).Str("uid", identity.UID).Msg("failed to update last login")
	}
	user.LastLogin = now

	return s.issueSession(*user, rememberMe)
}

// healDemoDriver creates or corrects the demo account's profile inline.
func (s *AuthService) healDemoDriver(ctx context.Context, identity *domain.Identity, user *domain.User, now time.Time) (*domain.User, error) {
	if user == nil {
		user = &domain.User{
			ID:        identity.UID,
			Email:     identity.Email,
			Name:      demoDriverName,
			Role:      domain.RoleDriver,
			CreatedAt: now,
			LastLogin: now,
		}
		if err := s.deps.Users.Save(ctx, user); err != nil {
			return nil, fmt.Errorf("create demo driver profile: %w", err)
		}
		s.log.Info().Str("uid", identity.UID).Msg("demo driver profile created during login")
		return user, nil
	}
	if user.Role != domain.RoleDriver {
		if err := s.deps.Users.SetRole(ctx, identity.UID, domain.RoleDriver); err != nil {
			return nil, fmt.Errorf("fix demo driver role: %w", err)
		}
		user.Role = domain.RoleDriver
		s.log.Info().Str("uid", identity.UID).Msg("demo driver role corrected during login")
	}
	return user, nil
}

// LoginStudent completes the institutional OAuth flow.
func (s *AuthService) LoginStudent(ctx context.Context, in ports.StudentLoginInput) (*domain.Session, error) {
	session, err := s.loginStudent(ctx, in)
	recordLogin("student", err)
	return session, err
}

func (s *AuthService) loginStudent(ctx context.Context, in ports.StudentLoginInput) (*domain.Session, error) {
	if in.ProviderError != "" {
		return nil, domain.NewAuthError(domain.AuthCode(strings.TrimPrefix(in.ProviderError, "auth/")))
	}

	idToken := in.IDToken
	if idToken == "" && in.Code != "" {
		if err := s.deps.States.Consume(ctx, in.State); err != nil {
			return nil, err
		}
		var err error
		if idToken, err = s.deps.OAuth.Exchange(ctx, in.Code); err != nil {
			return nil, err
		}
	}
	if idToken == "" {
		return nil, domain.NewAuthError(domain.CodeInvalidCredential)
	}

	identity, err := s.deps.OAuth.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(identity.Email))
	if email == "" {
		s.signOut(identity, domain.NewAuthError(domain.CodeMissingEmail))
		return nil, domain.NewAuthError(domain.CodeMissingEmail)
	}
	if err := s.opts.StudentRule.Validate(email); err != nil {
		s.signOut(identity, domain.ErrInvalidStudentEmail)
		return nil, err
	}
	info, _ := s.opts.StudentRule.Extract(email)

	now := s.now().UTC()
	user := &domain.User{
		ID:        identity.UID,
		Email:     email,
		Name:      identity.DisplayName,
		Role:      domain.RoleStudent,
		Student:   &info,
		CreatedAt: now,
		LastLogin: now,
	}
	if existing, err := s.deps.Users.FindByID(ctx, identity.UID); err == nil && !existing.CreatedAt.IsZero() {
		user.CreatedAt = existing.CreatedAt
	}
	if err := s.deps.Users.Save(ctx, user); err != nil {
		return nil, fmt.Errorf("save student profile: %w", err)
	}

	s.log.Info().Str("uid", user.ID).Str("roll_number", info.RollNumber).Msg("student signed in")
	return s.issueSession(*user, true)
}

// StudentAuthURL returns the provider URL with the institutional domain hint
// and the state the code login must echo back.
func (s *AuthService) StudentAuthURL(ctx context.Context) (string, string, error) {
	state, err := s.deps.States.Issue(ctx, s.opts.OAuthStateTTL)
	if err != nil {
		return "", "", err
	}
	return s.deps.OAuth.AuthCodeURL(state), state, nil
}

// Logout deny-lists the token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if tokenID == "" {
		return nil
	}
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.deps.Revocations.Revoke(ctx, tokenID, ttl); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// ResolveRole is the canonical role lookup used by every entry point.
func (s *AuthService) ResolveRole(ctx context.Context, id domain.Identity) domain.Role {
	return s.deps.Roles.Resolve(ctx, id)
}

// RegisterDriver creates a password account with a driver profile.
func (s *AuthService) RegisterDriver(ctx context.Context, in ports.RegisterDriverInput) (*domain.User, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, domain.ErrInvalidDriver
	}
	identity, err := s.deps.Identities.CreateAccount(ctx, in.Email, in.Password, name)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:        identity.UID,
		Email:     identity.Email,
		Name:      name,
		Role:      domain.RoleDriver,
		CreatedAt: now,
	}
	if err := s.deps.Users.Save(ctx, user); err != nil {
		return nil, fmt.Errorf("save driver profile: %w", err)
	}
	s.log.Info().Str("uid", user.ID).Str("email", user.Email).Msg("driver account registered")
	return user, nil
}

// RequestPasswordReset issues a single-use token for an existing account.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	identity, err := s.deps.Identities.LookupEmail(ctx, email)
	if err != nil {
		return err
	}
	token, err := s.deps.Resets.Issue(ctx, identity.Email, s.opts.ResetTTL)
	if err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}
	if err := s.deps.Notifier.SendPasswordReset(ctx, identity.Email, token); err != nil {
		return fmt.Errorf("send reset token: %w", err)
	}
	return nil
}

// ConfirmPasswordReset consumes the token and sets a policy-compliant password.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if check := ValidatePassword(newPassword); !check.Valid {
		return &domain.PasswordPolicyError{Reasons: check.Errors}
	}
	email, err := s.deps.Resets.Consume(ctx, token)
	if err != nil {
		return err
	}
	if err := s.deps.Identities.SetPassword(ctx, email, newPassword); err != nil {
		return err
	}
	s.log.Info().Str("email", email).Msg("password reset completed")
	return nil
}

func (s *AuthService) CheckPassword(password string) domain.PasswordCheck {
	return ValidatePassword(password)
}

// EnsureDemoDriver seeds the demo driver account and profile when demo
// credentials are configured.
func (s *AuthService) EnsureDemoDriver(ctx context.Context) error {
	if s.opts.DemoDriverEmail == "" || s.opts.DemoDriverPassword == "" {
		return nil
	}

	identity, err := s.deps.Identities.LookupEmail(ctx, s.opts.DemoDriverEmail)
	if errors.Is(err, domain.NewAuthError(domain.CodeUserNotFound)) {
		identity, err = s.deps.Identities.CreateAccount(ctx, s.opts.DemoDriverEmail, s.opts.DemoDriverPassword, demoDriverName)
	}
	if err != nil {
		return fmt.Errorf("ensure demo driver: %w", err)
	}

	user, err := s.deps.Users.FindByID(ctx, identity.UID)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return fmt.Errorf("ensure demo driver: %w", err)
	}
	if _, err := s.healDemoDriver(ctx, identity, user, s.now().UTC()); err != nil {
		return fmt.Errorf("ensure demo driver: %w", err)
	}
	return nil
}

func (s *AuthService) isDemoDriver(email string) bool {
	return s.opts.DemoDriverEmail != "" && strings.EqualFold(strings.TrimSpace(email), s.opts.DemoDriverEmail)
}

// signOut ends an authenticated identity whose role check failed. No session
// token is issued for it.
func (s *AuthService) signOut(identity *domain.Identity, reason *domain.AuthError) {
	metrics.ForcedSignOutsTotal.WithLabelValues(string(reason.Code)).Inc()
	s.log.Warn().
		Str("uid", identity.UID).
		Str("email", identity.Email).
		Str("reason", string(reason.Code)).
		Msg("identity signed out")
}

func (s *AuthService) issueSession(user domain.User, persistent bool) (*domain.Session, error) {
	if s.opts.JWTSecret == "" {
		return nil, domain.NewAuthError(domain.CodeConfiguration)
	}

	ttl := s.opts.SessionTTL
	if persistent {
		ttl = s.opts.DurableTTL
	}
	now := s.now()
	expiresAt := now.Add(ttl)
	tokenID := uuid.NewString()

	claims := jwt.MapClaims{
		"sub":     user.ID,
		"email":   user.Email,
		"role":    string(user.Role),
		"jti":     tokenID,
		"persist": persistent,
		"iat":     now.Unix(),
		"exp":     expiresAt.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(s.opts.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &domain.Session{
		Token:      signed,
		TokenID:    tokenID,
		ExpiresAt:  expiresAt,
		Persistent: persistent,
		User:       user,
	}, nil
}

func recordLogin(flow string, err error) {
	result := "success"
	if err != nil {
		result = "error"
		var ae *domain.AuthError
		if errors.As(err, &ae) {
			result = string(ae.Code)
		}
	}
	metrics.LoginsTotal.WithLabelValues(flow, result).Inc()
}
