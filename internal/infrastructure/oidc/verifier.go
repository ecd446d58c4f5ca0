// Package oidc verifies institutional OpenID Connect ID tokens and runs the
// authorization-code exchange for student sign-in.
package oidc

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/campusbus/bus-tracker/internal/core/domain"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	// Tokens naming a kid we have not verified before may trigger a JWKS
	// refetch; those refetches are capped.
	unknownKeyRefreshEvery = 5 * time.Second
	unknownKeyRefreshBurst = 10
)

var defaultIssuers = []string{"https://accounts.google.com", "accounts.google.com"}

var (
	errKeyFetch   = errors.New("jwks fetch failed")
	errKeyLimited = errors.New("unknown signing key refresh rate limited")
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	JWKSURL      string
	HostedDomain string
	Issuers      []string
}

type idClaims struct {
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified,omitempty"`
	Name          string `json:"name"`
}

// Verifier implements ports.OAuthVerifier on top of go-oidc. Google signs
// with more than one issuer string, so the issuer is checked here rather
// than by the library.
type Verifier struct {
	oauth      *oauth2.Config
	cfg        Config
	httpClient *http.Client
	idTokens   *gooidc.IDTokenVerifier
	keys       *keySet
	log        zerolog.Logger
}

func NewVerifier(cfg Config, log zerolog.Logger) *Verifier {
	if len(cfg.Issuers) == 0 {
		cfg.Issuers = defaultIssuers
	}
	client := &http.Client{Timeout: defaultHTTPTimeout}
	v := &Verifier{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		cfg:        cfg,
		httpClient: client,
		log:        log,
	}
	if cfg.JWKSURL != "" {
		remote := gooidc.NewRemoteKeySet(gooidc.ClientContext(context.Background(), client), cfg.JWKSURL)
		v.keys = &keySet{
			remote:  remote,
			known:   make(map[string]struct{}),
			limiter: rate.NewLimiter(rate.Every(unknownKeyRefreshEvery), unknownKeyRefreshBurst),
		}
		v.idTokens = gooidc.NewVerifier(cfg.Issuers[0], v.keys, &gooidc.Config{
			ClientID:             cfg.ClientID,
			SupportedSigningAlgs: []string{gooidc.RS256},
			SkipIssuerCheck:      true,
		})
	}
	return v
}

// AuthCodeURL restricts the account chooser to the institutional domain.
func (v *Verifier) AuthCodeURL(state string) string {
	opts := []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("prompt", "select_account")}
	if v.cfg.HostedDomain != "" {
		opts = append(opts, oauth2.SetAuthURLParam("hd", v.cfg.HostedDomain))
	}
	return v.oauth.AuthCodeURL(state, opts...)
}

func (v *Verifier) Exchange(ctx context.Context, code string) (string, error) {
	if v.cfg.ClientID == "" || v.cfg.TokenURL == "" {
		return "", domain.NewAuthError(domain.CodeConfiguration)
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, v.httpClient)

	tok, err := v.oauth.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			v.log.Warn().Str("error_code", re.ErrorCode).Msg("authorization code rejected")
			return "", domain.NewAuthError(domain.CodeInvalidCredential)
		}
		v.log.Warn().Err(err).Msg("token exchange failed")
		return "", domain.NewAuthError(domain.CodeNetwork)
	}

	idToken, ok := tok.Extra("id_token").(string)
	if !ok || idToken == "" {
		return "", domain.NewAuthError(domain.CodeInvalidCredential)
	}
	return idToken, nil
}

// Verify checks signature, audience, issuer and expiry of an ID token.
func (v *Verifier) Verify(ctx context.Context, idToken string) (*domain.Identity, error) {
	if v.cfg.ClientID == "" || v.idTokens == nil {
		return nil, domain.NewAuthError(domain.CodeConfiguration)
	}

	outcome := &verifyOutcome{}
	tok, err := v.idTokens.Verify(context.WithValue(ctx, verifyOutcomeKey{}, outcome), idToken)
	if err != nil {
		if errors.Is(outcome.err, errKeyFetch) {
			v.log.Warn().Err(err).Msg("failed to fetch signing keys")
			return nil, domain.NewAuthError(domain.CodeNetwork)
		}
		v.log.Debug().Err(err).Msg("id token rejected")
		return nil, domain.NewAuthError(domain.CodeInvalidCredential)
	}

	if !v.trustedIssuer(tok.Issuer) || tok.Subject == "" {
		return nil, domain.NewAuthError(domain.CodeInvalidCredential)
	}

	var claims idClaims
	if err := tok.Claims(&claims); err != nil {
		return nil, domain.NewAuthError(domain.CodeInvalidCredential)
	}
	if claims.Email != "" && claims.EmailVerified != nil && !*claims.EmailVerified {
		return nil, domain.NewAuthError(domain.CodeInvalidCredential)
	}

	return &domain.Identity{
		UID:         tok.Subject,
		Email:       strings.ToLower(claims.Email),
		DisplayName: claims.Name,
	}, nil
}

func (v *Verifier) trustedIssuer(iss string) bool {
	for _, want := range v.cfg.Issuers {
		if iss == want {
			return true
		}
	}
	return false
}

type verifyOutcomeKey struct{}

// verifyOutcome carries the key set's failure reason back out of go-oidc,
// which flattens it into a string.
type verifyOutcome struct {
	err error
}

// keySet wraps the remote JWKS and caps refetches caused by unknown kids.
type keySet struct {
	remote  *gooidc.RemoteKeySet
	limiter *rate.Limiter

	mu    sync.Mutex
	known map[string]struct{}
}

func (k *keySet) VerifySignature(ctx context.Context, raw string) ([]byte, error) {
	kid := tokenKeyID(raw)
	if !k.isKnown(kid) && !k.limiter.Allow() {
		return nil, k.fail(ctx, errKeyLimited)
	}

	payload, err := k.remote.VerifySignature(ctx, raw)
	if err != nil {
		if isFetchError(err) {
			return nil, k.fail(ctx, errKeyFetch)
		}
		return nil, k.fail(ctx, err)
	}

	k.mu.Lock()
	k.known[kid] = struct{}{}
	k.mu.Unlock()
	return payload, nil
}

func (k *keySet) isKnown(kid string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.known[kid]
	return ok
}

func (k *keySet) fail(ctx context.Context, err error) error {
	if out, ok := ctx.Value(verifyOutcomeKey{}).(*verifyOutcome); ok {
		out.err = err
	}
	return err
}

func tokenKeyID(raw string) string {
	tok, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return ""
	}
	kid, _ := tok.Header["kid"].(string)
	return kid
}

// isFetchError reports whether go-oidc failed to download the key set, as
// opposed to the token failing verification.
func isFetchError(err error) bool {
	var ue *url.Error
	if errors.As(err, &ue) {
		return true
	}
	return strings.Contains(err.Error(), "get keys failed")
}
