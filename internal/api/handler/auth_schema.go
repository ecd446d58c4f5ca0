package handler

import (
	"time"

	"github.com/campusbus/bus-tracker/internal/core/domain"
)

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// --- Request / Response types ---

type driverLoginRequest struct {
	Email      string `json:"email"       validate:"required"`
	Password   string `json:"password"    validate:"required"`
	RememberMe bool   `json:"remember_me"`
}

// studentLoginRequest carries the popup outcome: an ID token, an
// authorization code, or the provider error code when the popup failed.
type studentLoginRequest struct {
	IDToken string `json:"id_token" validate:"required_without_all=Code Error"`
	Code    string `json:"code"`
	State   string `json:"state" validate:"required_with=Code"`
	Error   string `json:"error"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type resetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetConfirmRequest struct {
	Token    string `json:"token"    validate:"required"`
	Password string `json:"password" validate:"required"`
}

type registerDriverRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name"     validate:"required,max=100"`
}

type sessionResponse struct {
	Token      string      `json:"token"`
	ExpiresAt  time.Time   `json:"expires_at"`
	Persistent bool        `json:"persistent"`
	User       domain.User `json:"user"`
}

type oauthURLResponse struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

type meResponse struct {
	UID   string      `json:"uid"`
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

type statusResponse struct {
	Status string `json:"status"`
}
