package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/campusbus/bus-tracker/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code,omitempty"`
	Reasons []string `json:"reasons,omitempty"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their appropriate HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>", "code": "<auth code>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, body := resolveError(err, log, c)
		_ = c.JSON(code, body)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, errorResponse) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, errorResponse{Error: fmt.Sprintf("%v", he.Message)}
	}

	var ae *domain.AuthError
	if errors.As(err, &ae) {
		return authStatus(ae.Code), errorResponse{Error: ae.Message, Code: string(ae.Code)}
	}

	var pe *domain.PasswordPolicyError
	if errors.As(err, &pe) {
		return http.StatusUnprocessableEntity, errorResponse{Error: "password does not meet policy", Reasons: pe.Reasons}
	}

	// Known domain errors → deterministic HTTP codes.
	switch {
	case errors.Is(err, domain.ErrInvalidDriver):
		return http.StatusBadRequest, errorResponse{Error: domain.ErrInvalidDriver.Error()}
	case errors.Is(err, domain.ErrDriverNotFound):
		return http.StatusNotFound, errorResponse{Error: domain.ErrDriverNotFound.Error()}
	case errors.Is(err, domain.ErrNoLocation):
		return http.StatusNotFound, errorResponse{Error: domain.ErrNoLocation.Error()}
	case errors.Is(err, domain.ErrRegistryUnavailable):
		return http.StatusServiceUnavailable, errorResponse{Error: domain.ErrRegistryUnavailable.Error()}
	case errors.Is(err, domain.ErrResetTokenInvalid):
		return http.StatusBadRequest, errorResponse{Error: domain.ErrResetTokenInvalid.Error()}
	case errors.Is(err, domain.ErrUserExists):
		return http.StatusConflict, errorResponse{Error: "an account with this email already exists"}
	case errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, errorResponse{Error: "service temporarily unavailable, please try again"}
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, errorResponse{Error: "internal server error"}
}

func authStatus(code domain.AuthCode) int {
	switch code {
	case domain.CodeUserNotFound:
		return http.StatusNotFound
	case domain.CodeWrongPassword, domain.CodeInvalidCredential:
		return http.StatusUnauthorized
	case domain.CodeTooManyRequests:
		return http.StatusTooManyRequests
	case domain.CodeInvalidEmail, domain.CodeMissingEmail, domain.CodeInvalidStudentEmail,
		domain.CodePopupClosed, domain.CodePopupBlocked, domain.CodePopupPending, domain.CodeStateMismatch:
		return http.StatusBadRequest
	case domain.CodeNetwork:
		return http.StatusServiceUnavailable
	case domain.CodeNotADriver, domain.CodeNotRegistered:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}
