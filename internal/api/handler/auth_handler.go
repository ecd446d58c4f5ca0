package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/campusbus/bus-tracker/internal/api/middleware"
	"github.com/campusbus/bus-tracker/internal/core/domain"
	"github.com/campusbus/bus-tracker/internal/core/ports"
)

// AuthHandler serves the driver and student sign-in flows.
type AuthHandler struct {
	authService   ports.AuthService
	secureCookies bool
}

func NewAuthHandler(authService ports.AuthService, secureCookies bool) *AuthHandler {
	return &AuthHandler{authService: authService, secureCookies: secureCookies}
}

// DriverLogin authenticates a driver with email and password.
//
// @Summary      Driver login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      driverLoginRequest  true  "Driver credentials"
// @Success      200   {object}  sessionResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      429   {object}  errorResponse
// @Router       /v1/auth/driver/login [post]
func (h *AuthHandler) DriverLogin(c echo.Context) error {
	var req driverLoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	session, err := h.authService.LoginDriver(c.Request().Context(), req.Email, req.Password, req.RememberMe)
	if err != nil {
		return err
	}
	return h.respondSession(c, session)
}

// StudentOAuthURL returns the institutional sign-in URL.
//
// @Summary      Student OAuth URL
// @Tags         auth
// @Produce      json
// @Success      200  {object}  oauthURLResponse
// @Router       /v1/auth/student/oauth-url [get]
func (h *AuthHandler) StudentOAuthURL(c echo.Context) error {
	url, state, err := h.authService.StudentAuthURL(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, oauthURLResponse{URL: url, State: state})
}

// StudentLogin completes the institutional sign-in.
//
// @Summary      Student login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      studentLoginRequest  true  "Provider result"
// @Success      200   {object}  sessionResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /v1/auth/student/login [post]
func (h *AuthHandler) StudentLogin(c echo.Context) error {
	var req studentLoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	session, err := h.authService.LoginStudent(c.Request().Context(), ports.StudentLoginInput{
		IDToken:       req.IDToken,
		Code:          req.Code,
		State:         req.State,
		ProviderError: req.Error,
	})
	if err != nil {
		return err
	}
	return h.respondSession(c, session)
}

// ValidatePassword reports which password rules are broken. Advisory only.
//
// @Summary      Check a password against the policy
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      passwordRequest  true  "Password"
// @Success      200   {object}  domain.PasswordCheck
// @Router       /v1/auth/password/validate [post]
func (h *AuthHandler) ValidatePassword(c echo.Context) error {
	var req passwordRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload"})
	}
	return c.JSON(http.StatusOK, h.authService.CheckPassword(req.Password))
}

// RequestPasswordReset issues a reset token for a driver account.
//
// @Summary      Request a password reset
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      resetRequest  true  "Account email"
// @Success      202   {object}  statusResponse
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /v1/auth/driver/password-reset [post]
func (h *AuthHandler) RequestPasswordReset(c echo.Context) error {
	var req resetRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.authService.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, statusResponse{Status: "sent"})
}

// ConfirmPasswordReset sets a new password using a reset token.
//
// @Summary      Confirm a password reset
// @Tags         auth
// @Accept       json
// @Param        body  body  resetConfirmRequest  true  "Token and new password"
// @Success      204
// @Failure      400   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /v1/auth/driver/password-reset/confirm [post]
func (h *AuthHandler) ConfirmPasswordReset(c echo.Context) error {
	var req resetConfirmRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.authService.ConfirmPasswordReset(c.Request().Context(), req.Token, req.Password); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Logout revokes the current session token.
//
// @Summary      Logout
// @Tags         auth
// @Security     BearerAuth
// @Success      204
// @Failure      401  {object}  errorResponse
// @Router       /v1/auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	claims, err := ctxClaims(c)
	if err != nil {
		return err
	}
	if err := h.authService.Logout(c.Request().Context(), claims.TokenID, claims.ExpiresAt); err != nil {
		return err
	}

	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return c.NoContent(http.StatusNoContent)
}

// Me resolves the caller's role through the canonical resolver.
//
// @Summary      Current identity and role
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  meResponse
// @Failure      401  {object}  errorResponse
// @Router       /v1/auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	claims, err := ctxClaims(c)
	if err != nil {
		return err
	}
	role := h.authService.ResolveRole(c.Request().Context(), claims.identity())
	return c.JSON(http.StatusOK, meResponse{UID: claims.UID, Email: claims.Email, Role: role})
}

// RegisterDriver creates a driver account. Drivers only.
//
// @Summary      Register a driver account
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      registerDriverRequest  true  "New driver account"
// @Success      201   {object}  domain.User
// @Failure      400   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /v1/auth/driver/register [post]
func (h *AuthHandler) RegisterDriver(c echo.Context) error {
	var req registerDriverRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	user, err := h.authService.RegisterDriver(c.Request().Context(), ports.RegisterDriverInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, user)
}

// respondSession sets the session cookie and returns the token. Non-durable
// sessions get a browser-session cookie.
func (h *AuthHandler) respondSession(c echo.Context, s *domain.Session) error {
	cookie := &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    s.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	if s.Persistent {
		cookie.Expires = s.ExpiresAt
	}
	c.SetCookie(cookie)

	return c.JSON(http.StatusOK, sessionResponse{
		Token:      s.Token,
		ExpiresAt:  s.ExpiresAt,
		Persistent: s.Persistent,
		User:       s.User,
	})
}
