package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/campusbus/bus-tracker/internal/core/domain"
)

type sessionClaims struct {
	UID       string
	Email     string
	Role      domain.Role
	TokenID   string
	ExpiresAt time.Time
}

// ctxClaims extracts the claims injected by the Auth middleware. A token
// without a subject is structurally valid but unusable, so it is rejected.
func ctxClaims(c echo.Context) (sessionClaims, error) {
	var sc sessionClaims
	sc.UID, _ = c.Get("uid").(string)
	if sc.UID == "" {
		return sc, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}

	sc.Email, _ = c.Get("email").(string)
	role, _ := c.Get("role").(string)
	sc.Role, _ = domain.ParseRole(role)
	sc.TokenID, _ = c.Get("jti").(string)
	sc.ExpiresAt, _ = c.Get("exp").(time.Time)
	return sc, nil
}

func (sc sessionClaims) identity() domain.Identity {
	return domain.Identity{UID: sc.UID, Email: sc.Email}
}
