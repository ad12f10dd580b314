package middleware // reusable HTTP middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ambulance-dispatch/internal/model"
	"github.com/iliyamo/ambulance-dispatch/internal/utils"
)

// JWTAuth returns an Echo middleware that validates an access token and
// stores the caller's id and role on the context (see UserID and Role).
// The token is read from a Bearer Authorization header, or failing that
// from the session cookie set at login.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := tokenFromRequest(c)
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing token"})
			}
			if !authenticate(c, secret, raw) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			return next(c)
		}
	}
}

// OptionalAuth is JWTAuth for routes that also serve anonymous callers: a
// valid token sets the identity, anything else is ignored.
func OptionalAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if raw := tokenFromRequest(c); raw != "" {
				authenticate(c, secret, raw)
			}
			return next(c)
		}
	}
}

func authenticate(c echo.Context, secret, raw string) bool {
	claims, err := utils.ParseAccessToken(secret, raw)
	if err != nil {
		return false
	}
	role, ok := model.ParseRole(claims.Role)
	if !ok {
		return false
	}
	id, _ := claims.UserID()
	SetIdentity(c, id, role)
	return true
}

func tokenFromRequest(c echo.Context) string {
	if auth := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if ck, err := c.Cookie(SessionCookie); err == nil {
		return ck.Value
	}
	return ""
}
