package middleware

// identity.go holds the context keys the auth middleware fills and the
// accessors handlers and other middleware read them through.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ambulance-dispatch/internal/model"
)

const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// SessionCookie is the cookie browser clients carry the access token in.
const SessionCookie = "session"

// UserID returns the authenticated user's id.  ok is false for anonymous
// requests.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(ctxUserID).(uint64)
	return id, ok && id != 0
}

// Role returns the authenticated user's role, or "" when anonymous.
func Role(c echo.Context) model.Role {
	r, _ := c.Get(ctxRole).(model.Role)
	return r
}

// SetIdentity stores the caller's identity on the context.
func SetIdentity(c echo.Context, id uint64, role model.Role) {
	c.Set(ctxUserID, id)
	c.Set(ctxRole, role)
}

// identityKey returns the user id as a string for rate-limit keys, or
// "anon" when no user is authenticated.
func identityKey(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
