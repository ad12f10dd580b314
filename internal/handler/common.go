package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ambulance-dispatch/internal/apperr"
	"github.com/iliyamo/ambulance-dispatch/internal/dispatch"
	"github.com/iliyamo/ambulance-dispatch/internal/middleware"
)

// requestTimeout bounds the store work of a single request.
const requestTimeout = 5 * time.Second

func requestCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// respondError writes err as {"error": msg} with the status its kind maps
// to.  Storage failures are reported generically; the detail goes to the
// request log through the returned error.
func respondError(c echo.Context, err error) error {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		c.Set(middleware.ErrorKey, err)
		msg := "storage unavailable, please retry"
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
		return c.JSON(status, echo.Map{"error": msg})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}

// actor returns the authenticated caller.  Routes using it run behind
// JWTAuth, so a missing identity is a programming error reported as 401.
func actor(c echo.Context) (dispatch.Actor, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		return dispatch.Actor{}, false
	}
	return dispatch.Actor{ID: id, Role: middleware.Role(c)}, true
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid %s", apperr.ErrValidation, name)
	}
	return id, nil
}

func mapURL(bookingID uint64) string {
	return "/map/" + strconv.FormatUint(bookingID, 10)
}
