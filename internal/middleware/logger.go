package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ambulance-dispatch/internal/metrics"
)

// ErrorKey is where handlers leave an error they answered for themselves
// so that it still reaches the request log.
const ErrorKey = "handler_error"

// RequestLogger assigns each request an id (echoing X-Request-ID when the
// client sent one), logs it when it finishes and records the HTTP metrics.
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid := req.Header.Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, rid)

			err := next(c)
			if err != nil {
				c.Error(err)
			} else if herr, ok := c.Get(ErrorKey).(error); ok {
				err = herr
			}

			status := c.Response().Status
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			elapsed := time.Since(start)
			metrics.HTTPRequestsTotal.WithLabelValues(req.Method, path, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(req.Method, path, strconv.Itoa(status)).Observe(elapsed.Seconds())

			fields := []zap.Field{
				zap.String("request_id", rid),
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", status),
				zap.Duration("latency", elapsed),
				zap.String("ip", c.RealIP()),
			}
			if id, ok := UserID(c); ok {
				fields = append(fields, zap.Uint64("user_id", id))
			}
			switch {
			case status >= http.StatusInternalServerError:
				log.Error("request", append(fields, zap.Error(err))...)
			case status >= http.StatusBadRequest:
				log.Warn("request", fields...)
			default:
				log.Info("request", fields...)
			}
			return nil
		}
	}
}

// Recover turns a handler panic into a 500 and logs it.
func Recover(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					if r == http.ErrAbortHandler {
						panic(r)
					}
					log.Error("panic recovered", zap.Any("panic", r), zap.String("path", c.Request().URL.Path), zap.Stack("stack"))
					err = echo.NewHTTPError(http.StatusInternalServerError, "internal error")
				}
			}()
			return next(c)
		}
	}
}
