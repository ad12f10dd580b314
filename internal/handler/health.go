package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Health is the liveness probe used by load balancers and monitoring.  It
// answers "ok" without touching the store.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Metrics exposes the Prometheus registry.
var Metrics = echo.WrapHandler(promhttp.Handler())
