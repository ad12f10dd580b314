// Package router registers the HTTP routes and their middleware.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ambulance-dispatch/internal/handler"
	"github.com/iliyamo/ambulance-dispatch/internal/middleware"
	"github.com/iliyamo/ambulance-dispatch/internal/model"
)

// RegisterRoutes registers the unauthenticated operational endpoints and
// the role-based landing redirect.
func RegisterRoutes(e *echo.Echo, jwtSecret string) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", handler.Metrics)
	e.GET("/", handler.Home, middleware.OptionalAuth(jwtSecret))
}

// RegisterAuth registers account and session routes.  limit throttles the
// credential endpoints.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	e.POST("/register", a.Register, limit)
	e.POST("/login", a.Login, limit)
	e.POST("/refresh", a.Refresh, limit)

	auth := middleware.JWTAuth(jwtSecret)
	e.GET("/logout", a.Logout, auth)
	e.GET("/me", a.Me, auth)
}

// RegisterPatient registers the patient pages.
func RegisterPatient(e *echo.Echo, d *handler.DispatchHandler, jwtSecret string) {
	mw := restricted(jwtSecret, model.RolePatient)
	e.GET("/ambulance_page", d.AmbulancePage, mw...)
	e.POST("/book_ambulance/:ambulance_id", d.BookAmbulance, mw...)
}

// RegisterDriver registers the driver pages and booking decisions.
func RegisterDriver(e *echo.Echo, d *handler.DispatchHandler, jwtSecret string) {
	mw := restricted(jwtSecret, model.RoleDriver)
	e.GET("/requests_page", d.RequestsPage, mw...)
	e.POST("/requests_page", d.ReportLocation, mw...)
	e.POST("/ambulance/status", d.SetAmbulanceStatus, mw...)
	e.POST("/confirm_booking/:booking_id", d.ConfirmBooking, mw...)
	e.POST("/reject_booking/:booking_id", d.RejectBooking, mw...)
	e.POST("/complete_booking/:booking_id", d.CompleteBooking, mw...)
}

// RegisterMap registers the live map routes.  Either party of a booking may
// use them; the dispatch service checks which.
func RegisterMap(e *echo.Echo, m *handler.MapHandler, jwtSecret string) {
	mw := restricted(jwtSecret, model.RolePatient, model.RoleDriver)
	e.GET("/map/:booking_id", m.Show, mw...)
	e.GET("/ws/map/:booking_id", m.Stream, mw...)
}

// RegisterChat registers the HealthMate endpoint.  Signed-in users keep
// their conversation across devices; others get a cookie session.
func RegisterChat(e *echo.Echo, h *handler.ChatHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	e.POST("/api/chat", h.Chat, middleware.OptionalAuth(jwtSecret), limit)
}

// restricted is the middleware chain of a route open to the given roles.
// No prefix-less groups: their catch-all would authenticate unknown paths.
func restricted(jwtSecret string, roles ...model.Role) []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{middleware.JWTAuth(jwtSecret), middleware.RequireRole(roles...)}
}
