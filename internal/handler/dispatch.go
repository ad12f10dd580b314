package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ambulance-dispatch/internal/apperr"
	"github.com/iliyamo/ambulance-dispatch/internal/dispatch"
	"github.com/iliyamo/ambulance-dispatch/internal/middleware"
	"github.com/iliyamo/ambulance-dispatch/internal/model"
)

// DispatchHandler serves the patient and driver pages.
type DispatchHandler struct {
	Dispatch *dispatch.Service
}

func NewDispatchHandler(svc *dispatch.Service) *DispatchHandler {
	if svc == nil {
		panic("nil dispatch service passed to NewDispatchHandler")
	}
	return &DispatchHandler{Dispatch: svc}
}

// Home redirects to the page for the caller's role, or to the login page.
func Home(c echo.Context) error {
	switch middleware.Role(c) {
	case model.RolePatient:
		return c.Redirect(http.StatusFound, "/ambulance_page")
	case model.RoleDriver:
		return c.Redirect(http.StatusFound, "/requests_page")
	}
	return c.Redirect(http.StatusFound, "/login")
}

// ----- patient -----

type bookReq struct {
	PatientLat *float64 `json:"patient_lat"`
	PatientLng *float64 `json:"patient_lng"`
}

// AmbulancePage lists available ambulances, or the patient's active
// booking when there is one.
func (h *DispatchHandler) AmbulancePage(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	list, err := h.Dispatch.ListAvailable(ctx, a)
	if err == nil {
		if list == nil {
			list = []model.AmbulanceListing{}
		}
		return c.JSON(http.StatusOK, echo.Map{"has_active_booking": false, "ambulances": list})
	}
	if !errors.Is(err, apperr.ErrConflict) {
		return respondError(c, err)
	}

	active, err := h.Dispatch.ActiveBooking(ctx, a.ID)
	if err != nil {
		return respondError(c, err)
	}
	if active == nil {
		// released between the two reads; the client simply reloads
		return c.JSON(http.StatusOK, echo.Map{"has_active_booking": false, "ambulances": []model.AmbulanceListing{}})
	}
	out := echo.Map{"has_active_booking": true, "booking": active}
	if active.Status == model.BookingConfirmed {
		out["map_url"] = mapURL(active.ID)
	}
	return c.JSON(http.StatusOK, out)
}

// BookAmbulance creates a pending booking for the path's ambulance.
func (h *DispatchHandler) BookAmbulance(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	ambulanceID, err := pathID(c, "ambulance_id")
	if err != nil {
		return respondError(c, err)
	}
	var req bookReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	b, err := h.Dispatch.CreateBooking(ctx, a.ID, ambulanceID, req.PatientLat, req.PatientLng)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"booking_id": b.ID, "status": b.Status})
}

// ----- driver -----

type locationReq struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

type statusReq struct {
	Status string `json:"status"`
}

// RequestsPage shows the driver's ambulance and its pending requests.
func (h *DispatchHandler) RequestsPage(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	return h.requests(c, a)
}

// ReportLocation stores the driver's position and answers like
// RequestsPage.
func (h *DispatchHandler) ReportLocation(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	var req locationReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.Dispatch.UpdateDriverLocation(ctx, a.ID, req.Lat, req.Lng); err != nil {
		return respondError(c, err)
	}
	return h.requests(c, a)
}

func (h *DispatchHandler) requests(c echo.Context, a dispatch.Actor) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	amb, pending, err := h.Dispatch.PendingRequests(ctx, a.ID)
	if err != nil {
		return respondError(c, err)
	}
	if pending == nil {
		pending = []model.Booking{}
	}
	return c.JSON(http.StatusOK, echo.Map{"ambulance": amb, "requests": pending})
}

// SetAmbulanceStatus takes the driver's ambulance in or out of service.
func (h *DispatchHandler) SetAmbulanceStatus(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	var req statusReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	amb, err := h.Dispatch.SetAmbulanceStatus(ctx, a.ID, model.AmbulanceStatus(req.Status))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, amb)
}

// ConfirmBooking accepts a pending request; the answer carries the map link.
func (h *DispatchHandler) ConfirmBooking(c echo.Context) error {
	return h.decide(c, h.Dispatch.ConfirmBooking, true)
}

// RejectBooking declines a pending request.
func (h *DispatchHandler) RejectBooking(c echo.Context) error {
	return h.decide(c, h.Dispatch.RejectBooking, false)
}

// CompleteBooking closes a confirmed booking.
func (h *DispatchHandler) CompleteBooking(c echo.Context) error {
	return h.decide(c, h.Dispatch.CompleteBooking, false)
}

type transitionFunc func(ctx context.Context, driverID, bookingID uint64) (model.Booking, error)

func (h *DispatchHandler) decide(c echo.Context, fn transitionFunc, withMap bool) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	bookingID, err := pathID(c, "booking_id")
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	b, err := fn(ctx, a.ID, bookingID)
	if err != nil {
		return respondError(c, err)
	}
	out := echo.Map{"booking_id": b.ID, "status": b.Status}
	if withMap {
		out["map_url"] = mapURL(b.ID)
	}
	return c.JSON(http.StatusOK, out)
}
