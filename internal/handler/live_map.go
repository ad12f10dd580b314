package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/ambulance-dispatch/internal/apperr"
	"github.com/iliyamo/ambulance-dispatch/internal/dispatch"
	"github.com/iliyamo/ambulance-dispatch/internal/metrics"
	"github.com/iliyamo/ambulance-dispatch/internal/model"
)

// MapHandler serves the live map of a confirmed booking, once as JSON and
// as a websocket stream.
type MapHandler struct {
	Dispatch *dispatch.Service
	Interval time.Duration
	Log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewMapHandler(svc *dispatch.Service, interval time.Duration, log *zap.Logger) *MapHandler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MapHandler{
		Dispatch: svc,
		Interval: interval,
		Log:      log.Named("live_map"),
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}
}

// mapFrame is one message on the live map stream.
type mapFrame struct {
	Type   string          `json:"type"` // view | closed
	View   *model.LiveView `json:"view,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

// Show returns the current live view.
func (h *MapHandler) Show(c echo.Context) error {
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

	view, err := h.Dispatch.GetLiveView(ctx, a, bookingID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// Stream upgrades to a websocket and pushes the live view every Interval
// until the booking leaves confirmed, the client goes away or a write
// fails.  The first view is read before upgrading so that refusals are
// ordinary JSON errors.
func (h *MapHandler) Stream(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	bookingID, err := pathID(c, "booking_id")
	if err != nil {
		return respondError(c, err)
	}
	view, err := h.view(c.Request().Context(), a, bookingID)
	if err != nil {
		return respondError(c, err)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already answered the client
		h.Log.Debug("websocket upgrade failed", zap.Error(err))
		return nil
	}
	defer conn.Close()
	metrics.LiveViewStreams.Inc()
	defer metrics.LiveViewStreams.Dec()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	go func() {
		// the stream is one-way; reading only notices the client leaving
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()
	for {
		if err := h.write(conn, mapFrame{Type: "view", View: &view}); err != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		view, err = h.view(ctx, a, bookingID)
		switch {
		case errors.Is(err, apperr.ErrState), errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrForbidden):
			_ = h.write(conn, mapFrame{Type: "closed", Reason: err.Error()})
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return nil
		case err != nil:
			if ctx.Err() == nil {
				h.Log.Warn("live view refresh failed", zap.Uint64("booking_id", bookingID), zap.Error(err))
			}
			return nil
		}
	}
}

func (h *MapHandler) view(ctx context.Context, a dispatch.Actor, bookingID uint64) (model.LiveView, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	return h.Dispatch.GetLiveView(ctx, a, bookingID)
}

func (h *MapHandler) write(conn *websocket.Conn, f mapFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(f)
}
