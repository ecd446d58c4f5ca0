package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/campusbus/bus-tracker/internal/core/domain"
	"github.com/campusbus/bus-tracker/internal/core/ports"
	"github.com/campusbus/bus-tracker/internal/infrastructure/ws"
)

// LocationHandler serves the broadcast location to dashboards.
type LocationHandler struct {
	tracking   ports.TrackingService
	places     ports.PlaceService
	staleAfter time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

func NewLocationHandler(tracking ports.TrackingService, places ports.PlaceService, staleAfter time.Duration, log zerolog.Logger) *LocationHandler {
	return &LocationHandler{
		tracking:   tracking,
		places:     places,
		staleAfter: staleAfter,
		log:        log,
		now:        time.Now,
	}
}

// Get returns the current bus location with its staleness.
//
// @Summary      Current bus location
// @Tags         location
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  locationSnapshot
// @Failure      401  {object}  errorResponse
// @Router       /v1/location [get]
func (h *LocationHandler) Get(c echo.Context) error {
	loc, err := h.tracking.CurrentLocation(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newSnapshot(loc, h.now(), h.staleAfter))
}

// Place describes where the bus currently is.
//
// @Summary      Reverse-geocoded bus position
// @Tags         location
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  placeResponse
// @Failure      404  {object}  errorResponse
// @Router       /v1/location/place [get]
func (h *LocationHandler) Place(c echo.Context) error {
	ctx := c.Request().Context()
	loc, err := h.tracking.CurrentLocation(ctx)
	if err != nil {
		return err
	}
	if loc == nil {
		return domain.ErrNoLocation
	}
	return c.JSON(http.StatusOK, placeResponse{
		Place:     h.places.Describe(ctx, *loc),
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
	})
}

// Stream pushes a snapshot immediately and after every write until the
// client disconnects.
//
// @Summary      Live bus location (WebSocket)
// @Tags         location
// @Security     BearerAuth
// @Success      101
// @Router       /v1/location/stream [get]
func (h *LocationHandler) Stream(c echo.Context) error {
	conn, err := ws.Upgrade(c.Response(), c.Request(), h.log)
	if err != nil {
		h.log.Warn().Err(err).Msg("location stream upgrade failed")
		return nil
	}

	sub, err := h.tracking.SubscribeToLocation(c.Request().Context(), func(loc *domain.BusLocation) {
		_ = conn.SendLatestEvent(ws.EventLocationUpdate, newSnapshot(loc, h.now(), h.staleAfter))
	})
	if err != nil {
		h.log.Error().Err(err).Msg("location subscription failed")
		conn.Reject(ws.EventStreamError, streamErrorPayload{Error: "location unavailable, please reconnect"})
		return nil
	}
	defer sub.Unsubscribe()

	go conn.WritePump()
	conn.ReadPump(func(ws.Message) {})
	return nil
}
