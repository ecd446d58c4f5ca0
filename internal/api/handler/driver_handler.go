package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/campusbus/bus-tracker/internal/core/domain"
	"github.com/campusbus/bus-tracker/internal/core/ports"
	"github.com/campusbus/bus-tracker/internal/infrastructure/ws"
)

// DriverHandler manages the driver registry.
type DriverHandler struct {
	tracking ports.TrackingService
	log      zerolog.Logger
}

func NewDriverHandler(tracking ports.TrackingService, log zerolog.Logger) *DriverHandler {
	return &DriverHandler{tracking: tracking, log: log}
}

// List returns every registered driver.
//
// @Summary      List drivers
// @Tags         drivers
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   domain.Driver
// @Failure      503  {object}  errorResponse
// @Router       /v1/drivers [get]
func (h *DriverHandler) List(c echo.Context) error {
	drivers, err := h.tracking.ListDrivers(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, drivers)
}

// Create adds or updates a driver profile.
//
// @Summary      Save a driver
// @Tags         drivers
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      saveDriverRequest  true  "Driver profile"
// @Success      201   {object}  domain.Driver
// @Failure      400   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /v1/drivers [post]
func (h *DriverHandler) Create(c echo.Context) error {
	var req saveDriverRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	saved, err := h.tracking.SaveDriver(c.Request().Context(), domain.Driver{
		ID:     req.ID,
		Name:   req.Name,
		Number: req.Number,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, saved)
}

// Stream pushes the full registry immediately and after every change.
//
// @Summary      Live driver registry (WebSocket)
// @Tags         drivers
// @Security     BearerAuth
// @Success      101
// @Router       /v1/drivers/stream [get]
func (h *DriverHandler) Stream(c echo.Context) error {
	conn, err := ws.Upgrade(c.Response(), c.Request(), h.log)
	if err != nil {
		h.log.Warn().Err(err).Msg("driver stream upgrade failed")
		return nil
	}

	sub, err := h.tracking.SubscribeToDrivers(c.Request().Context(), func(drivers []domain.Driver) {
		_ = conn.SendEvent(ws.EventDriversUpdate, drivers)
	})
	if err != nil {
		h.log.Error().Err(err).Msg("driver subscription failed")
		conn.Reject(ws.EventStreamError, streamErrorPayload{Error: "driver registry unavailable, please reconnect"})
		return nil
	}
	defer sub.Unsubscribe()

	go conn.WritePump()
	conn.ReadPump(func(ws.Message) {})
	return nil
}
