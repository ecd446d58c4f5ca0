package handler

import (
	"context"
	"errors"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/campusbus/bus-tracker/internal/core/domain"
	"github.com/campusbus/bus-tracker/internal/core/ports"
	"github.com/campusbus/bus-tracker/internal/infrastructure/ws"
)

// TrackingHandler runs the driver device channel. One connection drives at
// most one tracking session; the session stops when the socket closes.
type TrackingHandler struct {
	tracking ports.TrackingService
	log      zerolog.Logger
}

func NewTrackingHandler(tracking ports.TrackingService, log zerolog.Logger) *TrackingHandler {
	return &TrackingHandler{tracking: tracking, log: log}
}

// Connect upgrades the driver's device connection.
//
// @Summary      Driver device channel (WebSocket)
// @Tags         tracking
// @Security     BearerAuth
// @Success      101
// @Router       /v1/tracking/ws [get]
func (h *TrackingHandler) Connect(c echo.Context) error {
	claims, err := ctxClaims(c)
	if err != nil {
		return err
	}

	conn, err := ws.Upgrade(c.Response(), c.Request(), h.log)
	if err != nil {
		h.log.Warn().Err(err).Msg("tracking channel upgrade failed")
		return nil
	}

	log := h.log.With().Str("uid", claims.UID).Logger()
	ch := newDeviceChannel(h.tracking, conn, log)

	go conn.WritePump()
	conn.ReadPump(ch.handle)
	ch.close()
	return nil
}

// sender is the outbound side of a device connection.
type sender interface {
	ws.Sender
	SendEvent(event string, data any) error
}

// deviceChannel holds the tracking state of one connection.
type deviceChannel struct {
	tracking ports.TrackingService
	out      sender
	source   *ws.DeviceSource
	log      zerolog.Logger

	mu       sync.Mutex
	session  ports.TrackingSession
	starting context.CancelFunc
}

func newDeviceChannel(tracking ports.TrackingService, out sender, log zerolog.Logger) *deviceChannel {
	return &deviceChannel{
		tracking: tracking,
		out:      out,
		source:   ws.NewDeviceSource(out, log),
		log:      log,
	}
}

func (d *deviceChannel) handle(msg ws.Message) {
	if handled, err := d.source.Dispatch(msg); handled {
		if err != nil {
			d.log.Debug().Err(err).Str("event", msg.Event).Msg("dropping device event")
		}
		return
	}

	switch msg.Event {
	case ws.EventTrackingStart:
		var p ws.TrackingStartPayload
		if err := msg.Decode(&p); err != nil || p.DriverID == "" {
			d.sendError(domain.ErrInvalidDriver)
			return
		}
		d.start(p.DriverID)
	case ws.EventTrackingStop:
		d.stop()
		_ = d.out.SendEvent(ws.EventTrackingStopped, nil)
	default:
		d.log.Warn().Str("event", msg.Event).Msg("unknown device event")
	}
}

// start begins tracking in the background. It waits on the device's first
// position, which arrives through handle, so it must not block the reader.
func (d *deviceChannel) start(driverID string) {
	d.mu.Lock()
	if d.session != nil || d.starting != nil {
		d.mu.Unlock()
		d.sendError(domain.ErrAlreadyTracking)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.starting = cancel
	d.mu.Unlock()

	go func() {
		defer cancel()

		sess, err := d.startSession(ctx, driverID)

		d.mu.Lock()
		if d.starting == nil {
			// stopped while starting
			d.mu.Unlock()
			if sess != nil {
				sess.Stop()
			}
			return
		}
		d.starting = nil
		if err != nil {
			d.mu.Unlock()
			d.sendError(err)
			return
		}
		d.session = sess
		d.mu.Unlock()

		drv := sess.Driver()
		_ = d.out.SendEvent(ws.EventTrackingStarted, ws.TrackingStartedPayload{
			DriverID:     drv.ID,
			DriverName:   drv.Name,
			DriverNumber: drv.Number,
		})
	}()
}

func (d *deviceChannel) startSession(ctx context.Context, driverID string) (ports.TrackingSession, error) {
	driver, err := d.tracking.FindDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	return d.tracking.StartTracking(ctx, *driver, d.source)
}

func (d *deviceChannel) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.starting != nil {
		d.starting()
		d.starting = nil
	}
	if d.session != nil {
		d.session.Stop()
		d.session = nil
	}
}

func (d *deviceChannel) close() {
	d.stop()
}

func (d *deviceChannel) sendError(err error) {
	code, message := trackingErrorCode(err)
	if code == "internal" {
		d.log.Error().Err(err).Msg("tracking failed")
	} else {
		d.log.Info().Err(err).Str("code", code).Msg("tracking request rejected")
	}
	_ = d.out.SendEvent(ws.EventTrackingError, ws.ErrorPayload{Code: code, Message: message})
}

func trackingErrorCode(err error) (string, string) {
	switch {
	case errors.Is(err, domain.ErrGeolocationDenied):
		return "permission-denied", domain.ErrGeolocationDenied.Error()
	case errors.Is(err, domain.ErrGeolocationUnavailable):
		return "unsupported", domain.ErrGeolocationUnavailable.Error()
	case errors.Is(err, domain.ErrPositionUnavailable):
		return "position-unavailable", domain.ErrPositionUnavailable.Error()
	case errors.Is(err, domain.ErrGeolocationTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout", domain.ErrGeolocationTimeout.Error()
	case errors.Is(err, domain.ErrDriverNotFound):
		return "driver-not-found", domain.ErrDriverNotFound.Error()
	case errors.Is(err, domain.ErrInvalidDriver):
		return "invalid-driver", domain.ErrInvalidDriver.Error()
	case errors.Is(err, domain.ErrAlreadyTracking):
		return "already-tracking", domain.ErrAlreadyTracking.Error()
	}
	return "internal", "tracking could not be started, please try again"
}
