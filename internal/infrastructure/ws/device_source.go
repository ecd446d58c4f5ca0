package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/campusbus/bus-tracker/internal/core/domain"
	"github.com/campusbus/bus-tracker/internal/core/ports"
)

const watchBuffer = 8

// Sender is the outbound half of a device connection.
type Sender interface {
	Send(msg Message) error
}

type positionResult struct {
	sample domain.Sample
	err    error
}

type watch struct {
	ctx     context.Context
	samples chan domain.Sample
	errs    chan error
	release sync.Once
}

// DeviceSource is a GeolocationSource backed by the driver's device on the
// other end of a WebSocket. Inbound position events are fed in via Dispatch.
type DeviceSource struct {
	out Sender
	log zerolog.Logger

	mu      sync.Mutex
	watch   *watch
	pending map[string]chan positionResult
}

func NewDeviceSource(out Sender, log zerolog.Logger) *DeviceSource {
	return &DeviceSource{
		out:     out,
		log:     log,
		pending: make(map[string]chan positionResult),
	}
}

// Watch asks the device to stream samples until ctx is cancelled. The
// returned channels are never closed; slow readers lose samples. A watch
// whose ctx is already done no longer holds the slot, so a restart right
// after cancel succeeds.
func (d *DeviceSource) Watch(ctx context.Context, opts ports.PositionOptions) (<-chan domain.Sample, <-chan error, error) {
	w := &watch{
		ctx:     ctx,
		samples: make(chan domain.Sample, watchBuffer),
		errs:    make(chan error, watchBuffer),
	}

	d.mu.Lock()
	stale := d.watch
	if stale != nil && stale.ctx.Err() == nil {
		d.mu.Unlock()
		return nil, nil, domain.ErrAlreadyTracking
	}
	d.watch = w
	d.mu.Unlock()

	// The old clear-watch must reach the device before the new watch.
	if stale != nil {
		d.releaseWatch(stale)
	}

	msg, _ := NewMessage(EventPositionWatch, optionsPayload("", opts))
	if err := d.out.Send(msg); err != nil {
		d.clearWatch(w)
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrGeolocationUnavailable, err)
	}

	go func() {
		<-ctx.Done()
		d.releaseWatch(w)
	}()

	return w.samples, w.errs, nil
}

// releaseWatch frees the slot held by w and tells the device to stop. It
// runs at most once per watch.
func (d *DeviceSource) releaseWatch(w *watch) {
	w.release.Do(func() {
		stop, _ := NewMessage(EventPositionClearWatch, nil)
		_ = d.out.Send(stop)
		d.clearWatch(w)
	})
}

func (d *DeviceSource) clearWatch(w *watch) {
	d.mu.Lock()
	if d.watch == w {
		d.watch = nil
	}
	d.mu.Unlock()
}

// CurrentPosition sends a one-shot request and waits for the matching reply.
func (d *DeviceSource) CurrentPosition(ctx context.Context, opts ports.PositionOptions) (domain.Sample, error) {
	id := uuid.NewString()
	reply := make(chan positionResult, 1)

	d.mu.Lock()
	d.pending[id] = reply
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.pending, id)
		d.mu.Unlock()
	}()

	msg, _ := NewMessage(EventPositionRequest, optionsPayload(id, opts))
	if err := d.out.Send(msg); err != nil {
		return domain.Sample{}, fmt.Errorf("%w: %v", domain.ErrGeolocationUnavailable, err)
	}

	select {
	case res := <-reply:
		return res.sample, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.Sample{}, domain.ErrGeolocationTimeout
		}
		return domain.Sample{}, ctx.Err()
	}
}

// Dispatch routes an inbound position event. It reports false for events
// that are not position events.
func (d *DeviceSource) Dispatch(msg Message) (bool, error) {
	switch msg.Event {
	case EventPositionSample:
		var p PositionPayload
		if err := msg.Decode(&p); err != nil {
			return true, err
		}
		sample, err := p.sample()
		if err != nil {
			return true, err
		}
		d.deliverWatch(func(w *watch) bool {
			select {
			case w.samples <- sample:
				return true
			default:
				return false
			}
		})
		return true, nil

	case EventPositionReply:
		var p PositionPayload
		if err := msg.Decode(&p); err != nil {
			return true, err
		}
		sample, err := p.sample()
		d.deliverReply(p.RequestID, positionResult{sample: sample, err: err})
		return true, nil

	case EventPositionError:
		var p PositionErrorPayload
		if err := msg.Decode(&p); err != nil {
			return true, err
		}
		perr := PositionError(p.Code)
		if p.RequestID != "" {
			d.deliverReply(p.RequestID, positionResult{err: perr})
			return true, nil
		}
		d.deliverWatch(func(w *watch) bool {
			select {
			case w.errs <- perr:
				return true
			default:
				return false
			}
		})
		return true, nil
	}
	return false, nil
}

func (d *DeviceSource) deliverWatch(send func(*watch) bool) {
	d.mu.Lock()
	w := d.watch
	d.mu.Unlock()
	if w == nil || w.ctx.Err() != nil {
		return
	}
	if !send(w) {
		d.log.Debug().Msg("watch buffer full, dropping device event")
	}
}

func (d *DeviceSource) deliverReply(id string, res positionResult) {
	d.mu.Lock()
	reply, ok := d.pending[id]
	d.mu.Unlock()
	if !ok {
		d.log.Debug().Str("request_id", id).Msg("reply for unknown or expired position request")
		return
	}
	select {
	case reply <- res:
	default:
	}
}

// PositionError maps a device error code to the domain capability error.
func PositionError(code string) error {
	switch code {
	case "permission-denied":
		return domain.ErrGeolocationDenied
	case "position-unavailable":
		return domain.ErrPositionUnavailable
	case "timeout":
		return domain.ErrGeolocationTimeout
	case "unsupported":
		return domain.ErrGeolocationUnavailable
	}
	return fmt.Errorf("%w: %s", domain.ErrPositionUnavailable, code)
}

func (p PositionPayload) sample() (domain.Sample, error) {
	if p.Latitude == nil || p.Longitude == nil {
		return domain.Sample{}, fmt.Errorf("%w: missing coordinates", domain.ErrPositionUnavailable)
	}
	lat, lng := *p.Latitude, *p.Longitude
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return domain.Sample{}, fmt.Errorf("%w: coordinates out of range", domain.ErrPositionUnavailable)
	}
	return domain.Sample{Latitude: lat, Longitude: lng, Accuracy: p.Accuracy}, nil
}

func optionsPayload(requestID string, opts ports.PositionOptions) PositionOptionsPayload {
	return PositionOptionsPayload{
		RequestID:    requestID,
		TimeoutMs:    opts.Timeout.Milliseconds(),
		MaxAgeMs:     opts.MaximumAge.Milliseconds(),
		HighAccuracy: opts.HighAccuracy,
	}
}
