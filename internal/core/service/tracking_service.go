package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/campusbus/bus-tracker/internal/core/domain"
	"github.com/campusbus/bus-tracker/internal/core/ports"
	"github.com/campusbus/bus-tracker/internal/infrastructure/metrics"
)

const (
	defaultPollInterval  = 5 * time.Second
	defaultSampleTimeout = 10 * time.Second
	defaultWriteTimeout  = 5 * time.Second

	sourceWatch = "watch"
	sourcePoll  = "poll"
)

// TrackingOptions tunes the broadcast loop. Zero values fall back to defaults.
type TrackingOptions struct {
	PollInterval  time.Duration
	SampleTimeout time.Duration
	WriteTimeout  time.Duration
	Now           func() time.Time
}

type TrackingService struct {
	store    ports.LocationStore
	drivers  ports.DriverRepository
	notifier ports.ChangeNotifier
	opts     TrackingOptions
	log      zerolog.Logger
}

func NewTrackingService(
	store ports.LocationStore,
	drivers ports.DriverRepository,
	notifier ports.ChangeNotifier,
	opts TrackingOptions,
	log zerolog.Logger,
) *TrackingService {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.SampleTimeout <= 0 {
		opts.SampleTimeout = defaultSampleTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &TrackingService{
		store:    store,
		drivers:  drivers,
		notifier: notifier,
		opts:     opts,
		log:      log,
	}
}

// trackingSession owns the watch goroutine and the poll timer of one driver.
type trackingSession struct {
	driver domain.Driver
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func (s *trackingSession) Driver() domain.Driver { return s.driver }

func (s *trackingSession) Done() <-chan struct{} { return s.ctx.Done() }

func (s *trackingSession) Stop() {
	s.once.Do(func() {
		s.cancel()
		metrics.TrackingSessionsActive.Dec()
	})
}

// StartTracking opens a continuous position watch plus a fixed poll timer and
// writes every successful sample to the store. It blocks until the watch
// yields its first outcome: a sample starts the session, an error aborts it.
//
// The two sources are not sequenced; whichever write reaches the store last
// wins. ctx only bounds the wait for the first outcome.
func (s *TrackingService) StartTracking(ctx context.Context, driver domain.Driver, src ports.GeolocationSource) (ports.TrackingSession, error) {
	driver, err := driver.Normalize()
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, domain.ErrGeolocationUnavailable
	}

	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	opts := s.positionOptions()

	samples, errs, err := src.Watch(sessCtx, opts)
	if err != nil {
		cancel()
		s.recordGeoError(err)
		return nil, fmt.Errorf("start tracking: %w", err)
	}

	select {
	case sample, ok := <-samples:
		if !ok {
			cancel()
			return nil, fmt.Errorf("start tracking: %w", domain.ErrGeolocationUnavailable)
		}
		s.publish(sessCtx, driver, sample, sourceWatch)
	case err := <-errs:
		cancel()
		s.recordGeoError(err)
		return nil, fmt.Errorf("start tracking: %w", err)
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	}

	sess := &trackingSession{driver: driver, ctx: sessCtx, cancel: cancel}
	metrics.TrackingSessionsActive.Inc()

	go s.watchLoop(sessCtx, driver, samples, errs)
	go s.pollLoop(sessCtx, driver, src, opts)

	s.log.Info().Str("driver_id", driver.ID).Str("driver", driver.Name).Msg("tracking started")
	go func() {
		<-sessCtx.Done()
		s.log.Info().Str("driver_id", driver.ID).Msg("tracking stopped")
	}()

	return sess, nil
}

func (s *TrackingService) watchLoop(ctx context.Context, driver domain.Driver, samples <-chan domain.Sample, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-samples:
			if !ok {
				samples = nil
				continue
			}
			s.publish(ctx, driver, sample, sourceWatch)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.recordGeoError(err)
			s.log.Warn().Err(err).Str("driver_id", driver.ID).Msg("watch sample failed, continuing")
		}
	}
}

// pollLoop fires a one-shot position request on every tick. Requests are not
// awaited before the next tick, so several may be in flight at once.
func (s *TrackingService) pollLoop(ctx context.Context, driver domain.Driver, src ports.GeolocationSource, opts ports.PositionOptions) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go func() {
				reqCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
				defer cancel()

				sample, err := src.CurrentPosition(reqCtx, opts)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					s.recordGeoError(err)
					s.log.Warn().Err(err).Str("driver_id", driver.ID).Msg("position poll failed, continuing")
					return
				}
				s.publish(ctx, driver, sample, sourcePoll)
			}()
		}
	}
}

// publish builds a full record and overwrites the store. Failures are logged
// and swallowed so tracking keeps going. The write is detached from the
// session context: a sample already taken is still written after Stop.
func (s *TrackingService) publish(ctx context.Context, driver domain.Driver, sample domain.Sample, source string) {
	loc := domain.BusLocation{
		Latitude:     sample.Latitude,
		Longitude:    sample.Longitude,
		Timestamp:    s.opts.Now().UnixMilli(),
		DriverName:   driver.Name,
		DriverNumber: driver.Number,
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.WriteTimeout)
	defer cancel()

	if err := s.store.Set(writeCtx, loc); err != nil {
		metrics.LocationWriteErrorsTotal.Inc()
		s.log.Warn().Err(err).Str("driver_id", driver.ID).Str("source", source).Msg("failed to write bus location")
		return
	}
	metrics.LocationWritesTotal.WithLabelValues(source).Inc()
	s.log.Debug().
		Float64("lat", loc.Latitude).
		Float64("lng", loc.Longitude).
		Str("source", source).
		Msg("bus location written")
}

func (s *TrackingService) positionOptions() ports.PositionOptions {
	return ports.PositionOptions{
		HighAccuracy: true,
		Timeout:      s.opts.SampleTimeout,
		MaximumAge:   0,
	}
}

func (s *TrackingService) recordGeoError(err error) {
	reason := "other"
	switch {
	case errors.Is(err, domain.ErrGeolocationDenied):
		reason = "denied"
	case errors.Is(err, domain.ErrGeolocationUnavailable), errors.Is(err, domain.ErrPositionUnavailable):
		reason = "unavailable"
	case errors.Is(err, domain.ErrGeolocationTimeout), errors.Is(err, context.DeadlineExceeded):
		reason = "timeout"
	}
	metrics.GeolocationErrorsTotal.WithLabelValues(reason).Inc()
}

// CurrentLocation reads the singleton once.
func (s *TrackingService) CurrentLocation(ctx context.Context) (*domain.BusLocation, error) {
	loc, err := s.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("current location: %w", err)
	}
	return loc, nil
}

// SubscribeToLocation registers fn for the current value and every write.
func (s *TrackingService) SubscribeToLocation(ctx context.Context, fn func(*domain.BusLocation)) (ports.Subscription, error) {
	sub, err := s.store.Subscribe(ctx, fn)
	if err != nil {
		return nil, fmt.Errorf("subscribe to location: %w", err)
	}
	metrics.SubscribersActive.WithLabelValues("location").Inc()
	return &countedSubscription{Subscription: sub, stream: "location"}, nil
}

// SaveDriver upserts a driver profile, generating an id when none is given.
func (s *TrackingService) SaveDriver(ctx context.Context, d domain.Driver) (domain.Driver, error) {
	d, err := d.Normalize()
	if err != nil {
		return d, err
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}

	if err := s.drivers.Upsert(ctx, d); err != nil {
		s.log.Error().Err(err).Str("driver_id", d.ID).Msg("failed to save driver")
		return d, fmt.Errorf("%w: %v", domain.ErrRegistryUnavailable, err)
	}

	if err := s.notifier.Notify(ctx); err != nil {
		s.log.Warn().Err(err).Str("driver_id", d.ID).Msg("failed to notify driver registry change")
	}

	s.log.Info().Str("driver_id", d.ID).Str("name", d.Name).Msg("driver saved")
	return d, nil
}

func (s *TrackingService) FindDriver(ctx context.Context, id string) (*domain.Driver, error) {
	return s.drivers.FindByID(ctx, id)
}

func (s *TrackingService) ListDrivers(ctx context.Context) ([]domain.Driver, error) {
	drivers, err := s.drivers.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRegistryUnavailable, err)
	}
	return drivers, nil
}

// SubscribeToDrivers pushes the full registry on subscription and after every
// change. Load failures are logged and the previous set stays on screen.
func (s *TrackingService) SubscribeToDrivers(ctx context.Context, fn func([]domain.Driver)) (ports.Subscription, error) {
	loadCtx := context.WithoutCancel(ctx)
	sub, err := s.notifier.Watch(ctx, func() {
		drivers, err := s.drivers.List(loadCtx)
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to load driver registry")
			return
		}
		fn(drivers)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to drivers: %w", err)
	}
	metrics.SubscribersActive.WithLabelValues("drivers").Inc()
	return &countedSubscription{Subscription: sub, stream: "drivers"}, nil
}

type countedSubscription struct {
	ports.Subscription
	stream string
	once   sync.Once
}

func (c *countedSubscription) Unsubscribe() {
	c.once.Do(func() {
		c.Subscription.Unsubscribe()
		metrics.SubscribersActive.WithLabelValues(c.stream).Dec()
	})
}
