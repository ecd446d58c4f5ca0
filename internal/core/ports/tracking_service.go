package ports

import (
	"context"

	"github.com/campusbus/bus-tracker/internal/core/domain"
)

// TrackingSession is the caller-owned handle of one broadcast loop.
type TrackingSession interface {
	Driver() domain.Driver
	// Stop cancels the position watch and the poll timer. Safe to call twice.
	Stop()
	// Done is closed once the session has been stopped.
	Done() <-chan struct{}
}

// TrackingService covers location broadcast/subscribe and the driver registry.
type TrackingService interface {
	StartTracking(ctx context.Context, driver domain.Driver, src GeolocationSource) (TrackingSession, error)
	CurrentLocation(ctx context.Context) (*domain.BusLocation, error)
	SubscribeToLocation(ctx context.Context, fn func(*domain.BusLocation)) (Subscription, error)

	SaveDriver(ctx context.Context, d domain.Driver) (domain.Driver, error)
	FindDriver(ctx context.Context, id string) (*domain.Driver, error)
	ListDrivers(ctx context.Context) ([]domain.Driver, error)
	SubscribeToDrivers(ctx context.Context, fn func([]domain.Driver)) (Subscription, error)
}

// PlaceService describes where the bus is. It never fails; a placeholder is
// returned when geocoding is unavailable.
type PlaceService interface {
	Describe(ctx context.Context, loc domain.BusLocation) string
}
