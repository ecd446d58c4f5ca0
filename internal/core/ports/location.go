package ports

import (
	"context"
	"time"

	"github.com/campusbus/bus-tracker/internal/core/domain"
)

// Subscription is the deregistration handle returned by every Subscribe call.
// Unsubscribe is idempotent; until it is called the listener stays alive.
type Subscription interface {
	Unsubscribe()
}

// LocationStore holds the single broadcast BusLocation.
type LocationStore interface {
	// Set unconditionally replaces the current value and notifies subscribers.
	Set(ctx context.Context, loc domain.BusLocation) error
	// Get returns the current value, or nil when nothing was ever written.
	Get(ctx context.Context) (*domain.BusLocation, error)
	// Subscribe invokes fn with the current value (nil if none) and then with
	// every subsequent write. Delivery is latest-wins: values are not queued.
	Subscribe(ctx context.Context, fn func(*domain.BusLocation)) (Subscription, error)
}

// PositionOptions mirror the device geolocation request parameters.
type PositionOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaximumAge   time.Duration
}

// GeolocationSource is the device producing coordinate samples.
type GeolocationSource interface {
	// Watch starts a continuous position subscription which ends when ctx is
	// cancelled. An immediate error means the capability is unavailable.
	Watch(ctx context.Context, opts PositionOptions) (<-chan domain.Sample, <-chan error, error)
	// CurrentPosition requests a single sample.
	CurrentPosition(ctx context.Context, opts PositionOptions) (domain.Sample, error)
}

// Geocoder turns coordinates into a human-readable place description.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (string, error)
}

// PlaceCache memoises geocoder answers.
type PlaceCache interface {
	Get(ctx context.Context, lat, lng float64) (string, bool, error)
	Set(ctx context.Context, lat, lng float64, place string) error
}
