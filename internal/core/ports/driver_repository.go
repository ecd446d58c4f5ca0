package ports

import (
	"context"

	"github.com/campusbus/bus-tracker/internal/core/domain"
)

// DriverRepository persists drivers/{id}.
type DriverRepository interface {
	Upsert(ctx context.Context, d domain.Driver) error
	FindByID(ctx context.Context, id string) (*domain.Driver, error)
	List(ctx context.Context) ([]domain.Driver, error)
}

// ChangeNotifier signals that the driver registry changed.
type ChangeNotifier interface {
	Notify(ctx context.Context) error
	// Watch invokes fn once the watch is established and after every change.
	Watch(ctx context.Context, fn func()) (Subscription, error)
}
