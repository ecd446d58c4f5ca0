package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/campusbus/bus-tracker/internal/core/ports"
)

const driversChannel = "drivers:changed"

// DriverChangeNotifier signals driver registry changes across instances.
type DriverChangeNotifier struct {
	client *redis.Client
}

func NewDriverChangeNotifier(client *redis.Client) *DriverChangeNotifier {
	return &DriverChangeNotifier{client: client}
}

func (n *DriverChangeNotifier) Notify(ctx context.Context) error {
	if err := n.client.Publish(ctx, driversChannel, "1").Err(); err != nil {
		return fmt.Errorf("notify drivers changed: %w", err)
	}
	return nil
}

// Watch calls fn once the subscription is confirmed and again after each
// change. Bursts of changes collapse into one call.
func (n *DriverChangeNotifier) Watch(ctx context.Context, fn func()) (ports.Subscription, error) {
	ps := n.client.Subscribe(ctx, driversChannel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("watch drivers: %w", err)
	}

	decode := func(context.Context, string) (struct{}, bool) { return struct{}{}, true }
	return newSubscription(ctx, ps, struct{}{}, decode, func(struct{}) { fn() }), nil
}
