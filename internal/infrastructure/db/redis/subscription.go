package redis

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// subscription delivers values to a callback with latest-wins semantics: a
// slow callback never queues updates, it only ever sees the newest one.
type subscription struct {
	cancel context.CancelFunc
	pubsub *redis.PubSub
	once   sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		_ = s.pubsub.Close()
	})
}

// newSubscription starts the delivery goroutines. initial is delivered first.
// decode turns a pub/sub payload into the value handed to fn; ok=false drops
// the message.
func newSubscription[T any](
	parent context.Context,
	ps *redis.PubSub,
	initial T,
	decode func(ctx context.Context, payload string) (T, bool),
	fn func(T),
) *subscription {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	sub := &subscription{cancel: cancel, pubsub: ps}

	slot := make(chan T, 1)
	slot <- initial

	go func() {
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				v, ok := decode(ctx, msg.Payload)
				if !ok {
					continue
				}
				select {
				case <-slot:
				default:
				}
				slot <- v
			}
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case v := <-slot:
				if ctx.Err() != nil {
					return
				}
				fn(v)
			}
		}
	}()

	return sub
}
