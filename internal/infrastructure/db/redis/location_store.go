package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/campusbus/bus-tracker/internal/core/domain"
	"github.com/campusbus/bus-tracker/internal/core/ports"
)

const (
	locationKey     = "busLocation"
	locationChannel = "busLocation:updates"
)

// LocationStore keeps the singleton BusLocation under one key and fans every
// write out over pub/sub.
type LocationStore struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewLocationStore(client *redis.Client, log zerolog.Logger) *LocationStore {
	return &LocationStore{client: client, log: log}
}

// Set overwrites the record and publishes it in one transaction.
func (s *LocationStore) Set(ctx context.Context, loc domain.BusLocation) error {
	payload, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("encode bus location: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, locationKey, payload, 0)
		pipe.Publish(ctx, locationChannel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write bus location: %w", err)
	}
	return nil
}

func (s *LocationStore) Get(ctx context.Context) (*domain.BusLocation, error) {
	raw, err := s.client.Get(ctx, locationKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read bus location: %w", err)
	}
	return decodeLocation(raw)
}

// Subscribe confirms the channel subscription before reading the current
// value, so no write between the read and the first message is lost.
func (s *LocationStore) Subscribe(ctx context.Context, fn func(*domain.BusLocation)) (ports.Subscription, error) {
	ps := s.client.Subscribe(ctx, locationChannel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe bus location: %w", err)
	}

	current, err := s.Get(ctx)
	if err != nil {
		_ = ps.Close()
		return nil, err
	}

	decode := func(_ context.Context, payload string) (*domain.BusLocation, bool) {
		loc, err := decodeLocation([]byte(payload))
		if err != nil {
			s.log.Warn().Err(err).Msg("dropping malformed bus location update")
			return nil, false
		}
		return loc, true
	}
	return newSubscription(ctx, ps, current, decode, fn), nil
}

func decodeLocation(raw []byte) (*domain.BusLocation, error) {
	var loc domain.BusLocation
	if err := json.Unmarshal(raw, &loc); err != nil {
		return nil, fmt.Errorf("decode bus location: %w", err)
	}
	return &loc, nil
}
