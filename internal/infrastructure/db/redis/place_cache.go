package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPlaceTTL = 24 * time.Hour

// PlaceCache memoises reverse-geocoding answers at roughly 10 m resolution.
// Key format: geocode:<lat>:<lng> with 4 decimal places.
type PlaceCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPlaceCache(client *redis.Client, ttl time.Duration) *PlaceCache {
	if ttl <= 0 {
		ttl = defaultPlaceTTL
	}
	return &PlaceCache{client: client, ttl: ttl}
}

func (c *PlaceCache) Get(ctx context.Context, lat, lng float64) (string, bool, error) {
	place, err := c.client.Get(ctx, c.key(lat, lng)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("place cache get: %w", err)
	}
	return place, true, nil
}

func (c *PlaceCache) Set(ctx context.Context, lat, lng float64, place string) error {
	return c.client.Set(ctx, c.key(lat, lng), place, c.ttl).Err()
}

func (c *PlaceCache) key(lat, lng float64) string {
	return fmt.Sprintf("geocode:%.4f:%.4f", lat, lng)
}
