package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/campusbus/bus-tracker/internal/core/domain"
	"github.com/campusbus/bus-tracker/internal/core/ports"
	"github.com/campusbus/bus-tracker/internal/infrastructure/metrics"
)

// PlaceUnavailable is shown when no place description can be produced.
const PlaceUnavailable = "Address unavailable"

const defaultGeocodeTimeout = 5 * time.Second

// PlaceService resolves the bus position to a readable place, consulting the
// cache before the geocoder.
type PlaceService struct {
	geocoder ports.Geocoder
	cache    ports.PlaceCache
	timeout  time.Duration
	log      zerolog.Logger
}

func NewPlaceService(geocoder ports.Geocoder, cache ports.PlaceCache, timeout time.Duration, log zerolog.Logger) *PlaceService {
	if timeout <= 0 {
		timeout = defaultGeocodeTimeout
	}
	return &PlaceService{
		geocoder: geocoder,
		cache:    cache,
		timeout:  timeout,
		log:      log,
	}
}

func (s *PlaceService) Describe(ctx context.Context, loc domain.BusLocation) string {
	if s.cache != nil {
		place, ok, err := s.cache.Get(ctx, loc.Latitude, loc.Longitude)
		if err != nil {
			s.log.Warn().Err(err).Msg("place cache read failed")
		} else if ok {
			metrics.GeocodeRequestsTotal.WithLabelValues("hit").Inc()
			return place
		}
	}

	if s.geocoder == nil {
		return PlaceUnavailable
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	place, err := s.geocoder.Reverse(reqCtx, loc.Latitude, loc.Longitude)
	if err != nil || place == "" {
		metrics.GeocodeRequestsTotal.WithLabelValues("error").Inc()
		s.log.Warn().Err(err).
			Float64("lat", loc.Latitude).
			Float64("lng", loc.Longitude).
			Msg("reverse geocoding failed")
		return PlaceUnavailable
	}
	metrics.GeocodeRequestsTotal.WithLabelValues("miss").Inc()

	if s.cache != nil {
		if err := s.cache.Set(ctx, loc.Latitude, loc.Longitude, place); err != nil {
			s.log.Warn().Err(err).Msg("place cache write failed")
		}
	}
	return place
}
