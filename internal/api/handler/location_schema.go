package handler

import (
	"time"

	"github.com/campusbus/bus-tracker/internal/core/domain"
)

// locationSnapshot is the student dashboard view of the broadcast record.
type locationSnapshot struct {
	Location    *domain.BusLocation `json:"location"`
	AgeSeconds  int64               `json:"age_seconds"`
	Stale       bool                `json:"stale"`
	LastUpdated string              `json:"last_updated,omitempty"`
}

func newSnapshot(loc *domain.BusLocation, now time.Time, staleAfter time.Duration) locationSnapshot {
	if loc == nil {
		return locationSnapshot{}
	}
	return locationSnapshot{
		Location:    loc,
		AgeSeconds:  int64(loc.Age(now) / time.Second),
		Stale:       loc.IsStale(now, staleAfter),
		LastUpdated: loc.Since(now),
	}
}

type placeResponse struct {
	Place     string  `json:"place"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type saveDriverRequest struct {
	ID     string `json:"id"`
	Name   string `json:"name"   validate:"required,max=100"`
	Number string `json:"number" validate:"required,max=20"`
}

type streamErrorPayload struct {
	Error string `json:"error"`
}
