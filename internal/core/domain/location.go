package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidDriver       = errors.New("driver name and number are required")
	ErrDriverNotFound      = errors.New("driver not found")
	ErrRegistryUnavailable = errors.New("driver registry unavailable, please try again")
	ErrNoLocation          = errors.New("no bus location has been broadcast yet")
	ErrAlreadyTracking     = errors.New("tracking is already active for this connection")
)

// Geolocation capability errors. They are reported inline to the driver and
// never terminate the session.
var (
	ErrGeolocationUnavailable = errors.New("geolocation is not supported by this device")
	ErrGeolocationDenied      = errors.New("geolocation permission denied")
	ErrPositionUnavailable    = errors.New("position unavailable")
	ErrGeolocationTimeout     = errors.New("timed out waiting for a position")
)

// BusLocation is the singleton broadcast record. Every write fully replaces
// the previous value.
type BusLocation struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Timestamp    int64   `json:"timestamp"` // ms since epoch, set by the writer
	DriverName   string  `json:"driverName"`
	DriverNumber string  `json:"driverNumber"`
}

// SampledAt returns the writer's sample time.
func (l BusLocation) SampledAt() time.Time {
	return time.UnixMilli(l.Timestamp)
}

// Age is how long ago the location was sampled. Never negative.
func (l BusLocation) Age(now time.Time) time.Duration {
	age := now.Sub(l.SampledAt())
	if age < 0 {
		return 0
	}
	return age
}

// IsStale reports whether the location is older than threshold.
func (l BusLocation) IsStale(now time.Time, threshold time.Duration) bool {
	return l.Age(now) > threshold
}

// Since renders the age the way the student dashboard shows it.
func (l BusLocation) Since(now time.Time) string {
	seconds := int(l.Age(now) / time.Second)
	if seconds < 60 {
		return ago(seconds, "second")
	}
	minutes := seconds / 60
	if minutes < 60 {
		return ago(minutes, "minute")
	}
	return ago(minutes/60, "hour")
}

func ago(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// Driver is a registry profile. Its display fields are copied into every
// BusLocation written while that driver is tracking.
type Driver struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number string `json:"number"`
}

// Normalize trims the free-text fields and rejects empty ones.
func (d Driver) Normalize() (Driver, error) {
	d.Name = strings.TrimSpace(d.Name)
	d.Number = strings.TrimSpace(d.Number)
	if d.Name == "" || d.Number == "" {
		return d, ErrInvalidDriver
	}
	return d, nil
}

// Sample is one coordinate reading produced by a device.
type Sample struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64 // metres, zero when unknown
}
