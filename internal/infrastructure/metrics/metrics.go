// Package metrics defines and registers all custom Prometheus metrics for the
// bus tracker. It is the single source of truth for metric names, labels, and
// help strings.
//
// Metrics are registered with the default Prometheus registry at package
// init via promauto and exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bus_tracker"

// ── Location metrics ──────────────────────────────────────────────────────────

// LocationWritesTotal counts successful writes to the broadcast store.
// Label:
//   - source: "watch" (continuous subscription) or "poll" (5-second timer)
var LocationWritesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "location_writes_total",
		Help:      "Total number of bus location writes, by sample source.",
	},
	[]string{"source"},
)

// LocationWriteErrorsTotal counts store writes that failed and were swallowed.
var LocationWriteErrorsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "location_write_errors_total",
		Help:      "Total number of bus location writes that failed during tracking.",
	},
)

// GeolocationErrorsTotal counts failed position samples.
// Label:
//   - reason: "denied", "unavailable", "timeout", "other"
var GeolocationErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "geolocation_errors_total",
		Help:      "Total number of geolocation sample failures.",
	},
	[]string{"reason"},
)

// TrackingSessionsActive is the number of running broadcast loops.
var TrackingSessionsActive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tracking_sessions_active",
		Help:      "Current number of active driver tracking sessions.",
	},
)

// SubscribersActive tracks open push subscriptions.
// Label:
//   - stream: "location" or "drivers"
var SubscribersActive = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "subscribers_active",
		Help:      "Current number of open push subscriptions, by stream.",
	},
	[]string{"stream"},
)

// ── Auth metrics ──────────────────────────────────────────────────────────────

// LoginsTotal counts login outcomes.
// Labels:
//   - flow: "driver" or "student"
//   - result: "success" or the failure code (e.g. "wrong-password")
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by flow and result.",
	},
	[]string{"flow", "result"},
)

// ForcedSignOutsTotal counts sessions terminated because of a role mismatch.
var ForcedSignOutsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "forced_signouts_total",
		Help:      "Total number of forced sign-outs, by reason code.",
	},
	[]string{"reason"},
)

// RoleResolutionsTotal counts how a role was determined.
// Label:
//   - source: "stored" or "email_rules"
var RoleResolutionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "role_resolutions_total",
		Help:      "Total number of role resolutions, by source.",
	},
	[]string{"source"},
)

// ── Geocoding metrics ─────────────────────────────────────────────────────────

// GeocodeRequestsTotal counts reverse-geocoding lookups.
// Label:
//   - result: "hit" (cache), "miss" (provider answered), "error"
var GeocodeRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "geocode_requests_total",
		Help:      "Total number of reverse-geocoding lookups, by result.",
	},
	[]string{"result"},
)
