// README: Prometheus collectors for transitions, hub fan-out, location pings and HTTP.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kitchenline_order_transitions_total",
			Help: "Order status and delivery status transition attempts by outcome",
		},
		[]string{"machine", "to", "result"}, // machine: status|delivery; result: applied|invalid|not_found|error
	)

	StoreConflictRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kitchenline_store_conflict_retries_total",
			Help: "Optimistic version conflicts that forced a re-read",
		},
	)

	HubClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kitchenline_hub_clients",
			Help: "Connected realtime clients",
		},
	)

	HubRoomMembers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kitchenline_hub_room_members",
			Help: "Room memberships by room kind",
		},
		[]string{"kind"}, // kitchen|admin|customer|driver
	)

	HubEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kitchenline_hub_events_published_total",
			Help: "Events accepted for fan-out",
		},
		[]string{"type"},
	)

	HubDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kitchenline_hub_deliveries_total",
			Help: "Per-client deliveries",
		},
		[]string{"result"}, // sent|evicted
	)

	HubRejectedPayloads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kitchenline_hub_rejected_payloads_total",
			Help: "Publishes rejected before fan-out",
		},
	)

	LocationPings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kitchenline_location_pings_total",
			Help: "Driver location pings by outcome",
		},
		[]string{"result"}, // applied|stale|not_assigned|invalid|error
	)

	MirrorFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kitchenline_mirror_failures_total",
			Help: "Events that could not be mirrored to the message broker",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kitchenline_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "route", "status"},
	)
)
