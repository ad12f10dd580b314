// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BookingsCreated    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch", Name: "bookings_created_total", Help: "Bookings created"})
	BookingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dispatch", Name: "booking_transitions_total", Help: "Booking status transitions by target status"},
		[]string{"status"},
	)
	BookingConflicts = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch", Name: "booking_conflicts_total", Help: "Booking attempts refused because the patient already has an active booking"})
	LocationUpdates  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch", Name: "location_updates_total", Help: "Driver location updates"})

	ChatRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dispatch", Name: "chat_requests_total", Help: "Chat requests by handling path"},
		[]string{"path"},
	)
	ChatLatency = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "dispatch", Name: "chat_retrieval_latency_seconds", Help: "Latency of retrieval-backed chat answers"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	LiveViewStreams = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "dispatch", Name: "live_view_streams", Help: "Open live map websocket streams"})
)
