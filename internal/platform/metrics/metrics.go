// Package metrics holds the Prometheus metrics for the gateway. All methods
// are nil-receiver safe so tests can pass a nil *Metrics and skip
// registration entirely.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the check-in path.
type Metrics struct {
	// Time spent making requests to the external record store, by function.
	StoreRequestSeconds *prometheus.SummaryVec

	// Check-in outcomes by result (destination, registration_required,
	// already_tested, error).
	CheckinOutcomes *prometheus.CounterVec

	// Participant cache lookups by result (hit, miss).
	CacheLookups *prometheus.CounterVec

	// HTTP request latency by route.
	RequestDuration *prometheus.HistogramVec
}

// New creates and registers all gateway metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		StoreRequestSeconds: promauto.NewSummaryVec(prometheus.SummaryOpts{
			Name: "kioskgw_record_store_request_seconds",
			Help: "Time spent making requests to the external record store",
		}, []string{"function"}),

		CheckinOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kioskgw_checkin_outcomes_total",
			Help: "Total kiosk check-in outcomes by result",
		}, []string{"outcome"}),

		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kioskgw_participant_cache_lookups_total",
			Help: "Participant cache lookups by result",
		}, []string{"result"}),

		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kioskgw_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"route"}),
	}
}

// ObserveStoreRequest records the duration of one record store call.
func (m *Metrics) ObserveStoreRequest(function string, d time.Duration) {
	if m != nil {
		m.StoreRequestSeconds.WithLabelValues(function).Observe(d.Seconds())
	}
}

// IncrementCheckinOutcome records a check-in result.
func (m *Metrics) IncrementCheckinOutcome(outcome string) {
	if m != nil {
		m.CheckinOutcomes.WithLabelValues(outcome).Inc()
	}
}

// IncrementCacheLookup records a participant cache hit or miss.
func (m *Metrics) IncrementCacheLookup(result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(result).Inc()
	}
}

// ObserveRequestDuration records one HTTP request's latency.
func (m *Metrics) ObserveRequestDuration(route string, d time.Duration) {
	if m != nil {
		m.RequestDuration.WithLabelValues(route).Observe(d.Seconds())
	}
}
