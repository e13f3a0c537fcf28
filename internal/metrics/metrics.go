package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for booking flows.
type SchedulingMetrics struct {
	reservations    *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	overrides       *prometheus.CounterVec
	availability    prometheus.Histogram
	publishFailures *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salonbook",
			Subsystem: "ledger",
			Name:      "reservations_total",
			Help:      "Reservation attempts by outcome",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salonbook",
			Subsystem: "ledger",
			Name:      "status_transitions_total",
			Help:      "Applied booking status transitions",
		}, []string{"from", "to"}),
		overrides: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salonbook",
			Subsystem: "ledger",
			Name:      "date_overrides_total",
			Help:      "Date override changes by action",
		}, []string{"action"}),
		availability: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "salonbook",
			Subsystem: "scheduling",
			Name:      "availability_seconds",
			Help:      "Latency of free-slot queries",
			Buckets:   prometheus.DefBuckets,
		}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salonbook",
			Subsystem: "events",
			Name:      "publish_failures_total",
			Help:      "Events that could not be handed to the publisher",
		}, []string{"type"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salonbook",
			Subsystem: "grpc",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		}, []string{"method"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.reservations, m.transitions, m.overrides, m.availability, m.publishFailures, m.rateLimited)
	return m
}

func (m *SchedulingMetrics) ObserveReservation(outcome string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *SchedulingMetrics) ObserveOverride(action string) {
	if m == nil {
		return
	}
	m.overrides.WithLabelValues(action).Inc()
}

func (m *SchedulingMetrics) ObserveAvailability(seconds float64) {
	if m == nil {
		return
	}
	m.availability.Observe(seconds)
}

func (m *SchedulingMetrics) ObservePublishFailure(eventType string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(eventType).Inc()
}

func (m *SchedulingMetrics) ObserveRateLimited(method string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(method).Inc()
}
