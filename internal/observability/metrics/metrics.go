package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for availability checks,
// submissions and reconciliation runs.
type BookingMetrics struct {
	checksTotal      *prometheus.CounterVec
	submissionsTotal *prometheus.CounterVec
	attemptLatency   *prometheus.HistogramVec
	sessionsInFlight prometheus.Gauge
	runsTotal        *prometheus.CounterVec
	itemsTotal       *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		checksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotbooking",
			Subsystem: "booking",
			Name:      "availability_checks_total",
			Help:      "Total availability checks by source and result",
		}, []string{"source", "booked"}),
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotbooking",
			Subsystem: "booking",
			Name:      "submissions_total",
			Help:      "Total form submission attempts by outcome",
		}, []string{"outcome"}),
		attemptLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "slotbooking",
			Subsystem: "booking",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of browser-driven operations",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}, []string{"operation"}),
		sessionsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "slotbooking",
			Subsystem: "booking",
			Name:      "sessions_in_flight",
			Help:      "Page sessions currently open",
		}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotbooking",
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Total reconciliation runs by result",
		}, []string{"result"}),
		itemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotbooking",
			Subsystem: "reconcile",
			Name:      "items_total",
			Help:      "Total reconciled records by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.checksTotal, m.submissionsTotal, m.attemptLatency, m.sessionsInFlight, m.runsTotal, m.itemsTotal)
	return m
}

// ObserveCheck counts one availability check. source is "store" or "page".
func (m *BookingMetrics) ObserveCheck(source string, booked bool) {
	if m == nil {
		return
	}
	m.checksTotal.WithLabelValues(source, boolLabel(booked)).Inc()
}

func (m *BookingMetrics) ObserveSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveDuration(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.attemptLatency.WithLabelValues(operation).Observe(seconds)
}

// SessionOpened and SessionClosed track open page sessions.
func (m *BookingMetrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsInFlight.Inc()
}

func (m *BookingMetrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsInFlight.Dec()
}

func (m *BookingMetrics) ObserveRun(result string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(result).Inc()
}

func (m *BookingMetrics) ObserveItem(outcome string) {
	if m == nil {
		return
	}
	m.itemsTotal.WithLabelValues(outcome).Inc()
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
