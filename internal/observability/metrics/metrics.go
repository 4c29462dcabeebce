package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking pipeline.
type BookingMetrics struct {
	bookingsTotal  *prometheus.CounterVec
	slotConflicts  prometheus.Counter
	paymentsTotal  *prometheus.CounterVec
	alertsTotal    *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medrx",
			Subsystem: "booking",
			Name:      "requests_total",
			Help:      "Total booking attempts by service kind and outcome",
		}, []string{"kind", "outcome"}),
		slotConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "medrx",
			Subsystem: "booking",
			Name:      "slot_conflicts_total",
			Help:      "Total bookings rejected because the slot was taken",
		}),
		paymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medrx",
			Subsystem: "payments",
			Name:      "confirmations_total",
			Help:      "Total payment confirmation outcomes",
		}, []string{"outcome"}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medrx",
			Subsystem: "booking",
			Name:      "alerts_total",
			Help:      "Total booking alert delivery outcomes",
		}, []string{"outcome"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medrx",
			Subsystem: "payments",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of checkout webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.slotConflicts, m.paymentsTotal, m.alertsTotal, m.webhookLatency)
	return m
}

func (m *BookingMetrics) ObserveBooking(kind, outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *BookingMetrics) ObserveSlotConflict() {
	if m == nil {
		return
	}
	m.slotConflicts.Inc()
}

func (m *BookingMetrics) ObservePaymentConfirmation(outcome string) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveAlert(outcome string) {
	if m == nil {
		return
	}
	m.alertsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveWebhookLatency(eventType string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(eventType).Observe(seconds)
}
