package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ridgeline",
			Name:      "booking_created_total",
			Help:      "Count of booking submissions by outcome.",
		},
		[]string{"outcome"},
	)

	bookingCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ridgeline",
			Name:      "booking_cancelled_total",
			Help:      "Count of inspection bookings cancelled.",
		},
	)

	bookingRescheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ridgeline",
			Name:      "booking_rescheduled_total",
			Help:      "Count of inspection bookings rescheduled.",
		},
	)

	leadLinkFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ridgeline",
			Name:      "lead_link_failed_total",
			Help:      "Count of bookings created whose lead link-back failed.",
		},
	)

	ruleSaves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ridgeline",
			Name:      "rule_saves_total",
			Help:      "Count of recurring-rule writes by operation.",
		},
		[]string{"op"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ridgeline",
			Name:      "http_requests_total",
			Help:      "Count of API requests by handler.",
		},
		[]string{"handler"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingCreated,
			bookingCancelled,
			bookingRescheduled,
			leadLinkFailed,
			ruleSaves,
			httpRequests,
		)
	})
}

func IncBookingCreated(outcome string) {
	bookingCreated.WithLabelValues(outcome).Inc()
}

func IncBookingCancelled() {
	bookingCancelled.Inc()
}

func IncBookingRescheduled() {
	bookingRescheduled.Inc()
}

func IncLeadLinkFailed() {
	leadLinkFailed.Inc()
}

func IncRuleSave(op string) {
	ruleSaves.WithLabelValues(op).Inc()
}

func IncHTTP(handler string) {
	httpRequests.WithLabelValues(handler).Inc()
}
