package metricsvc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/plp/edmodule/core/enrollment"
)

const namespace = "edmodule"

var (
	EDXRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "edx",
		Name:      "requests_total",
		Help:      "Learning platform requests, by outcome.",
	}, []string{"outcome"})

	EDXRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "edx",
		Name:      "request_duration_seconds",
		Help:      "Learning platform request latencies.",
		Buckets:   prometheus.DefBuckets,
	})

	ProgressSyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "progress",
		Name:      "syncs_total",
		Help:      "Enrollment progress syncs, by outcome.",
	}, []string{"outcome"})

	EnrollmentEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "enrollment",
		Name:      "events_total",
		Help:      "Module enrollment events, by type.",
	}, []string{"event"})

	PromoRedemptions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "promo",
		Name:      "redemptions_total",
		Help:      "Promo codes applied to module payments.",
	})
)

// ObserveProgressSync counts a progress sync outcome.
func ObserveProgressSync(outcome string) {
	ProgressSyncs.WithLabelValues(outcome).Inc()
}

// ObserveEnrollment is an enrollment.Listener counting events and promo redemptions.
func ObserveEnrollment(ev enrollment.Event, _ enrollment.Enrollment, r *enrollment.Reason) {
	EnrollmentEvents.WithLabelValues(string(ev)).Inc()
	if ev == enrollment.EventPayed && r != nil && r.PromoCode != "" {
		PromoRedemptions.Inc()
	}
}
