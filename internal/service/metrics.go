package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reviewsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clinic_reviews_submitted_total",
		Help: "Reviews accepted into the moderation queue.",
	})

	moderationActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinic_reviews_moderation_actions_total",
		Help: "Moderation decisions by action and outcome.",
	}, []string{"action", "result"})

	recomputeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinic_rating_recompute_total",
		Help: "Clinic rating recomputations by outcome.",
	}, []string{"result"})

	recomputeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clinic_rating_recompute_duration_seconds",
		Help:    "Time spent recomputing one clinic, lock wait excluded.",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	lockWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clinic_rating_lock_wait_seconds",
		Help:    "Time spent waiting for the per-clinic recompute lock.",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
	})
)

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
