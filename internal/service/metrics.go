package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reviewsSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedback_reviews_submitted_total",
			Help: "Total number of reviews stored at dialog completion",
		},
	)

	moderationActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_moderation_actions_total",
			Help: "Total number of moderation actions by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "feedback_active_sessions",
			Help: "Number of dialogs currently in progress",
		},
	)

	cooldownRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedback_cooldown_rejections_total",
			Help: "Total number of dialog starts refused by the submission cooldown",
		},
	)

	deliveryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_delivery_errors_total",
			Help: "Total number of failed outbound messages by operation",
		},
		[]string{"op"},
	)

	aggregateDrift = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedback_aggregate_drift_total",
			Help: "Total number of reconciliations that found the in-memory aggregate out of date",
		},
	)
)
