package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SamplesIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homepulse_samples_ingested_total",
			Help: "Total number of metric samples accepted for evaluation",
		},
		[]string{"source"},
	)

	SamplesRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homepulse_samples_rejected_total",
			Help: "Total number of metric samples dropped before evaluation",
		},
		[]string{"reason"}, // malformed, out_of_order, duplicate, maintenance
	)

	EventsEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homepulse_events_emitted_total",
			Help: "Raw events produced by the evaluator, detector and estimator",
		},
		[]string{"kind"},
	)

	AlertsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homepulse_alerts_created_total",
			Help: "Classified alerts written to the alert store",
		},
		[]string{"severity", "category"},
	)

	AlertTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "homepulse_alert_transitions_total",
			Help: "Alert status transitions applied through the API",
		},
		[]string{"to"},
	)

	GroupsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "homepulse_alert_groups_open",
			Help: "Alert groups currently accepting members",
		},
	)

	StorageErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "homepulse_storage_errors_total",
			Help: "Failed writes to the persistence backend",
		},
	)
)
