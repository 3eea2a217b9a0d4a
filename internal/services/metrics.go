package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// sessionsLive gauges sessions that have not been disposed.
	sessionsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "translation_sessions",
			Help: "Current number of live translation sessions.",
		},
	)

	// pipelineFailures counts engine failures surfaced to a session, by
	// stage (ensure_model|translate).
	pipelineFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "translation_pipeline_failures_total",
			Help: "Total number of engine failures surfaced to sessions.",
		},
		[]string{"stage"},
	)

	// historySaves counts settled history writes by outcome.
	historySaves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "history_saves_total",
			Help: "Total number of settled history writes by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(sessionsLive, pipelineFailures, historySaves)
}
