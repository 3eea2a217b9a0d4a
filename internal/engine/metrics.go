package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	// translationsTotal counts Translate calls by engine and outcome
	// (ok|error|canceled).
	translationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "translations_total",
			Help: "Total number of engine translations by outcome.",
		},
		[]string{"engine", "outcome"},
	)

	translationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "translation_duration_seconds",
			Help:    "Duration of engine translations in seconds.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"engine"},
	)

	// modelDownloadsTotal counts shared model downloads, not callers.
	modelDownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "model_downloads_total",
			Help: "Total number of language model downloads by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(translationsTotal, translationDuration, modelDownloadsTotal)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case isCanceled(err):
		return "canceled"
	default:
		return "error"
	}
}
