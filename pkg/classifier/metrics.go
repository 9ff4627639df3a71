package classifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var classifyCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dotmod_classifier_results_total",
	Help: "Number of classifications by source and risk level",
}, []string{"source", "level"})

var fallbackCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dotmod_classifier_fallbacks_total",
	Help: "Number of remote classifications that fell back to rules",
}, []string{"reason"})

var remoteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "dotmod_classifier_remote_duration_sec",
	Help:    "Duration of remote classifier calls",
	Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
})
