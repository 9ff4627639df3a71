package moderation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var decisionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dotmod_decisions_total",
	Help: "Number of moderation decisions by final action",
}, []string{"action"})

var overrideCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dotmod_decision_overrides_total",
	Help: "Number of tiered actions changed by the review passes",
}, []string{"from", "to"})

var evaluateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "dotmod_evaluate_duration_sec",
	Help:    "Duration of a single message evaluation",
	Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
})

var totalScores = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "dotmod_decision_total_score",
	Help:    "Distribution of total risk scores",
	Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 100, 150},
})
