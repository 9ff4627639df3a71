package patterns

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var matchTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dotmod_pattern_match_timeouts_total",
	Help: "Number of pattern evaluations abandoned after the match timeout",
}, []string{"kind"})

var droppedPatterns = promauto.NewCounter(prometheus.CounterOpts{
	Name: "dotmod_pattern_invalid_dropped_total",
	Help: "Number of configured patterns dropped at load because they failed to compile",
})
