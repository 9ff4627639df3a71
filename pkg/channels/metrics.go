package channels

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var enforced = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dotmod_enforcements_total",
	Help: "Enforcements carried out by a channel",
}, []string{"channel", "kind"})

var enforceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dotmod_enforcement_failures_total",
	Help: "Enforcements a channel failed to carry out",
}, []string{"channel", "kind"})
