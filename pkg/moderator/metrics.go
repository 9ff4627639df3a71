package moderator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var handled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dotmod_moderator_handled_total",
	Help: "Messages decided by the moderator loop",
}, []string{"origin", "action"})

var duplicates = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dotmod_moderator_duplicates_total",
	Help: "Messages skipped because they were already handled",
}, []string{"origin"})
