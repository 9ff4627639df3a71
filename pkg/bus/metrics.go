package bus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var droppedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dotmod_bus_dropped_total",
	Help: "Messages dropped because a bus queue stayed full",
}, []string{"queue"})
