package wordmemory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var recordedEvents = promauto.NewCounter(prometheus.CounterOpts{
	Name: "dotmod_memory_events_recorded_total",
	Help: "Number of message events added to the word memory store",
})

var expiredEvents = promauto.NewCounter(prometheus.CounterOpts{
	Name: "dotmod_memory_events_expired_total",
	Help: "Number of events removed after leaving the retention window",
})

var corruptLines = promauto.NewCounter(prometheus.CounterOpts{
	Name: "dotmod_memory_corrupt_lines_total",
	Help: "Number of unparseable log lines skipped at load",
})

var compactions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dotmod_memory_compactions_total",
	Help: "Number of full log rewrites",
}, []string{"result"})

var writeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dotmod_memory_write_errors_total",
	Help: "Number of failed durable writes",
}, []string{"op"})

var liveEvents = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "dotmod_memory_live_events",
	Help: "Events currently inside the retention window",
})
