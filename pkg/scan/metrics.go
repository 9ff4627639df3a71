package scan

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var scannedMessages = promauto.NewCounter(prometheus.CounterOpts{
	Name: "dotmod_scan_messages_total",
	Help: "Messages published by the channel scanner",
})

var scanErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "dotmod_scan_errors_total",
	Help: "Channel scan passes that failed",
})
