package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var recordCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dotmod_audit_records_total",
	Help: "Decisions written to the audit log",
}, []string{"result"})

var sweptRows = promauto.NewCounter(prometheus.CounterOpts{
	Name: "dotmod_audit_swept_total",
	Help: "Audit rows removed by the retention sweep",
})
