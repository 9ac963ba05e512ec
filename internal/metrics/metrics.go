// Package metrics exposes Prometheus metrics for imports, dispositions and
// reminders on a dedicated registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the registry served at /metrics.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// RecordsImportedTotal counts records appended to datasets.
var RecordsImportedTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "leads",
	Name:      "records_imported_total",
	Help:      "Records appended to datasets by source format",
}, []string{"format"})

// BlocksRejectedTotal counts blocks or rows that produced no record.
var BlocksRejectedTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "leads",
	Name:      "blocks_rejected_total",
	Help:      "Blocks or rows dropped because they carried no identity",
}, []string{"format"})

var ImportBytesTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "leads",
	Name:      "import_bytes_total",
	Help:      "Bytes of imported payloads",
})

// DispositionTransitionsTotal counts real state changes, not repeated calls.
var DispositionTransitionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "disposition",
	Name:      "transitions_total",
	Help:      "Disposition transitions by target state",
}, []string{"state"})

var RemindersTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "scheduler",
	Name:      "reminders_total",
	Help:      "Reminders handled by the scan, by result (sent, failed, skipped)",
}, []string{"result"})

var ScanDurationSeconds = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "scheduler",
	Name:      "scan_duration_seconds",
	Help:      "Time taken by one reminder scan",
	Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
})

var ScanErrorsTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "scheduler",
	Name:      "scan_errors_total",
	Help:      "Scans or scan entries that failed and were skipped",
})

var EventsTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "console",
	Name:      "events_total",
	Help:      "Inbound operator events by kind",
}, []string{"kind"})

// NotFoundTotal counts stale action tokens and unknown verbs.
var NotFoundTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "console",
	Name:      "not_found_total",
	Help:      "Events that referenced an unknown action or entity",
})
