// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from sync runs.
//
// It exposes a narrow interface (Backend) focused on counters and timing
// data, with a global, pluggable backend defaulting to a no-op so metric
// calls are always safe even when nothing is configured. Concrete systems
// (Prometheus Pushgateway, Datadog) live in subpackages; the rest of the
// codebase depends only on this package.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep measures latency and success/failure of one sync step
// (schema, fetch, flatten, write, mirror) for one démarche.
func RecordStep(demarche, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"demarche": demarche,
		"step":     step,
		"status":   status,
	}

	backend.IncCounter("sync_step_total", 1, lbls)
	backend.ObserveHistogram("sync_step_duration_seconds", d.Seconds(), lbls)
}

// RecordDossiers increments a dossier-level counter for the given démarche
// and kind.
//
// Typical kinds mirror the run summary fields:
//   - "fetched"
//   - "filtered"
//   - "processed"
//   - "failed"
func RecordDossiers(demarche, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("sync_dossiers_total", float64(delta), Labels{
		"demarche": demarche,
		"kind":     kind,
	})
}

// RecordWrites increments a record-write counter per table and outcome
// (created, updated, failed).
func RecordWrites(demarche, table, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("sync_writes_total", float64(delta), Labels{
		"demarche": demarche,
		"table":    table,
		"kind":     kind,
	})
}
