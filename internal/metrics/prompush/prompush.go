// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// It adapts the generic metrics.Backend interface to Prometheus by:
//
//   - Using client_golang CounterVec and SummaryVec collectors.
//   - Mapping the sync labels (demarche, step, status, table, kind) onto
//     Prometheus labels.
//   - Pushing collected metrics to a Prometheus Pushgateway instance instead
//     of exposing an HTTP scrape endpoint, since sync runs are short-lived.
//
// All Prometheus-specific dependencies stay in this package so the rest of
// the project remains decoupled and can swap backends without changes.
package prompush

import (
	"fmt"

	"dssync/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stepCounter  *prometheus.CounterVec // "sync_step_total"
	stepDuration *prometheus.SummaryVec // "sync_step_duration_seconds"

	dossierCounter *prometheus.CounterVec // "sync_dossiers_total"
	writeCounter   *prometheus.CounterVec // "sync_writes_total"
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName is the Pushgateway "job" grouping key; gatewayURL the server base URL.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "dssync"
	}

	reg := prometheus.NewRegistry()

	stepCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_step_total",
			Help: "Total number of sync step executions, partitioned by demarche, step, and status.",
		},
		[]string{"demarche", "step", "status"},
	)
	stepDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "sync_step_duration_seconds",
			Help:       "Duration of sync steps in seconds, partitioned by demarche, step, and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"demarche", "step", "status"},
	)
	dossierCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_dossiers_total",
			Help: "Dossier-level counts per demarche and kind (fetched, filtered, processed, failed).",
		},
		[]string{"demarche", "kind"},
	)
	writeCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_writes_total",
			Help: "Record writes per demarche, table and outcome (created, updated, failed).",
		},
		[]string{"demarche", "table", "kind"},
	)

	for name, c := range map[string]prometheus.Collector{
		"step counter":    stepCounter,
		"step summary":    stepDuration,
		"dossier counter": dossierCounter,
		"write counter":   writeCounter,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}

	return &Backend{
		gatewayURL:     gatewayURL,
		jobName:        jobName,
		reg:            reg,
		stepCounter:    stepCounter,
		stepDuration:   stepDuration,
		dossierCounter: dossierCounter,
		writeCounter:   writeCounter,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "sync_step_total":
		if b.stepCounter == nil {
			return
		}
		b.stepCounter.WithLabelValues(labels["demarche"], labels["step"], labels["status"]).Add(delta)

	case "sync_dossiers_total":
		if b.dossierCounter == nil {
			return
		}
		b.dossierCounter.WithLabelValues(labels["demarche"], labels["kind"]).Add(delta)

	case "sync_writes_total":
		if b.writeCounter == nil {
			return
		}
		b.writeCounter.WithLabelValues(labels["demarche"], labels["table"], labels["kind"]).Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != "sync_step_duration_seconds" || b.stepDuration == nil {
		return
	}
	b.stepDuration.WithLabelValues(labels["demarche"], labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
