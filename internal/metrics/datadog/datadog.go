// Package datadog forwards metrics to a DogStatsD agent. Counters map to
// Datadog counts, histogram observations to Datadog histograms, and labels
// become "key:value" tags. Only this package depends on the Datadog client;
// the rest of the tree sees metrics.Backend.
package datadog

import (
	"fmt"

	"github.com/DataDog/datadog-go/v5/statsd"

	"dssync/internal/metrics"
)

// Config holds the DogStatsD connection settings.
type Config struct {
	// Addr is the agent address, e.g. "127.0.0.1:8125" or
	// "unix:///var/run/datadog/dsd.socket".
	Addr string

	// Namespace prefixes every metric name, e.g. "dssync.".
	Namespace string

	// GlobalTags are added to every metric, e.g.
	// []string{"env:prod", "service:dssync"}.
	GlobalTags []string
}

// statsdClient is the slice of *statsd.Client the backend uses. Tests
// substitute a recorder.
type statsdClient interface {
	Count(name string, value int64, tags []string, rate float64) error
	Histogram(name string, value float64, tags []string, rate float64) error
	Close() error
}

// Backend implements metrics.Backend over DogStatsD. Install it globally
// with metrics.SetBackend.
type Backend struct {
	client statsdClient
}

// NewBackend connects to the agent at cfg.Addr. Addr is required; namespace
// and global tags are applied as client options so every emitted metric
// carries them.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("datadog: Addr is required")
	}

	var opts []statsd.Option
	if cfg.Namespace != "" {
		opts = append(opts, statsd.WithNamespace(cfg.Namespace))
	}
	if len(cfg.GlobalTags) > 0 {
		opts = append(opts, statsd.WithTags(cfg.GlobalTags))
	}

	c, err := statsd.New(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("datadog: create client: %w", err)
	}
	return &Backend{client: c}, nil
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	// DogStatsD counts are integral; fractional deltas are truncated.
	_ = b.client.Count(name, int64(delta), labelsToTags(labels), 1)
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	_ = b.client.Histogram(name, value, labelsToTags(labels), 1)
}

// Flush closes the client, which drains buffered metrics to the agent.
// Intended for process shutdown.
func (b *Backend) Flush() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

func labelsToTags(lbls metrics.Labels) []string {
	if len(lbls) == 0 {
		return nil
	}
	tags := make([]string, 0, len(lbls))
	for k, v := range lbls {
		tags = append(tags, fmt.Sprintf("%s:%s", k, v))
	}
	return tags
}
