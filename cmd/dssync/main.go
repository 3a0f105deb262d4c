package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"dssync/internal/config"
	"dssync/internal/metrics"
	"dssync/internal/metrics/datadog"
	"dssync/internal/metrics/prompush"
)

// main is the entry point for the sync binary. It loads the run config,
// optionally initializes a metrics backend, and executes the sync.
func main() {
	var (
		cfgPath     string
		demarches   string
		validate    bool
		forceSchema bool
	)

	flag.StringVar(&cfgPath, "config", "configs/sync.json", "sync config JSON path")
	flag.StringVar(&demarches, "demarches", "", "comma-separated démarche numbers to sync (default all enabled)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	flag.BoolVar(&forceSchema, "force-schema", false, "refetch form schemas, bypassing the cache")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatalf("load config: %v", err)
	}

	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Printf("Configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}

	// If validate flag is set, only validate the configuration and exit
	if validate {
		log.Printf("Configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	initMetrics(cfg, *verbose)

	only, err := parseDemarcheList(demarches)
	if err != nil {
		fatalf("parse -demarches: %v", err)
	}

	ctx := context.Background()
	start := time.Now()

	if err := run(ctx, cfg, runOptions{forceSchema: forceSchema, only: only}); err != nil {
		log.Fatalf("%v", err)
	}

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

// initMetrics wires the metrics backend selected in the config. The env
// variable METRICS_BACKEND overrides an empty config value.
func initMetrics(cfg config.Config, verbose bool) {
	backendName := cfg.Metrics.Backend
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "prompush":
		gwURL := cfg.Metrics.PushgatewayURL
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		jobName := cfg.Metrics.JobName
		b, err := prompush.NewBackend(jobName, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: url=%v, backend=%v, job_name=%v", gwURL, backendName, jobName)
		metrics.SetBackend(b)

	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{Addr: cfg.Metrics.DatadogAddr})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: backend=%v, addr=%v", backendName, cfg.Metrics.DatadogAddr)
		metrics.SetBackend(b)

	case "", "none":
		// metrics disabled; nop backend remains
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
