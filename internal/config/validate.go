// Package config provides the configuration model and helpers for sync runs.
//
// This file adds a lightweight linter/validator for Config values. It
// performs static checks over a decoded Config and returns a list of issues
// (errors and warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"
	"time"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Config.
//
// Path is a dotted path into the config (e.g. "grist.doc_id",
// "demarches[1].filters.date_depot_debut"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is severity error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate performs static validation / linting of a Config.
//
// It does not mutate the config. Callers decide whether to treat warnings as
// fatal.
func Validate(c Config) []Issue {
	var issues []Issue

	if strings.TrimSpace(c.API.Endpoint) == "" {
		issues = append(issues, Issue{SeverityError, "api.endpoint", "endpoint must not be empty"})
	}
	issues = append(issues, validateGrist(c.Grist)...)
	issues = append(issues, validateDemarches(c.Demarches)...)
	issues = append(issues, validateMetrics(c.Metrics)...)

	if c.Sync.BatchSize < 0 {
		issues = append(issues, Issue{SeverityError, "sync.batch_size", "batch size must not be negative"})
	}
	if c.Sync.MaxWorkers < 0 {
		issues = append(issues, Issue{SeverityError, "sync.max_workers", "max workers must not be negative"})
	}
	return issues
}

func validateGrist(g Grist) []Issue {
	var issues []Issue
	if strings.TrimSpace(g.BaseURL) == "" {
		issues = append(issues, Issue{SeverityError, "grist.base_url", "base URL must not be empty"})
	}
	if strings.TrimSpace(g.DocID) == "" {
		issues = append(issues, Issue{SeverityError, "grist.doc_id", "document id must not be empty"})
	}
	return issues
}

func validateDemarches(ds []Demarche) []Issue {
	var issues []Issue
	if len(ds) == 0 {
		issues = append(issues, Issue{SeverityError, "demarches", "at least one démarche is required"})
		return issues
	}

	seen := map[int]bool{}
	anyEnabled := false
	for i, d := range ds {
		path := fmt.Sprintf("demarches[%d]", i)
		if d.Number <= 0 {
			issues = append(issues, Issue{SeverityError, path + ".number", "number must be positive"})
		}
		if seen[d.Number] {
			issues = append(issues, Issue{SeverityError, path + ".number",
				fmt.Sprintf("démarche %d is listed more than once", d.Number)})
		}
		seen[d.Number] = true
		if strings.TrimSpace(d.Name) == "" {
			issues = append(issues, Issue{SeverityWarning, path + ".name",
				"name is empty; the démarche number will be used in table names and logs"})
		}
		if d.IsEnabled() {
			anyEnabled = true
		}
		issues = append(issues, validateFilters(path+".filters", d.Filters)...)
	}
	if !anyEnabled {
		issues = append(issues, Issue{SeverityWarning, "demarches", "every démarche is disabled; a run will do nothing"})
	}
	return issues
}

func validateFilters(path string, f Filters) []Issue {
	var issues []Issue
	issues = append(issues, validateDate(path+".date_depot_debut", f.DateDepotDebut)...)
	issues = append(issues, validateDate(path+".date_depot_fin", f.DateDepotFin)...)

	if f.DateDepotDebut != "" && f.DateDepotFin != "" {
		debut, err1 := time.Parse("2006-01-02", f.DateDepotDebut)
		fin, err2 := time.Parse("2006-01-02", f.DateDepotFin)
		if err1 == nil && err2 == nil && fin.Before(debut) {
			issues = append(issues, Issue{SeverityError, path,
				"date_depot_fin is before date_depot_debut"})
		}
	}
	return issues
}

func validateDate(path, value string) []Issue {
	if value == "" {
		return nil
	}
	if _, err := time.Parse("2006-01-02", value); err != nil {
		return []Issue{{SeverityError, path,
			fmt.Sprintf("%q is not a valid date; expected YYYY-MM-DD", value)}}
	}
	return nil
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	switch m.Backend {
	case "", "none", "prompush", "datadog":
	default:
		issues = append(issues, Issue{SeverityError, "metrics.backend",
			fmt.Sprintf("unknown backend %q; expected \"prompush\", \"datadog\", \"none\" or empty", m.Backend)})
	}
	if m.Backend == "prompush" && strings.TrimSpace(m.PushgatewayURL) == "" {
		issues = append(issues, Issue{SeverityError, "metrics.pushgateway_url",
			"pushgateway URL is required for the prompush backend"})
	}
	if m.Backend == "datadog" && strings.TrimSpace(m.DatadogAddr) == "" {
		issues = append(issues, Issue{SeverityError, "metrics.datadog_addr",
			"DogStatsD address is required for the datadog backend"})
	}
	return issues
}
