package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		API:   API{Endpoint: "https://api.example.org/graphql"},
		Grist: Grist{BaseURL: "https://grist.example.org", DocID: "doc1"},
		Demarches: []Demarche{
			{Number: 12345, Name: "aides"},
		},
	}
}

func findIssue(issues []Issue, path string) *Issue {
	for i := range issues {
		if issues[i].Path == path {
			return &issues[i]
		}
	}
	return nil
}

func TestValidateOK(t *testing.T) {
	issues := Validate(validConfig())
	if HasErrors(issues) {
		t.Fatalf("unexpected errors: %v", issues)
	}
}

func TestValidateMissingEndpoint(t *testing.T) {
	c := validConfig()
	c.API.Endpoint = " "
	issues := Validate(c)
	if iss := findIssue(issues, "api.endpoint"); iss == nil || iss.Severity != SeverityError {
		t.Fatalf("issues = %v", issues)
	}
}

func TestValidateGrist(t *testing.T) {
	c := validConfig()
	c.Grist = Grist{}
	issues := Validate(c)
	if findIssue(issues, "grist.base_url") == nil || findIssue(issues, "grist.doc_id") == nil {
		t.Fatalf("issues = %v", issues)
	}
}

func TestValidateDemarches(t *testing.T) {
	c := validConfig()
	c.Demarches = nil
	if iss := findIssue(Validate(c), "demarches"); iss == nil || iss.Severity != SeverityError {
		t.Fatal("empty demarches should be an error")
	}

	c = validConfig()
	c.Demarches = []Demarche{
		{Number: 12345, Name: "a"},
		{Number: 12345, Name: "b"},
	}
	if iss := findIssue(Validate(c), "demarches[1].number"); iss == nil {
		t.Fatal("duplicate number should be flagged")
	}

	c = validConfig()
	c.Demarches[0].Number = 0
	if iss := findIssue(Validate(c), "demarches[0].number"); iss == nil || iss.Severity != SeverityError {
		t.Fatal("non-positive number should be an error")
	}

	c = validConfig()
	c.Demarches[0].Name = ""
	if iss := findIssue(Validate(c), "demarches[0].name"); iss == nil || iss.Severity != SeverityWarning {
		t.Fatal("empty name should be a warning")
	}

	c = validConfig()
	off := false
	c.Demarches[0].Enabled = &off
	if iss := findIssue(Validate(c), "demarches"); iss == nil || iss.Severity != SeverityWarning {
		t.Fatal("all-disabled should warn")
	}
}

func TestValidateFilters(t *testing.T) {
	c := validConfig()
	c.Demarches[0].Filters.DateDepotDebut = "01/02/2024"
	issues := Validate(c)
	iss := findIssue(issues, "demarches[0].filters.date_depot_debut")
	if iss == nil || !strings.Contains(iss.Message, "YYYY-MM-DD") {
		t.Fatalf("issues = %v", issues)
	}

	c = validConfig()
	c.Demarches[0].Filters.DateDepotDebut = "2024-06-01"
	c.Demarches[0].Filters.DateDepotFin = "2024-01-01"
	if iss := findIssue(Validate(c), "demarches[0].filters"); iss == nil {
		t.Fatal("inverted date range should be flagged")
	}
}

func TestValidateMetrics(t *testing.T) {
	c := validConfig()
	c.Metrics.Backend = "statsd"
	if iss := findIssue(Validate(c), "metrics.backend"); iss == nil {
		t.Fatal("unknown backend should be flagged")
	}

	c = validConfig()
	c.Metrics.Backend = "prompush"
	if iss := findIssue(Validate(c), "metrics.pushgateway_url"); iss == nil {
		t.Fatal("prompush without URL should be flagged")
	}

	c = validConfig()
	c.Metrics.Backend = "datadog"
	if iss := findIssue(Validate(c), "metrics.datadog_addr"); iss == nil {
		t.Fatal("datadog without address should be flagged")
	}

	c = validConfig()
	c.Metrics = Metrics{Backend: "prompush", PushgatewayURL: "http://pg:9091"}
	if HasErrors(Validate(c)) {
		t.Fatal("valid prompush config should pass")
	}

	c = validConfig()
	c.Metrics = Metrics{Backend: "none"}
	if iss := findIssue(Validate(c), "metrics.backend"); iss != nil {
		t.Fatalf("backend \"none\" should pass validation: %v", iss)
	}
}

func TestValidateSyncBounds(t *testing.T) {
	c := validConfig()
	c.Sync.BatchSize = -1
	c.Sync.MaxWorkers = -2
	issues := Validate(c)
	if findIssue(issues, "sync.batch_size") == nil || findIssue(issues, "sync.max_workers") == nil {
		t.Fatalf("issues = %v", issues)
	}
}
