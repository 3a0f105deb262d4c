// Package config defines the canonical, JSON-serializable configuration model
// for the sync application. It is intentionally small, explicit, and
// dependency-free so that configurations can be loaded from disk and passed
// through the program without additional glue code.
//
// Design goals:
//
//  1. Stability: Changes to this package should be additive and backwards-
//     compatible whenever possible.
//  2. Clarity: Field names in Go mirror the JSON structure of the config file.
//  3. Minimalism: No third-party config libraries; decoding is performed by the
//     standard library, with a light Options helper for typed access.
//
// Secrets never live in the file: API tokens are resolved from the
// environment at run time, per organization.
//
// Example (trimmed):
//
//	{
//	  "api":   { "endpoint": "https://www.demarches-simplifiees.fr/api/v2/graphql" },
//	  "grist": { "base_url": "https://grist.example.org", "doc_id": "abc123" },
//	  "demarches": [
//	    { "number": 12345, "name": "aides", "org": "DRAAF",
//	      "filters": { "date_depot_debut": "2024-01-01" } }
//	  ]
//	}
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Config is the top-level object decoded from the config file.
type Config struct {
	// API configures the case-management GraphQL endpoint.
	API API `json:"api"`

	// Grist configures the target spreadsheet document.
	Grist Grist `json:"grist"`

	// Demarches lists the procedures to sync.
	Demarches []Demarche `json:"demarches"`

	// Sync holds run-wide defaults; per-démarche settings override them.
	Sync Sync `json:"sync"`

	// Mirror optionally configures the relational mirror. Empty DSN
	// disables it.
	Mirror Mirror `json:"mirror"`

	// Metrics optionally configures a metrics backend.
	Metrics Metrics `json:"metrics"`

	// SchemaCachePath is the SQLite file holding cached form schemas.
	// Empty disables persistent caching.
	SchemaCachePath string `json:"schema_cache_path"`
}

// API configures the upstream GraphQL API.
type API struct {
	// Endpoint is the GraphQL URL.
	Endpoint string `json:"endpoint"`

	// TokenEnv names the environment variable holding the default API
	// token, used when a démarche's organization has no dedicated one.
	// Defaults to "DEMARCHES_API_TOKEN".
	TokenEnv string `json:"token_env"`
}

// Grist configures the target document.
type Grist struct {
	// BaseURL is the server root, e.g. "https://grist.example.org".
	BaseURL string `json:"base_url"`

	// DocID identifies the document.
	DocID string `json:"doc_id"`

	// APIKeyEnv names the environment variable holding the API key.
	// Defaults to "GRIST_API_KEY".
	APIKeyEnv string `json:"api_key_env"`
}

// Demarche is one procedure to sync.
type Demarche struct {
	// Number is the procedure's numeric identifier in the upstream system.
	Number int `json:"number"`

	// Name is a short label used for table prefixes and logging.
	Name string `json:"name"`

	// Org selects the credential: the token is read from
	// DEMARCHES_API_TOKEN_<ORG> (upper-cased). Empty falls back to the
	// default token.
	Org string `json:"org"`

	// Enabled defaults to true when absent.
	Enabled *bool `json:"enabled"`

	// Filters narrow which dossiers are synced.
	Filters Filters `json:"filters"`

	// Sync overrides the run-wide sync settings for this démarche.
	Sync Sync `json:"sync"`

	// Options is a free-form bag for settings that vary per démarche.
	Options Options `json:"options"`
}

// IsEnabled reports whether the démarche takes part in a run.
func (d Demarche) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// Filters narrow the dossier set of one démarche. DateDepotDebut is pushed
// down to the API; the rest are applied client-side after fetching.
type Filters struct {
	// DateDepotDebut keeps dossiers deposited on or after this date
	// (YYYY-MM-DD).
	DateDepotDebut string `json:"date_depot_debut"`

	// DateDepotFin keeps dossiers deposited on or before this date.
	DateDepotFin string `json:"date_depot_fin"`

	// GroupesInstructeurs keeps dossiers assigned to any of these group
	// labels. Empty keeps all.
	GroupesInstructeurs []string `json:"groupes_instructeurs"`

	// StatutsDossiers keeps dossiers in any of these states. Empty keeps
	// all.
	StatutsDossiers []string `json:"statuts_dossiers"`
}

// Sync controls batching and concurrency.
type Sync struct {
	// BatchSize bounds records per write call. Zero means the default.
	BatchSize int `json:"batch_size"`

	// MaxWorkers bounds concurrent dossier fetches. Zero means the default.
	MaxWorkers int `json:"max_workers"`

	// Parallel fetches dossier details concurrently when true.
	Parallel bool `json:"parallel"`
}

// Mirror configures the optional relational mirror.
type Mirror struct {
	// DSN is the pgxpool connection string. Empty disables the mirror.
	DSN string `json:"dsn"`

	// Schema is the target schema, defaulting to "public".
	Schema string `json:"schema"`
}

// Metrics selects and configures a metrics backend.
type Metrics struct {
	// Backend is "", "prompush" or "datadog". Empty disables metrics.
	Backend string `json:"backend"`

	// PushgatewayURL is the Pushgateway base URL for the prompush backend.
	PushgatewayURL string `json:"pushgateway_url"`

	// JobName is the Pushgateway job grouping key.
	JobName string `json:"job_name"`

	// DatadogAddr is the DogStatsD address for the datadog backend.
	DatadogAddr string `json:"datadog_addr"`
}

// Load reads and decodes a config file.
func Load(path string) (Config, error) {
	var c Config
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("config: decode %s: %w", path, err)
	}
	// A missing "options" key never reaches Options.UnmarshalJSON, so
	// normalize here to keep call sites free of nil checks.
	for i := range c.Demarches {
		if c.Demarches[i].Options == nil {
			c.Demarches[i].Options = Options{}
		}
	}
	return c, nil
}

// TokenEnvName is the environment variable holding a démarche's API token:
// the per-organization variable when Org is set, else the configured default.
func (c Config) TokenEnvName(d Demarche) string {
	if d.Org != "" {
		return "DEMARCHES_API_TOKEN_" + strings.ToUpper(strings.ReplaceAll(d.Org, "-", "_"))
	}
	if c.API.TokenEnv != "" {
		return c.API.TokenEnv
	}
	return "DEMARCHES_API_TOKEN"
}

// Token resolves a démarche's API token from the environment.
func (c Config) Token(d Demarche) string {
	return os.Getenv(c.TokenEnvName(d))
}

// GristAPIKey resolves the document API key from the environment.
func (c Config) GristAPIKey() string {
	env := c.Grist.APIKeyEnv
	if env == "" {
		env = "GRIST_API_KEY"
	}
	return os.Getenv(env)
}

// SyncFor merges the run-wide sync defaults with a démarche's overrides.
func (c Config) SyncFor(d Demarche) Sync {
	s := c.Sync
	if d.Sync.BatchSize > 0 {
		s.BatchSize = d.Sync.BatchSize
	}
	if d.Sync.MaxWorkers > 0 {
		s.MaxWorkers = d.Sync.MaxWorkers
	}
	if d.Sync.Parallel {
		s.Parallel = true
	}
	if s.BatchSize <= 0 {
		s.BatchSize = 100
	}
	if s.MaxWorkers <= 0 {
		s.MaxWorkers = 3
	}
	return s
}

// Options is a small helper to fetch typed values from arbitrary JSON maps
// without introducing third-party configuration libraries. It purposefully
// performs only minimal type coercion and returns provided defaults when a key
// is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers are decoded as
// float64 by encoding/json, so this method accepts float64 and casts to int.
// If the value is neither float64 nor int, def is returned.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// StringSlice returns a []string for key when the value is an array of strings
// (or an array of interface values containing strings). Returns nil when the
// key is missing or the value is not an array.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// Any returns the raw value for key (which may itself be a nested
// map[string]any, []any, or primitive).
func (o Options) Any(key string) any {
	if v, ok := o[key]; ok {
		return v
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler so that a null "options" object
// decodes to a non-nil, empty Options map. An absent key never invokes this
// method; Load normalizes that case after decoding.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
