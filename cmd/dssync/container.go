// Package main wires the sync end-to-end. This file keeps the CLI layer
// thin: collaborators are built behind function variables so tests can
// substitute fakes without touching the network or a database.
package main

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"dssync/internal/config"
	"dssync/internal/grist"
	"dssync/internal/httpjson"
	"dssync/internal/manager"
	"dssync/internal/schema"
	"dssync/internal/schemacache"
	"dssync/internal/storage"
	"dssync/internal/storage/postgres"
)

// schemaCacheTTL bounds how long a cached form schema is served without a
// refetch.
const schemaCacheTTL = 24 * time.Hour

// runOptions carries the per-invocation flags.
type runOptions struct {
	forceSchema bool

	// only restricts the run to these démarche numbers. Nil runs all.
	only map[int]bool
}

// Function variables used to introduce test seams.
// In production these point to real implementations; tests can override them.
var (
	newSinkFn = func(cfg config.Config) manager.Sink {
		client := grist.NewClient(cfg.Grist.BaseURL, cfg.Grist.DocID, cfg.GristAPIKey(), httpjson.Config{})
		return grist.NewReconciler(client, schema.NewColumnCache(), cfg.Sync.BatchSize)
	}

	newMirrorFn = func(ctx context.Context, cfg config.Config) (storage.Repository, func(), error) {
		return postgres.NewRepository(ctx, postgres.Config{DSN: cfg.Mirror.DSN, Schema: cfg.Mirror.Schema})
	}

	openSchemaCacheFn = schemacache.Open

	newManagerFn = manager.New
)

// run builds the collaborators the config asks for and syncs every selected
// démarche. It fails when no démarche produced a successful run.
func run(ctx context.Context, cfg config.Config, opts runOptions) error {
	cfg.Demarches = selectDemarches(cfg.Demarches, opts.only)
	if len(cfg.Demarches) == 0 {
		return fmt.Errorf("no démarches selected")
	}

	mopts := manager.Options{ForceSchema: opts.forceSchema}

	if cfg.SchemaCachePath != "" {
		cache, closeCache, err := openSchemaCacheFn(ctx, cfg.SchemaCachePath, schemaCacheTTL)
		if err != nil {
			log.Printf("schema cache unavailable (%v), fetching schemas directly", err)
		} else {
			defer closeCache()
			mopts.SchemaCache = cache
		}
	}

	if cfg.Mirror.DSN != "" {
		mirror, closeMirror, err := newMirrorFn(ctx, cfg)
		if err != nil {
			log.Printf("mirror unavailable (%v), continuing without it", err)
		} else {
			defer closeMirror()
			mopts.Mirror = mirror
		}
	}

	m := newManagerFn(cfg, newSinkFn(cfg), mopts)
	results := m.Run(ctx)

	var failed []string
	success := false
	for _, res := range results {
		if res.Err != nil {
			failed = append(failed, fmt.Sprintf("%d: %v", res.Demarche, res.Err))
			continue
		}
		if res.Success() {
			success = true
		}
	}
	if len(failed) > 0 && !success {
		return fmt.Errorf("all démarches failed: %s", strings.Join(failed, "; "))
	}
	for _, f := range failed {
		log.Printf("demarche %s", f)
	}
	return nil
}

// selectDemarches applies the -demarches restriction.
func selectDemarches(all []config.Demarche, only map[int]bool) []config.Demarche {
	if only == nil {
		return all
	}
	var kept []config.Demarche
	for _, d := range all {
		if only[d.Number] {
			kept = append(kept, d)
		}
	}
	return kept
}

// parseDemarcheList parses the -demarches flag, e.g. "101,202".
func parseDemarcheList(v string) (map[int]bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	only := map[int]bool{}
	for _, part := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid démarche number %q", part)
		}
		only[n] = true
	}
	return only, nil
}
