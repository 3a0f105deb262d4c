package main

import (
	"context"
	"strings"
	"sync"
	"testing"

	"dssync/internal/config"
	"dssync/internal/demarches"
	"dssync/internal/flatten"
	"dssync/internal/grist"
	"dssync/internal/manager"
	"dssync/internal/schema"
)

type stubSource struct {
	schema    *demarches.Schema
	summaries []demarches.DossierSummary
	dossiers  map[int]*demarches.Dossier
}

func (s *stubSource) FetchSchema(ctx context.Context, demarcheNumber int) (*demarches.Schema, error) {
	return s.schema, nil
}

func (s *stubSource) FetchDossiers(ctx context.Context, demarcheNumber int, depositedSince string) ([]demarches.DossierSummary, error) {
	return s.summaries, nil
}

func (s *stubSource) FetchDossier(ctx context.Context, number int) (*demarches.Dossier, error) {
	return s.dossiers[number], nil
}

func (s *stubSource) FetchDossierLabels(ctx context.Context, number int) ([]demarches.Label, error) {
	return nil, nil
}

type stubSink struct {
	mu      sync.Mutex
	upserts map[string]int
}

func (s *stubSink) EnsureTable(ctx context.Context, tableID string, cols []schema.Column) error {
	return nil
}

func (s *stubSink) Upsert(ctx context.Context, tableID string, recs []flatten.Record, key grist.KeyFunc, legacy grist.LegacyKeyFunc) (grist.UpsertStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upserts == nil {
		s.upserts = map[string]int{}
	}
	s.upserts[tableID] += len(recs)
	return grist.UpsertStats{Created: len(recs)}, nil
}

func withStubs(t *testing.T, source manager.Source, sink manager.Sink) {
	t.Helper()
	origSink, origManager := newSinkFn, newManagerFn
	newSinkFn = func(cfg config.Config) manager.Sink { return sink }
	newManagerFn = func(cfg config.Config, s manager.Sink, opts manager.Options) *manager.Manager {
		opts.NewSource = func(endpoint, token string) manager.Source { return source }
		return manager.New(cfg, s, opts)
	}
	t.Cleanup(func() {
		newSinkFn, newManagerFn = origSink, origManager
	})
}

func stubConfig(t *testing.T) config.Config {
	t.Setenv("DEMARCHES_API_TOKEN", "tok")
	return config.Config{
		API: config.API{Endpoint: "https://example.test/graphql"},
		Demarches: []config.Demarche{
			{Number: 101, Name: "Aides"},
			{Number: 202, Name: "Permis"},
		},
	}
}

func workingSource() *stubSource {
	return &stubSource{
		schema: &demarches.Schema{
			Number: 101,
			Title:  "Aides",
			ChampDescriptors: []demarches.Descriptor{
				{Type: "TextChampDescriptor", ID: "ZGVzYy0x", Label: "Nom"},
			},
		},
		summaries: []demarches.DossierSummary{{Number: 1, State: "accepte"}},
		dossiers: map[int]*demarches.Dossier{
			1: {ID: "RG9zc2llci0x", Number: 1, State: "accepte"},
		},
	}
}

func TestRunSyncsSelectedDemarches(t *testing.T) {
	sink := &stubSink{}
	withStubs(t, workingSource(), sink)

	err := run(context.Background(), stubConfig(t), runOptions{only: map[int]bool{101: true}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sink.upserts["aides_dossiers"] != 1 {
		t.Errorf("aides_dossiers writes = %d, want 1", sink.upserts["aides_dossiers"])
	}
	if got := sink.upserts["permis_dossiers"]; got != 0 {
		t.Errorf("permis_dossiers writes = %d, want 0 for unselected démarche", got)
	}
}

func TestRunNoSelectionRunsAll(t *testing.T) {
	sink := &stubSink{}
	withStubs(t, workingSource(), sink)

	if err := run(context.Background(), stubConfig(t), runOptions{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if sink.upserts["aides_dossiers"] != 1 || sink.upserts["permis_dossiers"] != 1 {
		t.Errorf("upserts = %v, want one write per démarche", sink.upserts)
	}
}

func TestRunEmptySelectionFails(t *testing.T) {
	withStubs(t, workingSource(), &stubSink{})

	err := run(context.Background(), stubConfig(t), runOptions{only: map[int]bool{999: true}})
	if err == nil || !strings.Contains(err.Error(), "no démarches selected") {
		t.Fatalf("err = %v, want selection error", err)
	}
}

func TestRunAllDemarchesFailingFails(t *testing.T) {
	withStubs(t, workingSource(), &stubSink{})

	cfg := stubConfig(t)
	t.Setenv("DEMARCHES_API_TOKEN", "")
	if err := run(context.Background(), cfg, runOptions{}); err == nil {
		t.Fatal("expected an error when every démarche fails")
	}
}

func TestParseDemarcheList(t *testing.T) {
	only, err := parseDemarcheList(" 101, 202 ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !only[101] || !only[202] || len(only) != 2 {
		t.Errorf("only = %v", only)
	}

	if only, err := parseDemarcheList(""); err != nil || only != nil {
		t.Errorf("empty flag: only=%v err=%v", only, err)
	}

	if _, err := parseDemarcheList("101,abc"); err == nil {
		t.Error("expected an error for a non-numeric entry")
	}
}
