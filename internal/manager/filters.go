package manager

import (
	"log"
	"strings"
	"time"

	"dssync/internal/config"
	"dssync/internal/demarches"
)

// applyFilters drops summaries the run should not process. The start date is
// pushed down to the API; the remaining criteria only exist client-side.
func applyFilters(summaries []demarches.DossierSummary, f config.Filters) []demarches.DossierSummary {
	fin, useFin := parseDay(f.DateDepotFin)
	groups := toSet(f.GroupesInstructeurs)
	states := toSet(f.StatutsDossiers)

	var kept []demarches.DossierSummary
	for _, s := range summaries {
		if useFin {
			depot, ok := parseDay(s.DateDepot)
			if ok && depot.After(fin) {
				continue
			}
		}
		if len(groups) > 0 {
			if s.GroupeInstructeur == nil || !groups[strings.ToLower(s.GroupeInstructeur.Label)] {
				continue
			}
		}
		if len(states) > 0 && !states[strings.ToLower(s.State)] {
			continue
		}
		kept = append(kept, s)
	}
	return kept
}

// parseDay reads a date from either a bare day or a full timestamp,
// comparing on the day only.
func parseDay(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	if len(v) > 10 {
		v = v[:10]
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		log.Printf("manager: unparseable date %q in filter, ignoring", v)
		return time.Time{}, false
	}
	return t, true
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = true
	}
	return set
}
