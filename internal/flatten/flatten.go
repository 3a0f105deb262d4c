// Package flatten turns fetched dossiers into per-table records keyed by
// normalized column id. One dossier yields at most one record in each of the
// case, field and annotation tables, plus zero or more repeatable-group
// rows. Flattening is pure and idempotent: the same dossier always produces
// the same records.
package flatten

import (
	"fmt"
	"strings"

	"dssync/internal/champs"
	"dssync/internal/demarches"
	"dssync/internal/schema"
)

// Record is one flattened row, keyed by column id. Values are already
// coerced to their column type; nil means an explicit null.
type Record map[string]any

// Flattener holds the per-démarche shape needed to flatten dossiers: the
// resolved column sets and the ids of presentational descriptors whose
// values must be dropped.
type Flattener struct {
	Columns    *schema.ColumnSets
	Suppressed map[string]bool
}

// New returns a Flattener over the given column sets.
func New(cols *schema.ColumnSets, suppressed map[string]bool) *Flattener {
	if suppressed == nil {
		suppressed = map[string]bool{}
	}
	return &Flattener{Columns: cols, Suppressed: suppressed}
}

// DossierRecord projects the top-level case attributes of one dossier.
func (f *Flattener) DossierRecord(d *demarches.Dossier) Record {
	rec := Record{
		"dossier_id":                 d.ID,
		"number":                     d.Number,
		"state":                      d.State,
		"date_depot":                 champs.FormatValue(d.DateDepot, schema.DateTime),
		"date_derniere_modification": champs.FormatValue(d.DateDerniereModification, schema.DateTime),
		"date_traitement":            champs.FormatValue(d.DateTraitement, schema.DateTime),
		"supprime_par_usager":        d.DateSuppressionParUsager != "",
		"date_suppression":           champs.FormatValue(d.DateSuppressionParUsager, schema.DateTime),
		"prenom_mandataire":          d.PrenomMandataire,
		"nom_mandataire":             d.NomMandataire,
		"depose_par_un_tiers":        d.DeposeParUnTiers,
	}

	if d.Usager != nil {
		rec["usager_email"] = d.Usager.Email
	}

	if dem := d.Demandeur; dem != nil {
		rec["demandeur_type"] = string(dem.Type)
		switch dem.Type {
		case demarches.DemandeurPersonnePhysique:
			rec["demandeur_civilite"] = dem.Civilite
			rec["demandeur_nom"] = dem.Nom
			rec["demandeur_prenom"] = dem.Prenom
			rec["demandeur_email"] = dem.Email
		case demarches.DemandeurPersonneMorale, demarches.DemandeurPersonneMoraleIncomplete:
			rec["demandeur_siret"] = dem.Siret
			if dem.Entreprise != nil {
				rec["entreprise_raison_sociale"] = dem.Entreprise.RaisonSociale
			}
		}
	}

	if gi := d.GroupeInstructeur; gi != nil {
		rec["groupe_instructeur_id"] = demarches.NumericID(gi.ID)
		rec["groupe_instructeur_number"] = gi.Number
		rec["groupe_instructeur_label"] = gi.Label
	}

	if len(d.Labels) > 0 {
		names := make([]string, len(d.Labels))
		for i, l := range d.Labels {
			names[i] = l.Name
		}
		rec["label_names"] = strings.Join(names, ", ")
		rec["labels_json"] = champs.FormatComplexJSON(d.Labels)
	}

	return rec
}

// ChampRecord flattens the form fields of one dossier into one wide record.
// Repeatable groups are excluded here and handled by RepeatableRows.
func (f *Flattener) ChampRecord(d *demarches.Dossier) Record {
	return f.fieldRecord(d, d.Champs, false)
}

// AnnotationRecord flattens the instructor annotations of one dossier.
func (f *Flattener) AnnotationRecord(d *demarches.Dossier) Record {
	return f.fieldRecord(d, d.Annotations, true)
}

func (f *Flattener) fieldRecord(d *demarches.Dossier, fields []demarches.Champ, annotation bool) Record {
	rec := Record{"dossier_number": d.Number}
	cols := f.Columns.Champs
	if annotation {
		cols = f.Columns.Annotations
	}

	var ids []string
	for _, c := range fields {
		if f.skip(c) || c.Type == demarches.ChampRepetition {
			continue
		}
		ids = append(ids, demarches.NumericID(c.ID))

		label := c.Label
		if annotation {
			label = schema.StripAnnotationPrefix(label)
		}
		col := schema.NormalizeColumnID(label)
		rec[col] = f.cellValue(c, schema.TypeOf(cols, col))
	}

	idCol := "champ_id"
	if annotation {
		idCol = "annotation_id"
	}
	rec[idCol] = strings.Join(ids, "_")
	return rec
}

// cellValue extracts one field and coerces it to the column type. When the
// field only has a structured payload, the payload is serialized instead.
func (f *Flattener) cellValue(c demarches.Champ, t schema.ColumnType) any {
	value, structured := champs.Extract(c)
	if value == nil && structured != nil {
		return champs.FormatComplexJSON(structured)
	}
	return champs.FormatValue(value, t)
}

func (f *Flattener) skip(c demarches.Champ) bool {
	if c.Type.Presentational() {
		return true
	}
	if c.ChampDescriptorID != "" && f.Suppressed[c.ChampDescriptorID] {
		return true
	}
	return false
}

// DossierKey is the business key of a case record.
func DossierKey(rec Record) string {
	return fmt.Sprint(rec["number"])
}

// CaseFieldKey is the business key of a field or annotation record; both
// tables hold one record per dossier.
func CaseFieldKey(rec Record) string {
	return fmt.Sprint(rec["dossier_number"])
}
