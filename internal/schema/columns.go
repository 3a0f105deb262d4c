package schema

import "dssync/internal/demarches"

// Column is one (id, type) pair of a table's column set.
type Column struct {
	ID   string
	Type ColumnType
}

// ColumnSets holds the ordered column definitions of every logical table,
// plus the two structure flags the orchestrator needs up front.
type ColumnSets struct {
	Dossiers      []Column
	Champs        []Column
	Annotations   []Column
	RepetableRows []Column

	HasRepetables bool
	HasCarte      bool
}

// DossierColumns is the fixed base column set of the dossiers table. These
// are projections of top-level case attributes and never derive from the
// form schema.
func DossierColumns() []Column {
	return []Column{
		{"dossier_id", Text},
		{"number", Int},
		{"state", Text},
		{"date_depot", DateTime},
		{"date_derniere_modification", DateTime},
		{"date_traitement", DateTime},
		{"demandeur_type", Text},
		{"demandeur_civilite", Text},
		{"demandeur_nom", Text},
		{"demandeur_prenom", Text},
		{"demandeur_email", Text},
		{"demandeur_siret", Text},
		{"entreprise_raison_sociale", Text},
		{"usager_email", Text},
		{"groupe_instructeur_id", Text},
		{"groupe_instructeur_number", Int},
		{"groupe_instructeur_label", Text},
		{"supprime_par_usager", Bool},
		{"date_suppression", DateTime},
		{"prenom_mandataire", Text},
		{"nom_mandataire", Text},
		{"depose_par_un_tiers", Bool},
		{"label_names", Text},
		{"labels_json", Text},
	}
}

// GeoColumns is the fixed fan-out of geography columns appended to the
// repeatable-rows table when any repeatable child is a map field. Appended
// exactly once.
func GeoColumns() []Column {
	return []Column{
		{"geo_id", Text},
		{"geo_source", Text},
		{"geo_description", Text},
		{"geo_type", Text},
		{"geo_coordinates", Text},
		{"geo_wkt", Text},
		{"geo_commune", Text},
		{"geo_numero", Text},
		{"geo_section", Text},
		{"geo_prefixe", Text},
		{"geo_surface", Numeric},
	}
}

func baseChampColumns() []Column {
	return []Column{
		{"dossier_number", Int},
		{"champ_id", Text},
	}
}

func baseAnnotationColumns() []Column {
	return []Column{
		{"dossier_number", Int},
		{"annotation_id", Text},
	}
}

func baseRepetableColumns() []Column {
	return []Column{
		{"dossier_number", Int},
		{"block_label", Text},
		{"block_row_index", Int},
		{"block_row_id", Text},
		{"field_name", Text},
	}
}

// BuildFromSchema walks the descriptor tree and produces the column set of
// every logical table. Presentational descriptors (and anything listed in
// suppressed) contribute nothing; repeatable-group children go to the
// repeatable-rows table, never the champs table.
func BuildFromSchema(s *demarches.Schema, suppressed map[string]bool) *ColumnSets {
	cs := &ColumnSets{
		Dossiers:      DossierColumns(),
		Champs:        baseChampColumns(),
		Annotations:   baseAnnotationColumns(),
		RepetableRows: baseRepetableColumns(),
	}

	for _, d := range s.ChampDescriptors {
		if skipDescriptor(d, suppressed) {
			continue
		}
		if d.Repetition() {
			cs.HasRepetables = true
			for _, child := range d.Children {
				if skipDescriptor(child, suppressed) {
					continue
				}
				if child.FieldType == "carte" {
					cs.HasCarte = true
				}
				appendColumn(&cs.RepetableRows, NormalizeColumnID(child.Label), TypeForDescriptor(child))
			}
			continue
		}
		if d.FieldType == "carte" {
			cs.HasCarte = true
		}
		appendColumn(&cs.Champs, NormalizeColumnID(d.Label), TypeForDescriptor(d))
	}

	for _, d := range s.AnnotationDescriptors {
		if skipDescriptor(d, suppressed) {
			continue
		}
		if d.Repetition() {
			cs.HasRepetables = true
			for _, child := range d.Children {
				if skipDescriptor(child, suppressed) {
					continue
				}
				if child.FieldType == "carte" {
					cs.HasCarte = true
				}
				appendColumn(&cs.RepetableRows, NormalizeColumnID(child.Label), TypeForDescriptor(child))
			}
			continue
		}
		appendColumn(&cs.Annotations, NormalizeColumnID(StripAnnotationPrefix(d.Label)), TypeForDescriptor(d))
	}

	if cs.HasCarte && cs.HasRepetables {
		for _, gc := range GeoColumns() {
			appendColumn(&cs.RepetableRows, gc.ID, gc.Type)
		}
	}
	return cs
}

// BuildFromSamples infers the column sets from a handful of real dossiers
// when the descriptor tree is unavailable. Rarely-populated fields may be
// missed; conflicting type inferences across samples are merged with the
// more specific type winning.
func BuildFromSamples(samples []*demarches.Dossier) *ColumnSets {
	cs := &ColumnSets{
		Dossiers:      DossierColumns(),
		Champs:        baseChampColumns(),
		Annotations:   baseAnnotationColumns(),
		RepetableRows: baseRepetableColumns(),
	}

	for _, d := range samples {
		if d == nil {
			continue
		}
		for _, c := range d.Champs {
			sampleChamp(cs, c, false)
		}
		for _, c := range d.Annotations {
			sampleChamp(cs, c, true)
		}
	}

	if cs.HasCarte && cs.HasRepetables {
		for _, gc := range GeoColumns() {
			appendColumn(&cs.RepetableRows, gc.ID, gc.Type)
		}
	}
	return cs
}

func sampleChamp(cs *ColumnSets, c demarches.Champ, annotation bool) {
	if c.Type.Presentational() {
		return
	}
	if c.Type == demarches.ChampRepetition {
		cs.HasRepetables = true
		for _, row := range c.Rows {
			for _, child := range row.Champs {
				if child.Type.Presentational() {
					continue
				}
				if child.Type == demarches.ChampCarte {
					cs.HasCarte = true
				}
				mergeColumn(&cs.RepetableRows, NormalizeColumnID(child.Label), TypeForChamp(child))
			}
		}
		return
	}
	if c.Type == demarches.ChampCarte {
		cs.HasCarte = true
	}
	if annotation {
		mergeColumn(&cs.Annotations, NormalizeColumnID(StripAnnotationPrefix(c.Label)), TypeForChamp(c))
		return
	}
	mergeColumn(&cs.Champs, NormalizeColumnID(c.Label), TypeForChamp(c))
}

func skipDescriptor(d demarches.Descriptor, suppressed map[string]bool) bool {
	return d.Presentational() || suppressed[d.ID]
}

// appendColumn adds a column unless the id is already present.
func appendColumn(cols *[]Column, id string, t ColumnType) {
	for _, c := range *cols {
		if c.ID == id {
			return
		}
	}
	*cols = append(*cols, Column{ID: id, Type: t})
}

// mergeColumn adds a column, or upgrades the type of an existing one when a
// later sample inferred something more specific.
func mergeColumn(cols *[]Column, id string, t ColumnType) {
	for i, c := range *cols {
		if c.ID == id {
			(*cols)[i].Type = MergeTypes(c.Type, t)
			return
		}
	}
	*cols = append(*cols, Column{ID: id, Type: t})
}

// TypeOf returns the type of a column id within a set, defaulting to Text.
func TypeOf(cols []Column, id string) ColumnType {
	for _, c := range cols {
		if c.ID == id {
			return c.Type
		}
	}
	return Text
}
