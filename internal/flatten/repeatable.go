package flatten

import (
	"fmt"
	"log"
	"strings"

	"dssync/internal/champs"
	"dssync/internal/demarches"
	"dssync/internal/geo"
	"dssync/internal/schema"
)

// RepeatableRows unrolls every repeatable group of one dossier into child
// rows. A row whose map fields carry N geo areas fans out into N rows, one
// per area, with the area's attributes in the geo columns; a row without geo
// areas stays single.
func (f *Flattener) RepeatableRows(d *demarches.Dossier) []Record {
	var out []Record
	for _, c := range d.Champs {
		out = append(out, f.repetitionRows(d, c)...)
	}
	for _, c := range d.Annotations {
		out = append(out, f.repetitionRows(d, c)...)
	}
	return out
}

func (f *Flattener) repetitionRows(d *demarches.Dossier, c demarches.Champ) []Record {
	if c.Type != demarches.ChampRepetition || f.skip(c) {
		return nil
	}

	var out []Record
	for i, row := range c.Rows {
		base := Record{
			"dossier_number":  d.Number,
			"block_label":     c.Label,
			"block_row_index": i + 1,
			"block_row_id":    demarches.NumericID(row.ID),
		}

		var areas []demarches.GeoArea
		carteLabel := ""
		for _, child := range row.Champs {
			if f.skip(child) {
				continue
			}
			if child.Type == demarches.ChampCarte {
				carteLabel = child.Label
				areas = append(areas, child.GeoAreas...)
			}
			col := schema.NormalizeColumnID(child.Label)
			base[col] = f.cellValue(child, schema.TypeOf(f.Columns.RepetableRows, col))
		}

		if len(areas) == 0 || !f.Columns.HasCarte {
			out = append(out, base)
			continue
		}

		rowID := base["block_row_id"].(string)
		for k, area := range areas {
			rec := Record{}
			for col, v := range base {
				rec[col] = v
			}
			rec["block_row_id"] = fmt.Sprintf("%s_geo%d", rowID, k+1)
			rec["field_name"] = carteLabel
			f.geoCells(rec, d.Number, area)
			out = append(out, rec)
		}
	}
	return out
}

// geoCells fills the fixed geo columns from one geo area. An unsupported or
// malformed geometry leaves geo_wkt null with a diagnostic; the row is still
// written.
func (f *Flattener) geoCells(rec Record, dossierNumber int, area demarches.GeoArea) {
	rec["geo_id"] = demarches.NumericID(area.ID)
	rec["geo_source"] = area.Source
	rec["geo_description"] = stringOr(area.Description, champs.NoDescription)
	rec["geo_type"] = area.Geometry.Type
	rec["geo_coordinates"] = champs.FormatComplexJSON(area.Geometry)

	wkt, err := geo.AreaWKT(area.Geometry)
	if err != nil {
		log.Printf("flatten: dossier %d geo area %s: no WKT for geometry %q: %v",
			dossierNumber, area.ID, area.Geometry.Type, err)
		rec["geo_wkt"] = nil
	} else {
		rec["geo_wkt"] = wkt
	}

	rec["geo_commune"] = area.Commune
	rec["geo_numero"] = area.Numero
	rec["geo_section"] = area.Section
	rec["geo_prefixe"] = area.Prefixe
	if area.Surface != nil {
		rec["geo_surface"] = *area.Surface
	} else {
		rec["geo_surface"] = nil
	}
}

func stringOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// RepeatableKey is the canonical business key of a repeatable row:
// dossier number, normalized block label and row id (geo suffix included),
// joined and lowercased. Stable across runs because every part is stable.
func RepeatableKey(rec Record) string {
	return strings.ToLower(fmt.Sprintf("%v_%s_%v",
		rec["dossier_number"],
		schema.NormalizeColumnID(fmt.Sprint(rec["block_label"])),
		rec["block_row_id"]))
}

// LegacyRepeatableKeys lists the historical key spellings under which a row
// may exist in documents written by earlier versions. Read-time only; new
// rows are always written under the canonical key.
func LegacyRepeatableKeys(rec Record) []string {
	number := fmt.Sprint(rec["dossier_number"])
	label := strings.ToLower(fmt.Sprint(rec["block_label"]))
	rowID := strings.ToLower(fmt.Sprint(rec["block_row_id"]))

	spaced := strings.ReplaceAll(label, " ", "_")
	stripped := stripNonAlnum(spaced)

	keys := []string{
		fmt.Sprintf("%s_%s_%s", number, spaced, rowID),
		fmt.Sprintf("%s_%s_%s", number, stripped, rowID),
		fmt.Sprintf("%s_%s_index_%v", number, spaced, rec["block_row_index"]),
		rowID,
	}

	if field, ok := rec["field_name"].(string); ok && field != "" {
		if geoID, ok := rec["geo_id"].(string); ok && geoID != "" {
			fieldKey := strings.ReplaceAll(strings.ToLower(field), " ", "_")
			keys = append(keys, fmt.Sprintf("%s_%s_%s_%s", number, spaced, fieldKey, geoID))
		}
	}
	return keys
}

func stripNonAlnum(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
