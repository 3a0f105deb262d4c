// Package champs implements the field value extractor: the per-kind rules
// turning one field instance into a display value and, for composite kinds,
// a structured value preserved as JSON. Extraction is pure; malformed or
// missing nested payloads degrade to empty values instead of failing.
package champs

import (
	"fmt"
	"log"
	"strings"

	"dssync/internal/demarches"
)

// Extract returns the display value and optional structured value of one
// field instance. Repeatable groups are unrolled by the flattener before this
// is called; passing one anyway yields (nil, nil).
//
// Dispatch is exhaustive over the closed champ union. A kind missing from the
// switch is a bug caught at test time (TestExtractExhaustive); at runtime it
// degrades to the raw string value with a diagnostic so a new upstream kind
// cannot corrupt a run.
func Extract(c demarches.Champ) (any, any) {
	value, structured, handled := extract(c)
	if !handled {
		log.Printf("champs: unhandled champ kind %q (label %q), using string value", c.Type, c.Label)
		return stringOrNil(c.StringValue), nil
	}
	return value, structured
}

func extract(c demarches.Champ) (value any, structured any, handled bool) {
	switch c.Type {
	case demarches.ChampHeaderSection, demarches.ChampExplication:
		return nil, nil, true

	case demarches.ChampRepetition:
		return nil, nil, true

	case demarches.ChampText, demarches.ChampTextarea, demarches.ChampEmail,
		demarches.ChampPhone, demarches.ChampIban, demarches.ChampRna,
		demarches.ChampDropDown, demarches.ChampTitreIdentite:
		return stringOrNil(c.StringValue), nil, true

	case demarches.ChampCivilite:
		return stringOrNil(c.Civilite), nil, true

	case demarches.ChampDate:
		return stringOrNil(c.Date), nil, true

	case demarches.ChampDatetime:
		return stringOrNil(c.Datetime), nil, true

	case demarches.ChampCheckbox:
		if c.Checked == nil {
			return nil, nil, true
		}
		return *c.Checked, nil, true

	case demarches.ChampYesNo:
		if c.Selected == nil {
			return nil, nil, true
		}
		return *c.Selected, nil, true

	case demarches.ChampInteger:
		return stringOrNil(c.IntegerNumber), nil, true

	case demarches.ChampDecimal:
		if c.DecimalNumber == nil {
			return nil, nil, true
		}
		return *c.DecimalNumber, nil, true

	case demarches.ChampLinkedDropDown:
		value := joinNonEmpty(" - ", c.PrimaryValue, c.SecondaryValue)
		structured := map[string]any{
			"primaryValue":   c.PrimaryValue,
			"secondaryValue": c.SecondaryValue,
		}
		return stringOrNil(value), structured, true

	case demarches.ChampMultipleDropDown:
		if len(c.Values) == 0 {
			return nil, nil, true
		}
		return strings.Join(c.Values, ", "), c.Values, true

	case demarches.ChampPieceJustificative:
		if len(c.Files) == 0 {
			return nil, nil, true
		}
		names := make([]string, len(c.Files))
		for i, f := range c.Files {
			names[i] = f.Filename
		}
		return strings.Join(names, ", "), c.Files, true

	case demarches.ChampAddress:
		if c.Address == nil {
			return stringOrNil(c.StringValue), nil, true
		}
		value := fmt.Sprintf("%s, %s %s", c.Address.StreetAddress, c.Address.PostalCode, c.Address.CityName)
		structured := any(c.Address)
		if c.Commune != nil || c.Departement != nil {
			extra := map[string]any{"address": c.Address}
			if c.Commune != nil {
				extra["commune"] = c.Commune
			}
			if c.Departement != nil {
				extra["departement"] = c.Departement
			}
			structured = extra
		}
		return value, structured, true

	case demarches.ChampCommune:
		if c.Commune == nil {
			return stringOrNil(c.StringValue), nil, true
		}
		code := c.Commune.PostalCode
		if code == "" {
			code = c.Commune.Code
		}
		value := ""
		if c.Commune.Name != "" {
			value = fmt.Sprintf("%s (%s)", c.Commune.Name, code)
		}
		structured := map[string]any{"commune": c.Commune}
		if c.Departement != nil {
			value = joinNonEmpty(", ", value, c.Departement.Name)
			structured["departement"] = c.Departement
		}
		return stringOrNil(value), structured, true

	case demarches.ChampDepartement:
		return areaRefValue(c.Departement, c.StringValue)

	case demarches.ChampRegion:
		return areaRefValue(c.Region, c.StringValue)

	case demarches.ChampPays:
		return areaRefValue(c.Pays, c.StringValue)

	case demarches.ChampEpci:
		if c.Epci == nil {
			return stringOrNil(c.StringValue), nil, true
		}
		value := nameCode(c.Epci.Name, c.Epci.Code)
		structured := map[string]any{"epci": c.Epci}
		if c.Departement != nil {
			value = joinNonEmpty(", ", value, c.Departement.Name)
			structured["departement"] = c.Departement
		}
		return stringOrNil(value), structured, true

	case demarches.ChampSiret:
		if c.Etablissement == nil {
			return stringOrNil(c.StringValue), nil, true
		}
		value := joinNonEmpty(" - ", c.Etablissement.Siret, c.Etablissement.Entreprise.RaisonSociale)
		return stringOrNil(value), c.Etablissement, true

	case demarches.ChampCarte:
		return extractCarte(c)

	case demarches.ChampDossierLink:
		if c.Dossier == nil {
			return stringOrNil(c.StringValue), nil, true
		}
		if c.Dossier.Number == 0 {
			return "Aucun dossier lié", c.Dossier, true
		}
		return fmt.Sprintf("Dossier #%d (%s)", c.Dossier.Number, c.Dossier.State), c.Dossier, true

	case demarches.ChampRNF:
		if c.RNF == nil {
			return stringOrNil(c.StringValue), nil, true
		}
		value := c.RNF.Title
		if value != "" && c.RNF.Address != nil && c.RNF.Address.CityName != "" && c.RNF.Address.PostalCode != "" {
			value = fmt.Sprintf("%s - %s (%s)", value, c.RNF.Address.CityName, c.RNF.Address.PostalCode)
		}
		return stringOrNil(value), map[string]any{"rnf": c.RNF}, true

	case demarches.ChampEngagementJuridique:
		if c.EngagementJuridique == nil {
			return stringOrNil(c.StringValue), nil, true
		}
		var parts []string
		if c.EngagementJuridique.MontantEngage != nil {
			parts = append(parts, fmt.Sprintf("Montant engagé: %v", *c.EngagementJuridique.MontantEngage))
		}
		if c.EngagementJuridique.MontantPaye != nil {
			parts = append(parts, fmt.Sprintf("Montant payé: %v", *c.EngagementJuridique.MontantPaye))
		}
		return stringOrNil(strings.Join(parts, ", ")), c.EngagementJuridique, true
	}

	return nil, nil, false
}

// NoGeoZone is the display sentinel for a map field without any geo area.
const NoGeoZone = "Aucune zone géographique définie"

// NoDescription is the per-area fallback when a geo area has no free-text
// description.
const NoDescription = "Sans description"

func extractCarte(c demarches.Champ) (any, any, bool) {
	if len(c.GeoAreas) == 0 {
		return NoGeoZone, nil, true
	}
	parts := make([]string, len(c.GeoAreas))
	for i, area := range c.GeoAreas {
		desc := area.Description
		if desc == "" {
			desc = NoDescription
		}
		parts[i] = fmt.Sprintf("Zone %d: %s - %s", i+1, area.Source, desc)
	}
	return strings.Join(parts, "; "), c.GeoAreas, true
}

func areaRefValue(ref *demarches.AreaRef, fallback string) (any, any, bool) {
	if ref == nil {
		return stringOrNil(fallback), nil, true
	}
	return stringOrNil(nameCode(ref.Name, ref.Code)), ref, true
}

// nameCode renders "Name (CODE)", degrading to whichever part is present.
func nameCode(name, code string) string {
	if name != "" && code != "" {
		return fmt.Sprintf("%s (%s)", name, code)
	}
	if name != "" {
		return name
	}
	return code
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func stringOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}
