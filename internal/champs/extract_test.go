package champs

import (
	"testing"

	"dssync/internal/demarches"
)

func boolPtr(b bool) *bool        { return &b }
func floatPtr(f float64) *float64 { return &f }

// TestExtractExhaustive verifies every declared champ kind is handled by the
// extraction switch, so a kind added to the union cannot silently fall
// through to the string fallback.
func TestExtractExhaustive(t *testing.T) {
	for _, kind := range demarches.AllChampTypes {
		_, _, handled := extract(demarches.Champ{Type: kind})
		if !handled {
			t.Errorf("champ kind %q not handled by extract", kind)
		}
	}
}

func TestExtractUnknownKindFallsBack(t *testing.T) {
	value, structured := Extract(demarches.Champ{Type: "NouveauChamp", StringValue: "raw"})
	if value != "raw" {
		t.Errorf("value = %v, want raw string fallback", value)
	}
	if structured != nil {
		t.Errorf("structured = %v, want nil", structured)
	}
}

func TestExtractSimpleKinds(t *testing.T) {
	tests := []struct {
		name  string
		champ demarches.Champ
		want  any
	}{
		{"text", demarches.Champ{Type: demarches.ChampText, StringValue: "hello"}, "hello"},
		{"empty text is nil", demarches.Champ{Type: demarches.ChampText}, nil},
		{"header section", demarches.Champ{Type: demarches.ChampHeaderSection, StringValue: "Section"}, nil},
		{"explication", demarches.Champ{Type: demarches.ChampExplication, StringValue: "note"}, nil},
		{"repetition yields nothing", demarches.Champ{Type: demarches.ChampRepetition, StringValue: "x"}, nil},
		{"date", demarches.Champ{Type: demarches.ChampDate, Date: "2024-03-01"}, "2024-03-01"},
		{"datetime", demarches.Champ{Type: demarches.ChampDatetime, Datetime: "2024-03-01T10:00:00Z"}, "2024-03-01T10:00:00Z"},
		{"checkbox true", demarches.Champ{Type: demarches.ChampCheckbox, Checked: boolPtr(true)}, true},
		{"checkbox absent", demarches.Champ{Type: demarches.ChampCheckbox}, nil},
		{"yes_no false", demarches.Champ{Type: demarches.ChampYesNo, Selected: boolPtr(false)}, false},
		{"integer keeps string form", demarches.Champ{Type: demarches.ChampInteger, IntegerNumber: "42"}, "42"},
		{"decimal", demarches.Champ{Type: demarches.ChampDecimal, DecimalNumber: floatPtr(3.5)}, 3.5},
		{"civilite", demarches.Champ{Type: demarches.ChampCivilite, Civilite: "Mme"}, "Mme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Extract(tt.champ)
			if got != tt.want {
				t.Errorf("Extract() value = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractLinkedDropDown(t *testing.T) {
	value, structured := Extract(demarches.Champ{
		Type:           demarches.ChampLinkedDropDown,
		PrimaryValue:   "Région",
		SecondaryValue: "Commune",
	})
	if value != "Région - Commune" {
		t.Errorf("value = %v", value)
	}
	m, ok := structured.(map[string]any)
	if !ok || m["primaryValue"] != "Région" {
		t.Errorf("structured = %v", structured)
	}
}

func TestExtractMultipleDropDown(t *testing.T) {
	value, structured := Extract(demarches.Champ{
		Type:   demarches.ChampMultipleDropDown,
		Values: []string{"a", "b"},
	})
	if value != "a, b" {
		t.Errorf("value = %v", value)
	}
	if vs, ok := structured.([]string); !ok || len(vs) != 2 {
		t.Errorf("structured = %v", structured)
	}

	value, structured = Extract(demarches.Champ{Type: demarches.ChampMultipleDropDown})
	if value != nil || structured != nil {
		t.Errorf("empty selection: got %v, %v", value, structured)
	}
}

func TestExtractPieceJustificative(t *testing.T) {
	value, structured := Extract(demarches.Champ{
		Type: demarches.ChampPieceJustificative,
		Files: []demarches.File{
			{Filename: "a.pdf", URL: "https://x/a"},
			{Filename: "b.png", URL: "https://x/b"},
		},
	})
	if value != "a.pdf, b.png" {
		t.Errorf("value = %v", value)
	}
	if fs, ok := structured.([]demarches.File); !ok || len(fs) != 2 {
		t.Errorf("structured = %v", structured)
	}
}

func TestExtractAddress(t *testing.T) {
	value, _ := Extract(demarches.Champ{
		Type: demarches.ChampAddress,
		Address: &demarches.Address{
			StreetAddress: "1 rue de la Paix",
			PostalCode:    "75002",
			CityName:      "Paris",
		},
	})
	if value != "1 rue de la Paix, 75002 Paris" {
		t.Errorf("value = %v", value)
	}
}

func TestExtractCommune(t *testing.T) {
	value, _ := Extract(demarches.Champ{
		Type:        demarches.ChampCommune,
		Commune:     &demarches.AreaRef{Name: "Lyon", PostalCode: "69001"},
		Departement: &demarches.AreaRef{Name: "Rhône", Code: "69"},
	})
	if value != "Lyon (69001), Rhône" {
		t.Errorf("value = %v", value)
	}
}

func TestExtractAreaRefs(t *testing.T) {
	value, _ := Extract(demarches.Champ{
		Type:   demarches.ChampRegion,
		Region: &demarches.AreaRef{Name: "Bretagne", Code: "53"},
	})
	if value != "Bretagne (53)" {
		t.Errorf("region value = %v", value)
	}

	value, _ = Extract(demarches.Champ{
		Type: demarches.ChampPays,
		Pays: &demarches.AreaRef{Name: "France"},
	})
	if value != "France" {
		t.Errorf("pays value = %v", value)
	}

	value, _ = Extract(demarches.Champ{Type: demarches.ChampDepartement, StringValue: "fallback"})
	if value != "fallback" {
		t.Errorf("departement fallback value = %v", value)
	}
}

func TestExtractSiret(t *testing.T) {
	value, structured := Extract(demarches.Champ{
		Type: demarches.ChampSiret,
		Etablissement: &demarches.Etablissement{
			Siret:      "13002526500013",
			Entreprise: demarches.Entreprise{RaisonSociale: "DINUM"},
		},
	})
	if value != "13002526500013 - DINUM" {
		t.Errorf("value = %v", value)
	}
	if _, ok := structured.(*demarches.Etablissement); !ok {
		t.Errorf("structured = %T", structured)
	}
}

func TestExtractCarte(t *testing.T) {
	value, _ := Extract(demarches.Champ{Type: demarches.ChampCarte})
	if value != NoGeoZone {
		t.Errorf("empty carte value = %v", value)
	}

	value, structured := Extract(demarches.Champ{
		Type: demarches.ChampCarte,
		GeoAreas: []demarches.GeoArea{
			{Source: "selection_utilisateur", Description: "parcelle nord"},
			{Source: "cadastre"},
		},
	})
	want := "Zone 1: selection_utilisateur - parcelle nord; Zone 2: cadastre - " + NoDescription
	if value != want {
		t.Errorf("value = %v, want %v", value, want)
	}
	if areas, ok := structured.([]demarches.GeoArea); !ok || len(areas) != 2 {
		t.Errorf("structured = %v", structured)
	}
}

func TestExtractDossierLink(t *testing.T) {
	value, _ := Extract(demarches.Champ{
		Type:    demarches.ChampDossierLink,
		Dossier: &demarches.LinkedDossier{Number: 123, State: "accepte"},
	})
	if value != "Dossier #123 (accepte)" {
		t.Errorf("value = %v", value)
	}

	value, _ = Extract(demarches.Champ{
		Type:    demarches.ChampDossierLink,
		Dossier: &demarches.LinkedDossier{},
	})
	if value != "Aucun dossier lié" {
		t.Errorf("value = %v", value)
	}
}

func TestExtractEngagementJuridique(t *testing.T) {
	value, _ := Extract(demarches.Champ{
		Type: demarches.ChampEngagementJuridique,
		EngagementJuridique: &demarches.EngagementJuridique{
			MontantEngage: floatPtr(1000),
			MontantPaye:   floatPtr(250),
		},
	})
	if value != "Montant engagé: 1000, Montant payé: 250" {
		t.Errorf("value = %v", value)
	}
}
