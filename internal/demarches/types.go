// Package demarches implements the upstream GraphQL collaborator: fetching a
// démarche's schema descriptors, its dossier list, and individual dossier
// records, with permission-scoped errors filtered from hard failures.
//
// The champ type system of the API is open-ended on the wire (a __typename
// discriminator per field). It is modeled here as a closed tagged union: one
// ChampType constant per kind plus a single Champ struct whose kind-specific
// payload fields are only populated for the matching kind. Extraction code
// switches exhaustively over AllChampTypes.
package demarches

import "encoding/json"

// ChampType is the kind tag of a field instance, mirroring the GraphQL
// __typename discriminator.
type ChampType string

const (
	ChampText                ChampType = "TextChamp"
	ChampTextarea            ChampType = "TextareaChamp"
	ChampEmail               ChampType = "EmailChamp"
	ChampPhone               ChampType = "PhoneChamp"
	ChampIban                ChampType = "IbanChamp"
	ChampRna                 ChampType = "RnaChamp"
	ChampCivilite            ChampType = "CiviliteChamp"
	ChampDate                ChampType = "DateChamp"
	ChampDatetime            ChampType = "DatetimeChamp"
	ChampCheckbox            ChampType = "CheckboxChamp"
	ChampYesNo               ChampType = "YesNoChamp"
	ChampInteger             ChampType = "IntegerNumberChamp"
	ChampDecimal             ChampType = "DecimalNumberChamp"
	ChampDropDown            ChampType = "DropDownListChamp"
	ChampMultipleDropDown    ChampType = "MultipleDropDownListChamp"
	ChampLinkedDropDown      ChampType = "LinkedDropDownListChamp"
	ChampPieceJustificative  ChampType = "PieceJustificativeChamp"
	ChampTitreIdentite       ChampType = "TitreIdentiteChamp"
	ChampAddress             ChampType = "AddressChamp"
	ChampCommune             ChampType = "CommuneChamp"
	ChampDepartement         ChampType = "DepartementChamp"
	ChampRegion              ChampType = "RegionChamp"
	ChampPays                ChampType = "PaysChamp"
	ChampEpci                ChampType = "EpciChamp"
	ChampSiret               ChampType = "SiretChamp"
	ChampCarte               ChampType = "CarteChamp"
	ChampDossierLink         ChampType = "DossierLinkChamp"
	ChampRNF                 ChampType = "RNFChamp"
	ChampEngagementJuridique ChampType = "EngagementJuridiqueChamp"
	ChampRepetition          ChampType = "RepetitionChamp"
	ChampHeaderSection       ChampType = "HeaderSectionChamp"
	ChampExplication         ChampType = "ExplicationChamp"
)

// AllChampTypes lists every kind of the closed union. Extraction tests use it
// to verify exhaustive dispatch: a newly-introduced kind must be added here
// and handled explicitly, never silently fall through to the text rule.
var AllChampTypes = []ChampType{
	ChampText, ChampTextarea, ChampEmail, ChampPhone, ChampIban, ChampRna,
	ChampCivilite, ChampDate, ChampDatetime, ChampCheckbox, ChampYesNo,
	ChampInteger, ChampDecimal, ChampDropDown, ChampMultipleDropDown,
	ChampLinkedDropDown, ChampPieceJustificative, ChampTitreIdentite,
	ChampAddress, ChampCommune, ChampDepartement, ChampRegion, ChampPays,
	ChampEpci, ChampSiret, ChampCarte, ChampDossierLink, ChampRNF,
	ChampEngagementJuridique, ChampRepetition, ChampHeaderSection,
	ChampExplication,
}

// Presentational reports whether the kind carries no data (section headers
// and explanation blocks). Presentational fields are excluded from every
// column set and every extracted value.
func (t ChampType) Presentational() bool {
	return t == ChampHeaderSection || t == ChampExplication
}

// Champ is one value-bearing occurrence of a field on one dossier. Only the
// payload fields matching Type are populated; the rest stay zero.
type Champ struct {
	Type              ChampType `json:"__typename"`
	ID                string    `json:"id"`
	ChampDescriptorID string    `json:"champDescriptorId"`
	Label             string    `json:"label"`
	StringValue       string    `json:"stringValue"`
	UpdatedAt         string    `json:"updatedAt"`
	Prefilled         bool      `json:"prefilled"`

	// Kind-specific payloads.
	Date                string               `json:"date,omitempty"`
	Datetime            string               `json:"datetime,omitempty"`
	Checked             *bool                `json:"checked,omitempty"`
	Selected            *bool                `json:"selected,omitempty"`
	IntegerNumber       string               `json:"integerNumber,omitempty"`
	DecimalNumber       *float64             `json:"decimalNumber,omitempty"`
	Civilite            string               `json:"civilite,omitempty"`
	PrimaryValue        string               `json:"primaryValue,omitempty"`
	SecondaryValue      string               `json:"secondaryValue,omitempty"`
	Values              []string             `json:"values,omitempty"`
	Files               []File               `json:"files,omitempty"`
	Address             *Address             `json:"address,omitempty"`
	Commune             *AreaRef             `json:"commune,omitempty"`
	Departement         *AreaRef             `json:"departement,omitempty"`
	Region              *AreaRef             `json:"region,omitempty"`
	Pays                *AreaRef             `json:"pays,omitempty"`
	Epci                *AreaRef             `json:"epci,omitempty"`
	Etablissement       *Etablissement       `json:"etablissement,omitempty"`
	GeoAreas            []GeoArea            `json:"geoAreas,omitempty"`
	Dossier             *LinkedDossier       `json:"dossier,omitempty"`
	RNF                 *RNF                 `json:"rnf,omitempty"`
	EngagementJuridique *EngagementJuridique `json:"engagementJuridique,omitempty"`
	Rows                []RepetitionRow      `json:"rows,omitempty"`
}

// RepetitionRow is one row of a repeatable group, holding its own child field
// instances. Nesting stops here: a row never contains another repeatable group.
type RepetitionRow struct {
	ID     string  `json:"id"`
	Champs []Champ `json:"champs"`
}

// File is one attachment of a piece-justificative field.
type File struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	ByteSize    string `json:"byteSizeBigInt"`
	URL         string `json:"url"`
}

// Address is the structured payload of an address field.
type Address struct {
	Label          string `json:"label"`
	Type           string `json:"type"`
	StreetAddress  string `json:"streetAddress"`
	StreetNumber   string `json:"streetNumber"`
	StreetName     string `json:"streetName"`
	PostalCode     string `json:"postalCode"`
	CityName       string `json:"cityName"`
	CityCode       string `json:"cityCode"`
	DepartmentName string `json:"departmentName"`
	DepartmentCode string `json:"departmentCode"`
	RegionName     string `json:"regionName"`
	RegionCode     string `json:"regionCode"`
}

// AreaRef is an administrative-geography reference (commune, département,
// région, pays, EPCI). PostalCode is only set for communes.
type AreaRef struct {
	Name       string `json:"name"`
	Code       string `json:"code"`
	PostalCode string `json:"postalCode,omitempty"`
}

// Etablissement is the structured payload of a SIRET field.
type Etablissement struct {
	Siret      string     `json:"siret"`
	Address    *Address   `json:"address,omitempty"`
	Entreprise Entreprise `json:"entreprise"`
}

// Entreprise carries company attributes nested under an établissement.
type Entreprise struct {
	Siren         string `json:"siren"`
	RaisonSociale string `json:"raisonSociale"`
	NomCommercial string `json:"nomCommercial"`
}

// LinkedDossier is the target of a dossier-link field.
type LinkedDossier struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	State  string `json:"state"`
}

// RNF is the structured payload of an RNF (fondation) field.
type RNF struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Address *Address `json:"address,omitempty"`
}

// EngagementJuridique is the structured payload of a legal-engagement field.
type EngagementJuridique struct {
	MontantEngage *float64 `json:"montantEngage"`
	MontantPaye   *float64 `json:"montantPaye"`
}

// GeoArea is one geometry attached to a map field. The cadastral attributes
// (Commune through Surface) are only set when the area is a parcelle.
type GeoArea struct {
	ID          string   `json:"id"`
	Source      string   `json:"source"`
	Description string   `json:"description"`
	Geometry    Geometry `json:"geometry"`

	Commune string   `json:"commune,omitempty"`
	Numero  string   `json:"numero,omitempty"`
	Section string   `json:"section,omitempty"`
	Prefixe string   `json:"prefixe,omitempty"`
	Surface *float64 `json:"surface,omitempty"`
}

// Geometry is a GeoJSON geometry. Coordinates stay raw; their shape depends
// on Type and is decoded by the geo package when building WKT.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// DemandeurType tags the applicant variant of a dossier.
type DemandeurType string

const (
	DemandeurPersonnePhysique         DemandeurType = "PersonnePhysique"
	DemandeurPersonneMorale           DemandeurType = "PersonneMorale"
	DemandeurPersonneMoraleIncomplete DemandeurType = "PersonneMoraleIncomplete"
)

// Demandeur is the applicant tagged union. Exactly one shape is populated per
// dossier, selected by Type: the individual-person fields (Civilite, Nom,
// Prenom, Email) or the legal-entity fields (Siret onward).
type Demandeur struct {
	Type DemandeurType `json:"__typename"`

	// PersonnePhysique
	Civilite string `json:"civilite,omitempty"`
	Nom      string `json:"nom,omitempty"`
	Prenom   string `json:"prenom,omitempty"`
	Email    string `json:"email,omitempty"`

	// PersonneMorale / PersonneMoraleIncomplete
	Siret       string      `json:"siret,omitempty"`
	SiegeSocial *bool       `json:"siegeSocial,omitempty"`
	Naf         string      `json:"naf,omitempty"`
	LibelleNaf  string      `json:"libelleNaf,omitempty"`
	Entreprise  *Entreprise `json:"entreprise,omitempty"`
}

// GroupeInstructeur identifies the instructor group a dossier is assigned to.
type GroupeInstructeur struct {
	ID     string `json:"id"`
	Number int    `json:"number"`
	Label  string `json:"label"`
}

// Label is one instance label attached to a dossier.
type Label struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Usager is the account that deposited the dossier.
type Usager struct {
	Email string `json:"email"`
}

// Dossier is one submitted case. Read-only from this system's perspective;
// re-read on every sync pass.
type Dossier struct {
	ID                       string             `json:"id"`
	Number                   int                `json:"number"`
	State                    string             `json:"state"`
	DateDepot                string             `json:"dateDepot"`
	DateDerniereModification string             `json:"dateDerniereModification"`
	DateTraitement           string             `json:"dateTraitement"`
	DateSuppressionParUsager string             `json:"dateSuppressionParUsager"`
	Usager                   *Usager            `json:"usager,omitempty"`
	PrenomMandataire         string             `json:"prenomMandataire"`
	NomMandataire            string             `json:"nomMandataire"`
	DeposeParUnTiers         bool               `json:"deposeParUnTiers"`
	Demandeur                *Demandeur         `json:"demandeur,omitempty"`
	GroupeInstructeur        *GroupeInstructeur `json:"groupeInstructeur,omitempty"`
	Labels                   []Label            `json:"labels,omitempty"`
	Champs                   []Champ            `json:"champs"`
	Annotations              []Champ            `json:"annotations"`
}

// DossierSummary is the slim shape returned by the dossier list query.
type DossierSummary struct {
	ID                       string             `json:"id"`
	Number                   int                `json:"number"`
	State                    string             `json:"state"`
	DateDepot                string             `json:"dateDepot"`
	DateDerniereModification string             `json:"dateDerniereModification"`
	GroupeInstructeur        *GroupeInstructeur `json:"groupeInstructeur,omitempty"`
}

// Descriptor describes one field type at the schema level. Children is only
// populated for repeatable-group descriptors and recursion stops at one level.
type Descriptor struct {
	Type        string       `json:"__typename"`
	ID          string       `json:"id"`
	FieldType   string       `json:"type"`
	Label       string       `json:"label"`
	Description string       `json:"description"`
	Required    bool         `json:"required"`
	Options     []string     `json:"options,omitempty"`
	Children    []Descriptor `json:"champDescriptors,omitempty"`
}

// Presentational reports whether the descriptor describes a header/explanation
// field. Mirrors ChampType.Presentational at the schema level.
func (d Descriptor) Presentational() bool {
	switch d.Type {
	case "HeaderSectionChampDescriptor", "ExplicationChampDescriptor":
		return true
	}
	switch d.FieldType {
	case "header_section", "explication":
		return true
	}
	return false
}

// Repetition reports whether the descriptor describes a repeatable group.
func (d Descriptor) Repetition() bool {
	return d.Type == "RepetitionChampDescriptor" || d.FieldType == "repetition"
}

// Schema is a démarche's field descriptor tree.
type Schema struct {
	Number                int          `json:"number"`
	Title                 string       `json:"title"`
	ChampDescriptors      []Descriptor `json:"champDescriptors"`
	AnnotationDescriptors []Descriptor `json:"annotationDescriptors"`
}

// SuppressedIDs walks the descriptor tree, one level into repeatable groups
// included, and collects the ids of presentational descriptors. Values for
// those ids must never reach a column set or a flattened record.
func (s *Schema) SuppressedIDs() map[string]bool {
	ids := map[string]bool{}
	var walk func(ds []Descriptor)
	walk = func(ds []Descriptor) {
		for _, d := range ds {
			if d.Presentational() {
				ids[d.ID] = true
			}
			if d.Repetition() {
				walk(d.Children)
			}
		}
	}
	walk(s.ChampDescriptors)
	walk(s.AnnotationDescriptors)
	return ids
}
