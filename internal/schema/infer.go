package schema

import (
	"time"

	"dssync/internal/demarches"
)

// ColumnType is the target store's column type vocabulary.
type ColumnType string

const (
	Text     ColumnType = "Text"
	Int      ColumnType = "Int"
	Numeric  ColumnType = "Numeric"
	Bool     ColumnType = "Bool"
	DateTime ColumnType = "DateTime"
)

// descriptorTypes maps a descriptor's declared field type to a column type.
// The mapping is total: anything unknown is Text, so inference can never fail.
var descriptorTypes = map[string]ColumnType{
	"date":           DateTime,
	"datetime":       DateTime,
	"number":         Numeric,
	"decimal_number": Numeric,
	"integer_number": Int,
	"checkbox":       Bool,
	"yes_no":         Bool,
}

// TypeForDescriptor infers the column type of one descriptor.
func TypeForDescriptor(d demarches.Descriptor) ColumnType {
	if t, ok := descriptorTypes[d.FieldType]; ok {
		return t
	}
	return Text
}

// champTypes mirrors descriptorTypes for observed field instances, used on
// the sampling fallback path when no descriptor tree is available.
var champTypes = map[demarches.ChampType]ColumnType{
	demarches.ChampDate:     DateTime,
	demarches.ChampDatetime: DateTime,
	demarches.ChampDecimal:  Numeric,
	demarches.ChampInteger:  Int,
	demarches.ChampCheckbox: Bool,
	demarches.ChampYesNo:    Bool,
}

// TypeForChamp infers the column type of one observed field instance.
func TypeForChamp(c demarches.Champ) ColumnType {
	if t, ok := champTypes[c.Type]; ok {
		return t
	}
	return Text
}

// specificity orders types from weakest to most specific, for merging
// inferences across schema samples.
var specificity = map[ColumnType]int{
	Text:     0,
	Int:      1,
	Bool:     2,
	Numeric:  2,
	DateTime: 2,
}

// MergeTypes resolves a column id observed with conflicting inferred types
// across samples: the more specific type wins regardless of observation
// order. Text is the weakest, and Int is upgraded to Numeric or DateTime when
// a later sample disagrees.
func MergeTypes(a, b ColumnType) ColumnType {
	if a == b {
		return a
	}
	if specificity[b] > specificity[a] {
		return b
	}
	return a
}

// TypeForValue infers a column type from an observed cell value, for columns
// first seen in a record rather than in any schema.
func TypeForValue(v any) ColumnType {
	switch x := v.(type) {
	case bool:
		return Bool
	case int, int64:
		return Int
	case float32, float64:
		return Numeric
	case string:
		if _, err := time.Parse("2006-01-02T15:04:05Z", x); err == nil {
			return DateTime
		}
	}
	return Text
}
