package champs

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dssync/internal/schema"
)

// maxTextLength caps Text cell values; longer strings are truncated with an
// ellipsis marker.
const maxTextLength = 1000

// maxJSONLength caps serialized structured values.
const maxJSONLength = 10000

// dateTimeLayouts are the timestamp shapes observed in API payloads,
// normalized to RFC 3339 UTC on write.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FormatValue coerces a raw extracted value to the shape expected by a
// column of the given type. Unparseable numerics become nil rather than
// corrupting the column; unparseable timestamps pass through as-is.
func FormatValue(value any, t schema.ColumnType) any {
	if value == nil {
		return nil
	}

	switch t {
	case schema.DateTime:
		s, ok := value.(string)
		if !ok || s == "" {
			return value
		}
		for _, layout := range dateTimeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC().Format("2006-01-02T15:04:05Z")
			}
		}
		return s

	case schema.Text:
		s := toString(value)
		if len(s) > maxTextLength {
			return s[:maxTextLength] + "..."
		}
		return s

	case schema.Int:
		f, ok := toFloat(value)
		if !ok {
			return nil
		}
		return int64(f)

	case schema.Numeric:
		f, ok := toFloat(value)
		if !ok {
			return nil
		}
		return f

	case schema.Bool:
		switch v := value.(type) {
		case bool:
			return v
		case string:
			switch strings.ToLower(v) {
			case "true", "1", "yes", "oui", "vrai":
				return true
			}
			return false
		default:
			return value != nil
		}
	}

	return value
}

// FormatComplexJSON serializes a structured value for storage in a Text
// column, truncating oversized payloads. Serialization failures degrade to
// the value's string form.
func FormatComplexJSON(v any) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	var s string
	if err != nil {
		s = fmt.Sprint(v)
	} else {
		s = string(b)
	}
	if len(s) > maxJSONLength {
		return s[:maxJSONLength] + "..."
	}
	return s
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		if n == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
