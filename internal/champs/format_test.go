package champs

import (
	"strings"
	"testing"

	"dssync/internal/schema"
)

func TestFormatValueDateTime(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"rfc3339", "2024-03-01T10:30:00+01:00", "2024-03-01T09:30:00Z"},
		{"rfc3339 utc", "2024-03-01T10:30:00Z", "2024-03-01T10:30:00Z"},
		{"no zone", "2024-03-01T10:30:00", "2024-03-01T10:30:00Z"},
		{"space separated", "2024-03-01 10:30:00", "2024-03-01T10:30:00Z"},
		{"date only", "2024-03-01", "2024-03-01T00:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatValue(tt.in, schema.DateTime)
			if got != tt.want {
				t.Errorf("FormatValue(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatValueDateTimePassthrough(t *testing.T) {
	if got := FormatValue("pas une date", schema.DateTime); got != "pas une date" {
		t.Errorf("got %v, want raw value", got)
	}
}

func TestFormatValueText(t *testing.T) {
	long := strings.Repeat("x", 1500)
	got, ok := FormatValue(long, schema.Text).(string)
	if !ok {
		t.Fatalf("got %T, want string", got)
	}
	if len(got) != 1003 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncated length = %d, suffix ok = %v", len(got), strings.HasSuffix(got, "..."))
	}
	if got := FormatValue("court", schema.Text); got != "court" {
		t.Errorf("got %v", got)
	}
}

func TestFormatValueNumbers(t *testing.T) {
	if got := FormatValue("42", schema.Int); got != int64(42) {
		t.Errorf("Int(\"42\") = %v (%T)", got, got)
	}
	if got := FormatValue(41.9, schema.Int); got != int64(41) {
		t.Errorf("Int(41.9) = %v", got)
	}
	if got := FormatValue("abc", schema.Int); got != nil {
		t.Errorf("Int(\"abc\") = %v, want nil", got)
	}
	if got := FormatValue("3.14", schema.Numeric); got != 3.14 {
		t.Errorf("Numeric(\"3.14\") = %v", got)
	}
	if got := FormatValue("", schema.Numeric); got != nil {
		t.Errorf("Numeric(\"\") = %v, want nil", got)
	}
}

func TestFormatValueBool(t *testing.T) {
	truthy := []string{"true", "1", "yes", "Oui", "VRAI"}
	for _, s := range truthy {
		if got := FormatValue(s, schema.Bool); got != true {
			t.Errorf("Bool(%q) = %v, want true", s, got)
		}
	}
	if got := FormatValue("non", schema.Bool); got != false {
		t.Errorf("Bool(\"non\") = %v, want false", got)
	}
	if got := FormatValue(false, schema.Bool); got != false {
		t.Errorf("Bool(false) = %v", got)
	}
}

func TestFormatValueNil(t *testing.T) {
	for _, ct := range []schema.ColumnType{schema.Text, schema.Int, schema.Numeric, schema.Bool, schema.DateTime} {
		if got := FormatValue(nil, ct); got != nil {
			t.Errorf("FormatValue(nil, %v) = %v, want nil", ct, got)
		}
	}
}

func TestFormatComplexJSON(t *testing.T) {
	got := FormatComplexJSON(map[string]any{"a": 1})
	if got != `{"a":1}` {
		t.Errorf("got %v", got)
	}
	if got := FormatComplexJSON(nil); got != nil {
		t.Errorf("nil in: got %v", got)
	}

	big := FormatComplexJSON(strings.Repeat("y", 20000))
	s, ok := big.(string)
	if !ok || len(s) != 10003 || !strings.HasSuffix(s, "...") {
		t.Errorf("oversized payload not truncated: len=%d", len(s))
	}
}
