// Package schema maps a démarche's descriptor tree onto the column sets of
// the target tables: stable column identities, column types, and the per-run
// column-shape cache used to avoid redundant column-listing calls.
package schema

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/zeebo/xxh3"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxColumnLength bounds generated column ids. Longer ids are truncated with
// a content-derived hash suffix to stay unique across long, similar labels.
const MaxColumnLength = 50

// NormalizeColumnID converts a human-readable field label into a stable,
// storage-safe column identifier. The function is pure: identical label text
// always yields the identical id, across processes and runs, because the id
// is the join key between schema-discovery time and record-write time. Ids
// already in canonical form are fixed points.
func NormalizeColumnID(label string) string {
	return normalizeColumnID(label, MaxColumnLength)
}

func normalizeColumnID(label string, maxLength int) string {
	s := strings.Join(strings.Fields(label), " ")

	// Decompose, drop combining marks, recompose: é → e, ç → c.
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	ascii, _, _ := transform.String(t, s)
	ascii = strings.ToLower(ascii)

	var b strings.Builder
	prevUnderscore := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		default:
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")

	if name == "" || !isASCIILetter(name[0]) {
		name = "col_" + name
		name = strings.TrimRight(name, "_")
	}

	if len(name) > maxLength {
		suffix := fmt.Sprintf("%06x", xxh3.HashString(name)&0xffffff)
		name = name[:maxLength-7] + "_" + suffix
	}
	return name
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// StripAnnotationPrefix removes the literal "annotation_" label prefix so the
// annotation table's column ids never collide with the prefix-bearing label.
func StripAnnotationPrefix(label string) string {
	return strings.TrimPrefix(label, "annotation_")
}
