package demarches

import (
	"encoding/base64"
	"strings"
)

// DecodeID decodes an opaque GraphQL node id. The API encodes ids as base64
// of "TypeName:123" (sometimes "Champ-123"); the trailing numeric part is the
// stable identifier worth persisting. A value that does not decode is
// returned unchanged.
func DecodeID(id string) string {
	decoded, err := base64.StdEncoding.DecodeString(id)
	if err != nil {
		// Some ids arrive without padding.
		decoded, err = base64.RawStdEncoding.DecodeString(id)
		if err != nil {
			return id
		}
	}
	s := string(decoded)
	if i := strings.LastIndex(s, ":"); i >= 0 {
		return s[i+1:]
	}
	if i := strings.LastIndex(s, "-"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// NumericID extracts the numeric part of a champ id. Ids of the form
// ".../Champ/123" carry it as the last path segment; everything else goes
// through DecodeID.
func NumericID(id string) string {
	if strings.Contains(id, "/") {
		parts := strings.Split(id, "/")
		if len(parts) >= 4 && parts[len(parts)-2] == "Champ" {
			return parts[len(parts)-1]
		}
		return ""
	}
	return DecodeID(id)
}
