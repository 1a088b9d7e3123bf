package metadata

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"csvsniff/internal/infer"
)

// maxIdentLen is the PostgreSQL identifier limit; it is also safe for SQLite
// and SQL Server.
const maxIdentLen = 63

// NormalizeName converts a header value into a lowercase identifier usable as
// a column name. Separators collapse to a single underscore; other characters
// outside [a-z0-9_] are dropped. A leading digit gets a "c_" prefix.
func NormalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		switch {
		case r == ' ' || r == '\t' || r == '-' || r == '.' || r == '/' || r == '\\' || r == ':' || r == ';':
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_':
			b.WriteRune(r)
			lastUnderscore = r == '_'
		}
	}

	out := strings.Trim(b.String(), "_")
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "c_" + out
	}
	return truncateName(out)
}

// truncateName cuts s to maxIdentLen bytes on a UTF-8 boundary.
func truncateName(s string) string {
	if len(s) <= maxIdentLen {
		return s
	}
	cut := maxIdentLen
	for cut > 0 && !utf8.ValidString(s[:cut]) {
		cut--
	}
	return s[:cut]
}

// suffixed appends _k to base, shortening base to keep the result within
// maxIdentLen.
func suffixed(base string, k int) string {
	suf := "_" + strconv.Itoa(k)
	cut := min(len(base), maxIdentLen-len(suf))
	for cut > 0 && !utf8.ValidString(base[:cut]) {
		cut--
	}
	return base[:cut] + suf
}

// fieldNames returns display and normalized names for n fields. header may be
// shorter than n or nil; missing or blank entries become field_1, field_2, ...
// Normalized names are made unique with a numeric suffix.
func fieldNames(header []string, n int) (names, normalized []string) {
	names = make([]string, n)
	normalized = make([]string, n)
	used := make(map[string]bool, n)
	next := make(map[string]int, n)
	for i := 0; i < n; i++ {
		name := ""
		if i < len(header) {
			name = strings.TrimSpace(header[i])
		}
		if name == "" {
			name = "field_" + strconv.Itoa(i+1)
		}
		names[i] = name

		norm := NormalizeName(name)
		if norm == "" {
			norm = "field_" + strconv.Itoa(i+1)
		}
		if used[norm] {
			// id, id_2, id_3; a taken suffix moves on to the next one.
			base, k := norm, max(next[norm], 1)
			for used[norm] {
				k++
				norm = suffixed(base, k)
			}
			next[base] = k
		}
		used[norm] = true
		normalized[i] = norm
	}
	return names, normalized
}

// SQLType maps an inferred type to a portable column type.
func SQLType(t infer.Type) string {
	switch t {
	case infer.Boolean:
		return "boolean"
	case infer.Unsigned, infer.Integer:
		return "bigint"
	case infer.Float:
		return "double precision"
	case infer.Date:
		return "date"
	case infer.DateTime:
		return "timestamp"
	default:
		return "text"
	}
}
