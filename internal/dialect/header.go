package dialect

import (
	"io"
	"slices"
	"unicode"

	"github.com/sirupsen/logrus"

	"csvsniff/internal/infer"
)

// DetectHeader decides whether rows[0] is a header row.
//
// rows[0] is a header when all of its values read as Text (empty cells
// allowed, at least one Text) and some column headed by Text holds mostly
// narrower values below it. When the data below is text as well, rows[0] is
// a header if every value in it looks like an identifier and no later row
// repeats it.
//
// A boolean word in rows[0] ("n", "yes") counts as Text unless the column
// below it resolves to Boolean.
//
// Fewer than two rows never have a header.
func DetectHeader(rows [][]string, rec *infer.Recognizer) bool {
	if len(rows) < 2 {
		return false
	}
	first := rows[0]

	headerTypes := make([]infer.Type, len(first))
	sawText := false
	for j, v := range first {
		t := rec.Classify(v).Type
		if t == infer.Boolean && !booleanColumn(rows[1:], j, rec) {
			t = infer.Text
		}
		if t != infer.Null && t != infer.Text {
			return false
		}
		if t == infer.Text {
			sawText = true
		}
		headerTypes[j] = t
	}
	if !sawText {
		return false
	}

	for j, ht := range headerTypes {
		if ht != infer.Text {
			continue
		}
		nonNull, narrower := 0, 0
		for _, row := range rows[1:] {
			if j >= len(row) {
				continue
			}
			t := rec.Classify(row[j]).Type
			if t == infer.Null {
				continue
			}
			nonNull++
			if t != infer.Text {
				narrower++
			}
		}
		if nonNull > 0 && 2*narrower > nonNull {
			return true
		}
	}

	for _, v := range first {
		if !identifierLike(v) {
			return false
		}
	}
	for _, row := range rows[1:] {
		if slices.Equal(row, first) {
			return false
		}
	}
	return true
}

// booleanColumn reports whether column j of rows folds to Boolean.
func booleanColumn(rows [][]string, j int, rec *infer.Recognizer) bool {
	col := infer.NewColumn(rec)
	for _, row := range rows {
		if j < len(row) {
			col.Add(row[j])
		}
	}
	return col.Resolve().Type == infer.Boolean
}

// identifierLike matches column-name shaped strings: a letter or underscore
// followed by letters, digits and the punctuation common in column titles.
func identifierLike(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case unicode.IsLetter(r) || r == '_':
		case i == 0:
			return false
		case unicode.IsDigit(r):
		case r == ' ' || r == '.' || r == '-' || r == '/' || r == '(' || r == ')' || r == '#' || r == '%':
		default:
			return false
		}
	}
	return true
}

func defaultRecognizer() *infer.Recognizer {
	layouts, _ := infer.DatePreset("iso")
	m, _ := infer.NewDateMatcher(layouts)
	return infer.NewRecognizer(nil, m)
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
