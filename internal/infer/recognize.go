package infer

import (
	"strconv"
	"strings"
)

// DefaultNullSentinels are the values read as Null besides the empty string.
var DefaultNullSentinels = []string{"NA", "N/A", "null", "NULL", "None", "-"}

// Value is the classification of one sampled value.
type Value struct {
	Type Type

	// BoolDigit marks "1" and "0". They classify as Unsigned, but a column made
	// only of them and boolean words resolves to Boolean.
	BoolDigit bool

	// Layouts is the mask of date layouts that parse the value (Date and
	// DateTime only).
	Layouts uint64
}

// Recognizer classifies single values. It is immutable and safe for
// concurrent use.
type Recognizer struct {
	nulls map[string]struct{}
	dates *DateMatcher
}

// NewRecognizer builds a Recognizer. nulls are matched exactly after trimming
// surrounding white space; a nil slice means DefaultNullSentinels. dates may be
// nil to disable date recognition.
func NewRecognizer(nulls []string, dates *DateMatcher) *Recognizer {
	if nulls == nil {
		nulls = DefaultNullSentinels
	}
	set := make(map[string]struct{}, len(nulls))
	for _, s := range nulls {
		set[strings.TrimSpace(s)] = struct{}{}
	}
	return &Recognizer{nulls: set, dates: dates}
}

// Dates returns the matcher the Recognizer was built with.
func (r *Recognizer) Dates() *DateMatcher { return r.dates }

// Classify applies the recognizers in precedence order: Null, Boolean,
// Unsigned, Integer, Float, DateTime/Date, Text.
func (r *Recognizer) Classify(raw string) Value {
	v := strings.TrimSpace(raw)
	if v == "" {
		return Value{Type: Null}
	}
	if _, ok := r.nulls[v]; ok {
		return Value{Type: Null}
	}
	if isBoolWord(v) {
		return Value{Type: Boolean}
	}
	if v == "1" || v == "0" {
		return Value{Type: Unsigned, BoolDigit: true}
	}
	if isUnsigned(v) {
		return Value{Type: Unsigned}
	}
	if isInteger(v) {
		return Value{Type: Integer}
	}
	if isFloat(v) {
		return Value{Type: Float}
	}
	if kind, mask := r.dates.Match(v); mask != 0 {
		return Value{Type: kind, Layouts: mask}
	}
	return Value{Type: Text}
}

// isBoolWord matches the boolean vocabulary except the digits 1 and 0.
func isBoolWord(v string) bool {
	if len(v) > 5 {
		return false
	}
	switch strings.ToLower(v) {
	case "true", "false", "t", "f", "yes", "no", "y", "n":
		return true
	default:
		return false
	}
}

func isUnsigned(v string) bool {
	s := strings.TrimPrefix(v, "+")
	if s == "" || s[0] < '0' || s[0] > '9' {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}

func isInteger(v string) bool {
	if v[0] != '-' && v[0] != '+' {
		return false
	}
	_, err := strconv.ParseInt(v, 10, 64)
	return err == nil
}

// isFloat accepts decimal and exponent notation only: no hex floats, no
// NaN/Inf spellings, no digit separators.
func isFloat(v string) bool {
	digits := false
	for k := 0; k < len(v); k++ {
		c := v[k]
		switch {
		case c >= '0' && c <= '9':
			digits = true
		case c == '.' || c == '+' || c == '-' || c == 'e' || c == 'E':
		default:
			return false
		}
	}
	if !digits {
		return false
	}
	_, err := strconv.ParseFloat(v, 64)
	return err == nil
}
