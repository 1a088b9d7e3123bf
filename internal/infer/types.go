// Package infer classifies sampled CSV values and folds them into one type per
// column.
//
// Types form a small lattice: Null is the bottom, Text is the top, the numeric
// chain is Unsigned < Integer < Float, the temporal chain is Date < DateTime
// and Boolean stands alone. The column type is the join of its value types,
// so it never depends on row order.
package infer

import (
	"fmt"
	"strings"
)

// Type is an inferred column type. The numeric values give the rank order
// Null < Boolean < Unsigned < Integer < Float < Date < DateTime < Text.
type Type uint8

const (
	Null Type = iota
	Boolean
	Unsigned
	Integer
	Float
	Date
	DateTime
	Text
)

var typeNames = [...]string{
	Null:     "null",
	Boolean:  "boolean",
	Unsigned: "unsigned",
	Integer:  "integer",
	Float:    "float",
	Date:     "date",
	DateTime: "datetime",
	Text:     "text",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// MarshalText renders the lower-case name used in JSON and YAML reports.
func (t Type) MarshalText() ([]byte, error) {
	if int(t) >= len(typeNames) {
		return nil, fmt.Errorf("infer: invalid type %d", uint8(t))
	}
	return []byte(typeNames[t]), nil
}

// UnmarshalText accepts the names produced by MarshalText, case-insensitively.
func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseType is the inverse of Type.String.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range typeNames {
		if n == s {
			return Type(i), nil
		}
	}
	return Text, fmt.Errorf("infer: unknown type %q", s)
}

// joinTable[a][b] is the least upper bound of a and b.
var joinTable = [8][8]Type{
	Null:     {Null, Boolean, Unsigned, Integer, Float, Date, DateTime, Text},
	Boolean:  {Boolean, Boolean, Text, Text, Text, Text, Text, Text},
	Unsigned: {Unsigned, Text, Unsigned, Integer, Float, Text, Text, Text},
	Integer:  {Integer, Text, Integer, Integer, Float, Text, Text, Text},
	Float:    {Float, Text, Float, Float, Float, Text, Text, Text},
	Date:     {Date, Text, Text, Text, Text, Date, DateTime, Text},
	DateTime: {DateTime, Text, Text, Text, Text, DateTime, DateTime, Text},
	Text:     {Text, Text, Text, Text, Text, Text, Text, Text},
}

// Join returns the narrowest type both a and b can be read as.
func Join(a, b Type) Type {
	if a > Text || b > Text {
		return Text
	}
	return joinTable[a][b]
}
