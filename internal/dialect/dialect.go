// Package dialect infers the syntax of a delimited text sample: delimiter,
// quote character, quote escaping, ragged-row tolerance, preamble and header.
package dialect

import (
	"fmt"
	"io"
	"strconv"

	"csvsniff/internal/parser/csv"
)

// Dialect is the committed syntax of a CSV input. It is a value type; once
// returned by Detect it is never modified.
type Dialect struct {
	Delimiter byte
	Quote     byte

	// DoubleQuote is true when "" escapes a quote inside a quoted field.
	DoubleQuote bool

	// Flexible is true when records do not all share one width.
	Flexible bool

	HasHeader bool

	// PreambleRows counts leading records (titles, export banners) above the
	// header or first data row.
	PreambleRows int
}

// Validate checks the dialect invariants.
func (d Dialect) Validate() error {
	switch {
	case d.Delimiter == 0:
		return fmt.Errorf("%w: missing delimiter", ErrInvalidDialect)
	case d.Quote == 0:
		return fmt.Errorf("%w: missing quote", ErrInvalidDialect)
	case d.Delimiter == d.Quote:
		return fmt.Errorf("%w: delimiter and quote are both %s", ErrInvalidDialect, DisplayByte(d.Delimiter))
	case d.Delimiter == '\n' || d.Delimiter == '\r':
		return fmt.Errorf("%w: delimiter cannot be a line terminator", ErrInvalidDialect)
	}
	return nil
}

// SplitConfig is the Scanner configuration for this dialect.
func (d Dialect) SplitConfig() csv.Config {
	return csv.Config{Delimiter: d.Delimiter, Quote: d.Quote, DoubleQuote: d.DoubleQuote}
}

// ReaderOptions configures the strict reader. numFields is enforced unless the
// dialect is flexible; zero takes the width from the first record.
func (d Dialect) ReaderOptions(numFields int) csv.ReaderOptions {
	return csv.ReaderOptions{
		Delimiter:   d.Delimiter,
		Quote:       d.Quote,
		DoubleQuote: d.DoubleQuote,
		Flexible:    d.Flexible,
		NumFields:   numFields,
		SkipRecords: d.PreambleRows,
	}
}

// NewReader opens the whole input for reading with this dialect. The first
// record returned is the header when HasHeader is set.
func (d Dialect) NewReader(r io.Reader, numFields int) (csv.RecordReader, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return csv.NewReader(r, d.ReaderOptions(numFields))
}

// DisplayByte renders a delimiter or quote for humans: printable ASCII as-is,
// tab and space by name, anything else as a Go escape.
func DisplayByte(b byte) string {
	switch b {
	case '\t':
		return `\t`
	case ' ':
		return "space"
	case 0:
		return ""
	}
	if b > ' ' && b < 0x7f {
		return string(b)
	}
	return strconv.QuoteToASCII(string(rune(b)))
}

// ParseByte is the inverse of DisplayByte, also accepting the names "tab",
// "comma", "semicolon", "pipe" and "colon". The empty string returns 0.
func ParseByte(s string) (byte, error) {
	switch s {
	case "":
		return 0, nil
	case `\t`, "tab":
		return '\t', nil
	case "space":
		return ' ', nil
	case "comma":
		return ',', nil
	case "semicolon":
		return ';', nil
	case "pipe":
		return '|', nil
	case "colon":
		return ':', nil
	}
	if len(s) == 1 {
		return s[0], nil
	}
	if u, err := strconv.Unquote(s); err == nil && len(u) == 1 {
		return u[0], nil
	}
	return 0, fmt.Errorf("dialect: %q is not a single byte", s)
}
