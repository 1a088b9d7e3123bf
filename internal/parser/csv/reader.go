package csv

import (
	"bufio"
	"bytes"
	stdcsv "encoding/csv"
	"fmt"
	"io"
)

// ReaderOptions configures the strict reader for a committed dialect.
type ReaderOptions struct {
	Delimiter   byte
	Quote       byte
	DoubleQuote bool

	// Flexible allows records whose width differs from NumFields.
	Flexible bool

	// NumFields is the expected record width when not Flexible. Zero means
	// "take it from the first record".
	NumFields int

	// SkipRecords drops this many leading records (a preamble above the data).
	SkipRecords int
}

// RecordReader is satisfied by *encoding/csv.Reader.
type RecordReader interface {
	Read() ([]string, error)
}

// NewReader configures a reader for the whole file from a sniffed dialect.
//
// Dialects that encoding/csv can express (double quote with "" escaping) get
// an *encoding/csv.Reader with ReuseRecord enabled; callers must copy a record
// they want to keep. Other quote characters are read by the Scanner with the
// same field-count rules.
//
// A leading UTF-8 BOM and SkipRecords preamble records are consumed before
// the reader is returned.
//
// Errors:
//   - Returns an error if the preamble cannot be read.
//   - Record width mismatches surface from Read as *encoding/csv.ParseError
//     wrapping encoding/csv.ErrFieldCount, whichever reader is used.
func NewReader(r io.Reader, opt ReaderOptions) (RecordReader, error) {
	br := bufio.NewReader(r)
	if head, _ := br.Peek(3); bytes.HasPrefix(head, []byte("\uFEFF")) {
		_, _ = br.Discard(3)
	}

	cfg := Config{Delimiter: opt.Delimiter, Quote: opt.Quote, DoubleQuote: opt.DoubleQuote}
	if opt.SkipRecords > 0 {
		sc := NewScanner(br, Config{Delimiter: opt.Delimiter, Quote: opt.Quote, DoubleQuote: opt.DoubleQuote, CountOnly: true})
		for i := 0; i < opt.SkipRecords; i++ {
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return nil, fmt.Errorf("skip preamble: %w", err)
				}
				break
			}
		}
	}

	if opt.Quote == '"' && opt.DoubleQuote {
		cr := stdcsv.NewReader(br)
		cr.Comma = rune(opt.Delimiter)
		cr.ReuseRecord = true
		if opt.Flexible {
			cr.FieldsPerRecord = -1
		} else {
			cr.FieldsPerRecord = opt.NumFields
		}
		return cr, nil
	}

	return &scanReader{sc: NewScanner(br, cfg), want: opt.NumFields, flexible: opt.Flexible}, nil
}

type scanReader struct {
	sc       *Scanner
	want     int
	flexible bool
}

func (r *scanReader) Read() ([]string, error) {
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	rec := r.sc.Record()
	if r.flexible {
		return rec.Fields, nil
	}
	if r.want == 0 {
		r.want = rec.NumFields
	}
	if rec.NumFields != r.want {
		return rec.Fields, &stdcsv.ParseError{StartLine: rec.Line, Line: rec.Line, Err: stdcsv.ErrFieldCount}
	}
	return rec.Fields, nil
}
