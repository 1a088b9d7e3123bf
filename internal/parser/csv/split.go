// Package csv splits delimited text into records.
//
// Scanner is the quote-aware field splitter used while sniffing: it accepts any
// single-byte delimiter and quote character, and it is lenient (a quote left
// open at end of input closes the field instead of failing). NewReader hands a
// committed dialect to a strict reader for the full file.
package csv

import (
	"bufio"
	"io"
)

// Config selects the syntax the Scanner splits on.
type Config struct {
	Delimiter byte
	Quote     byte

	// DoubleQuote enables "" as an escaped quote inside a quoted field.
	// When false, a backslash escapes the next byte inside a quoted field.
	DoubleQuote bool

	// CountOnly skips building field strings; Record.Fields stays nil and only
	// Record.NumFields is maintained. Used by delimiter detection.
	CountOnly bool

	// DropUnterminated leaves a final record that ends inside an open quote
	// out of FieldCounts and ReadGrid. Set it when data is a prefix cut from
	// a longer input.
	DropUnterminated bool
}

// Record is one logical CSV record.
type Record struct {
	Fields    []string
	NumFields int

	// Len is the raw byte length of the record including its line terminator.
	Len int

	// Line is the 1-based physical line on which the record starts.
	Line int

	// Unterminated is set when input ended inside a quoted field.
	Unterminated bool
}

type state uint8

const (
	stateUnquoted state = iota
	stateQuoted
	stateQuoteInQuoted
)

// Scanner reads records from a byte stream one at a time.
//
// Blank lines are skipped. CRLF and LF terminators are both accepted; a
// delimiter or newline inside a quoted field is data.
type Scanner struct {
	br  *bufio.Reader
	cfg Config

	rec    Record
	field  []byte
	fields []string
	width  int

	line int
	done bool
	err  error
}

// NewScanner returns a Scanner reading from r. If r is already a
// *bufio.Reader it is used directly, so the caller can continue reading from
// it after the Scanner stops.
func NewScanner(r io.Reader, cfg Config) *Scanner {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Scanner{br: br, cfg: cfg}
}

// Scan advances to the next non-blank record. It returns false at end of
// input or on a read error (see Err).
func (s *Scanner) Scan() bool {
	for !s.done && s.err == nil {
		blank, ok := s.scanRecord()
		if !ok {
			return false
		}
		if !blank {
			return true
		}
	}
	return false
}

// Record returns the record produced by the last successful Scan. Fields is
// freshly allocated for every record.
func (s *Scanner) Record() Record { return s.rec }

// Err returns the first non-EOF read error.
func (s *Scanner) Err() error { return s.err }

// scanRecord runs the state machine over one record. blank reports a line
// with no content besides its terminator.
func (s *Scanner) scanRecord() (blank bool, ok bool) {
	s.rec = Record{Line: s.line + 1}
	s.field = s.field[:0]
	s.fields = nil
	if !s.cfg.CountOnly {
		s.fields = make([]string, 0, s.width)
	}

	st := stateUnquoted
	atFieldStart := true
	crPending := false
	escaped := false
	content := false
	n := 0

	for {
		c, err := s.br.ReadByte()
		if err != nil {
			if err != io.EOF {
				s.err = err
				return false, false
			}
			s.done = true
			if n == 0 {
				return false, false
			}
			if st == stateQuoted {
				s.rec.Unterminated = true
			}
			s.endField()
			return s.finish(n, content), true
		}
		n++
		if c != '\n' && c != '\r' {
			content = true
		}

		if crPending {
			crPending = false
			if c != '\n' {
				// Bare CR inside a record is data.
				s.field = append(s.field, '\r')
				st = stateUnquoted
				atFieldStart = false
			}
		}

		switch st {
		case stateUnquoted:
			switch {
			case c == s.cfg.Quote && atFieldStart:
				st = stateQuoted
				atFieldStart = false
			case c == s.cfg.Delimiter:
				s.endField()
				atFieldStart = true
			case c == '\n':
				s.line++
				s.endField()
				return s.finish(n, content), true
			case c == '\r':
				crPending = true
			default:
				s.field = append(s.field, c)
				atFieldStart = false
			}

		case stateQuoted:
			switch {
			case escaped:
				s.field = append(s.field, c)
				escaped = false
			case c == '\\' && !s.cfg.DoubleQuote:
				escaped = true
			case c == s.cfg.Quote:
				st = stateQuoteInQuoted
			default:
				if c == '\n' {
					s.line++
				}
				s.field = append(s.field, c)
			}

		case stateQuoteInQuoted:
			switch {
			case c == s.cfg.Quote && s.cfg.DoubleQuote:
				s.field = append(s.field, c)
				st = stateQuoted
			case c == s.cfg.Delimiter:
				s.endField()
				st = stateUnquoted
				atFieldStart = true
			case c == '\n':
				s.line++
				s.endField()
				return s.finish(n, content), true
			case c == '\r':
				crPending = true
			default:
				// Text after a closing quote is kept verbatim.
				s.field = append(s.field, c)
				st = stateUnquoted
			}
		}
	}
}

func (s *Scanner) endField() {
	s.rec.NumFields++
	if !s.cfg.CountOnly {
		s.fields = append(s.fields, string(s.field))
	}
	s.field = s.field[:0]
}

func (s *Scanner) finish(n int, content bool) bool {
	s.rec.Len = n
	s.rec.Fields = s.fields
	if content {
		s.width = s.rec.NumFields
	}
	return !content
}
