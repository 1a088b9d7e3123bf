package dialect

import (
	"bytes"
	"sort"

	"github.com/sirupsen/logrus"

	"csvsniff/internal/infer"
	"csvsniff/internal/parser/csv"
)

// Candidate delimiters and quotes, in priority order.
var (
	Delimiters = []byte{',', '\t', ';', '|', ':', ' '}
	Quotes     = []byte{'"', '\'', '`'}
)

// Options tunes Detect. The zero value detects everything.
type Options struct {
	// Delimiter and Quote, when non-zero, are used as given.
	Delimiter byte
	Quote     byte

	// Strict turns a tie between equally good delimiters into an
	// *AmbiguousError instead of resolving it by priority.
	Strict bool

	// Truncated marks data as a prefix of a longer input. A final record
	// left open inside a quote is then ignored, since the input goes on.
	Truncated bool

	// Recognizer classifies values for header detection. If nil, a
	// recognizer with default null sentinels and ISO dates is used.
	Recognizer *infer.Recognizer

	// Logger receives per-candidate scores at debug level. May be nil.
	Logger logrus.FieldLogger
}

// Result is a committed dialect and the sample split with it.
type Result struct {
	Dialect Dialect

	// NumFields is the modal record width after the preamble.
	NumFields int

	// Grid holds the records after the preamble, header included.
	Grid csv.Grid
}

// Score describes how well one delimiter explains the sample.
type Score struct {
	Delimiter byte

	// Modal is the most common field count (larger wins a frequency tie).
	Modal int

	// Preamble is the number of leading records narrower than Modal.
	Preamble int

	// Consistency is the share of post-preamble records with Modal fields.
	Consistency float64

	// Hits counts post-preamble records with Modal fields out of Records.
	Hits, Records int
}

// Perfect reports whether every post-preamble record has Modal fields.
func (s Score) Perfect() bool { return s.Consistency == 1 }

// Viable reports whether the delimiter splits a majority of records into at
// least two fields of the same width.
func (s Score) Viable() bool { return s.Modal >= 2 && s.Consistency > 0.5 }

// Detect infers the dialect of a sample.
//
// Order of work: quote character, quote escaping, delimiter (with field
// count, preamble and flexibility), then header.
//
// Edge cases:
//   - A sample where no delimiter gives a majority of multi-field records is
//     read as a single column: delimiter ',' (or the override), NumFields 1.
//   - A single-record sample never has a header.
//   - With Truncated set, a trailing record cut inside a quoted field is
//     left out of scoring and of the Grid (see Grid.Unterminated).
//
// Errors:
//   - ErrInsufficientSample when the sample has no non-blank record.
//   - ErrInvalidDialect when overrides break the dialect invariants.
//   - *AmbiguousError in Strict mode when the best delimiters tie.
func Detect(data []byte, opt Options) (Result, error) {
	log := opt.Logger
	if log == nil {
		log = discardLogger()
	}
	if len(bytes.Trim(data, " \t\r\n")) == 0 {
		return Result{}, ErrInsufficientSample
	}

	d := Dialect{Delimiter: opt.Delimiter, Quote: opt.Quote}
	if d.Quote == 0 {
		d.Quote = detectQuote(data, opt.Delimiter)
	}
	if d.Delimiter != 0 && d.Delimiter == d.Quote {
		return Result{}, d.Validate()
	}
	d.DoubleQuote = detectDoubleQuote(data, d.Quote)

	split := func(delim byte) csv.Config {
		return csv.Config{Delimiter: delim, Quote: d.Quote, DoubleQuote: d.DoubleQuote, DropUnterminated: opt.Truncated}
	}

	var best Score
	if d.Delimiter != 0 {
		best = scoreDelimiter(data, split(d.Delimiter))
		if best.Modal == 0 {
			return Result{}, ErrInsufficientSample
		}
		d.Flexible = !best.Perfect()
	} else {
		scores := make([]Score, 0, len(Delimiters))
		for _, c := range Delimiters {
			if c == d.Quote {
				continue
			}
			s := scoreDelimiter(data, split(c))
			log.WithFields(logrus.Fields{
				"delimiter":   DisplayByte(c),
				"modal":       s.Modal,
				"preamble":    s.Preamble,
				"consistency": s.Consistency,
			}).Debug("delimiter candidate")
			scores = append(scores, s)
		}
		if len(scores) == 0 || scores[0].Modal == 0 {
			return Result{}, ErrInsufficientSample
		}

		var err error
		best, err = chooseDelimiter(scores, opt.Strict)
		if err != nil {
			return Result{}, err
		}
		if best.Delimiter == 0 {
			// Single column: every record is one field under any candidate.
			best = Score{Delimiter: ',', Modal: 1, Consistency: 1, Hits: scores[0].Records, Records: scores[0].Records}
			d.Flexible = false
		} else {
			d.Flexible = !best.Perfect()
		}
		d.Delimiter = best.Delimiter
	}
	d.PreambleRows = best.Preamble

	if err := d.Validate(); err != nil {
		return Result{}, err
	}

	cfg := d.SplitConfig()
	cfg.DropUnterminated = opt.Truncated
	grid := csv.ReadGrid(data, cfg, best.Modal, d.Flexible, d.PreambleRows)

	rec := opt.Recognizer
	if rec == nil {
		rec = defaultRecognizer()
	}
	d.HasHeader = DetectHeader(grid.Rows, rec)

	return Result{Dialect: d, NumFields: best.Modal, Grid: grid}, nil
}

// chooseDelimiter ranks viable candidates: fewer preamble records first, then
// higher consistency, then more fields, then priority order. A candidate never
// gets ahead by setting leading records aside as preamble. Returns a zero
// Score when nothing is viable.
func chooseDelimiter(scores []Score, strict bool) (Score, error) {
	viable := make([]Score, 0, len(scores))
	for _, s := range scores {
		if s.Viable() {
			viable = append(viable, s)
		}
	}
	if len(viable) == 0 {
		return Score{}, nil
	}

	better := func(a, b Score) bool {
		if a.Preamble != b.Preamble {
			return a.Preamble < b.Preamble
		}
		if x, y := a.Hits * b.Records, b.Hits * a.Records; x != y {
			return x > y
		}
		return a.Modal > b.Modal
	}
	// Stable sort keeps priority order among equals.
	sort.SliceStable(viable, func(i, j int) bool { return better(viable[i], viable[j]) })

	top := viable[0]
	if strict {
		tied := []byte{top.Delimiter}
		for _, s := range viable[1:] {
			if better(top, s) {
				break
			}
			tied = append(tied, s.Delimiter)
		}
		if len(tied) > 1 {
			return Score{}, &AmbiguousError{Candidates: tied, NumFields: top.Modal}
		}
	}
	return top, nil
}

// scoreDelimiter splits the sample with cfg and summarizes the field counts.
//
// Leading records narrower than Modal form the preamble, provided they are a
// minority.
func scoreDelimiter(data []byte, cfg csv.Config) Score {
	counts, _ := csv.FieldCounts(data, cfg)
	s := Score{Delimiter: cfg.Delimiter}
	if len(counts) == 0 {
		return s
	}

	freq := make(map[int]int, 8)
	for _, c := range counts {
		freq[c]++
	}
	for c, f := range freq {
		if f > freq[s.Modal] || (f == freq[s.Modal] && c > s.Modal) {
			s.Modal = c
		}
	}

	p := 0
	for p < len(counts) && counts[p] < s.Modal {
		p++
	}
	if 2*p > len(counts) {
		p = 0
	}
	s.Preamble = p

	rest := counts[p:]
	hit := 0
	for _, c := range rest {
		if c == s.Modal {
			hit++
		}
	}
	s.Hits, s.Records = hit, len(rest)
	s.Consistency = float64(hit) / float64(len(rest))
	return s
}

// detectQuote counts, for each candidate quote, the quoted spans that open at
// a field start and close at a field end. The candidate with most spans wins;
// '"' when there is no evidence.
func detectQuote(data []byte, delim byte) byte {
	bestQ, bestN := Quotes[0], 0
	if bestQ == delim {
		bestQ = Quotes[1]
	}
	for _, q := range Quotes {
		if q == delim {
			continue
		}
		if n := countQuotedSpans(data, q, delim); n > bestN {
			bestQ, bestN = q, n
		}
	}
	return bestQ
}

func countQuotedSpans(data []byte, q, delim byte) int {
	isSep := func(c byte) bool {
		if c == q {
			return false
		}
		if delim != 0 {
			return c == delim
		}
		return bytes.IndexByte(Delimiters, c) >= 0
	}
	atStart := func(p int) bool {
		k := p - 1
		for k >= 0 && (data[k] == ' ' || data[k] == '\t') && !isSep(data[k]) {
			k--
		}
		return k < 0 || data[k] == '\n' || data[k] == '\r' || isSep(data[k])
	}
	atEnd := func(p int) bool {
		k := p + 1
		for k < len(data) && (data[k] == ' ' || data[k] == '\t') && !isSep(data[k]) {
			k++
		}
		return k >= len(data) || data[k] == '\n' || data[k] == '\r' || isSep(data[k])
	}

	n := 0
	for p := 0; p < len(data); p++ {
		if data[p] != q || !atStart(p) {
			continue
		}
		// Find the closing quote, stepping over doubled quotes.
		c := p + 1
		for c < len(data) {
			if data[c] == q {
				if c+1 < len(data) && data[c+1] == q {
					c += 2
					continue
				}
				break
			}
			c++
		}
		if c >= len(data) {
			break
		}
		if atEnd(c) {
			n++
		}
		p = c
	}
	return n
}

// detectDoubleQuote reports whether doubled quotes (rather than backslash)
// escape quotes. A doubled quote right after a field boundary is an empty
// field and is not evidence either way.
func detectDoubleQuote(data []byte, q byte) bool {
	doubled, escaped := 0, 0
	for k := 0; k+1 < len(data); k++ {
		switch {
		case data[k] == '\\' && data[k+1] == q:
			escaped++
			k++
		case data[k] == q && data[k+1] == q:
			if k > 0 && data[k-1] != '\n' && data[k-1] != '\r' && bytes.IndexByte(Delimiters, data[k-1]) < 0 {
				doubled++
			}
			k++
		}
	}
	return doubled > 0 || escaped == 0
}
