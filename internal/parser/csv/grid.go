package csv

import "bytes"

// Grid is the sample re-parsed with a committed dialect.
type Grid struct {
	// Rows are the records kept for inference, each exactly Width fields wide.
	Rows [][]string

	// Lens holds the raw byte length of every record after the preamble,
	// including dropped ones, in input order. Lens[0] belongs to Rows[0]
	// unless that record was dropped.
	Lens []int

	Width int

	// Dropped counts records discarded for a width mismatch (non-flexible).
	Dropped int

	// Unterminated counts records that ended inside an open quote.
	Unterminated int

	// Cut is the byte length of unterminated records left out under
	// Config.DropUnterminated.
	Cut int
}

// Records is the number of records after the preamble, dropped ones included.
func (g Grid) Records() int { return len(g.Lens) }

// ReadGrid splits data into a grid of width fields.
//
// Edge cases:
//   - The first skip records (preamble) are discarded entirely.
//   - When flexible is false, records with a different width are dropped
//     from Rows but still counted in Lens.
//   - When flexible is true, short records are padded with "" (read as Null)
//     and long records are cut to width.
//   - An unterminated record is counted in Unterminated; under
//     cfg.DropUnterminated it is left out of Rows and Lens and its length
//     goes to Cut.
func ReadGrid(data []byte, cfg Config, width int, flexible bool, skip int) Grid {
	cfg.CountOnly = false
	g := Grid{Width: width}
	sc := NewScanner(bytes.NewReader(data), cfg)
	for n := 0; sc.Scan(); n++ {
		if n < skip {
			continue
		}
		rec := sc.Record()
		if rec.Unterminated {
			g.Unterminated++
			if cfg.DropUnterminated {
				g.Cut += rec.Len
				continue
			}
		}
		g.Lens = append(g.Lens, rec.Len)

		row := rec.Fields
		switch {
		case len(row) == width:
		case !flexible:
			g.Dropped++
			continue
		case len(row) < width:
			padded := make([]string, width)
			copy(padded, row)
			row = padded
		default:
			row = row[:width]
		}
		g.Rows = append(g.Rows, row)
	}
	return g
}

// FieldCounts returns the field count of every non-blank record in data.
//
// When data holds no quote byte, counts come from bytes.Count per line; the
// result is identical to running the Scanner. Under cfg.DropUnterminated a
// record left open inside a quote is not counted.
func FieldCounts(data []byte, cfg Config) (counts []int, lens []int) {
	if bytes.IndexByte(data, cfg.Quote) < 0 {
		return fieldCountsFast(data, cfg.Delimiter)
	}
	return fieldCountsScan(data, cfg)
}

func fieldCountsScan(data []byte, cfg Config) (counts []int, lens []int) {
	cfg.CountOnly = true
	sc := NewScanner(bytes.NewReader(data), cfg)
	for sc.Scan() {
		rec := sc.Record()
		if rec.Unterminated && cfg.DropUnterminated {
			continue
		}
		counts = append(counts, rec.NumFields)
		lens = append(lens, rec.Len)
	}
	return counts, lens
}

func fieldCountsFast(data []byte, delim byte) (counts []int, lens []int) {
	sep := []byte{delim}
	for len(data) > 0 {
		line := data
		if k := bytes.IndexByte(data, '\n'); k >= 0 {
			line = data[:k+1]
		}
		data = data[len(line):]

		body := bytes.TrimRight(line, "\n")
		if len(bytes.Trim(body, "\r")) == 0 {
			continue
		}
		counts = append(counts, bytes.Count(body, sep)+1)
		lens = append(lens, len(line))
	}
	return counts, lens
}
