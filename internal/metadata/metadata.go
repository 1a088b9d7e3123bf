// Package metadata aggregates the outputs of a sniff run into an immutable
// report and renders it for humans and machines.
package metadata

import (
	"encoding/hex"
	"math"
	"slices"

	"github.com/zeebo/blake3"

	"csvsniff/internal/dialect"
	"csvsniff/internal/infer"
)

// Field describes one column.
type Field struct {
	Name       string     `json:"name" yaml:"name"`
	Normalized string     `json:"normalized" yaml:"normalized"`
	Type       infer.Type `json:"type" yaml:"type"`
	SQLType    string     `json:"sql_type" yaml:"sql_type"`

	// Layout is the Go time layout for Date and DateTime columns.
	Layout string `json:"layout,omitempty" yaml:"layout,omitempty"`

	// DateAmbiguous marks a column whose values looked like dates but
	// matched no common layout. Its Type is Text.
	DateAmbiguous bool `json:"date_ambiguous,omitempty" yaml:"date_ambiguous,omitempty"`

	NullCount      int  `json:"null_count" yaml:"null_count"`
	Distinct       int  `json:"distinct" yaml:"distinct"`
	DistinctCapped bool `json:"distinct_capped,omitempty" yaml:"distinct_capped,omitempty"`
}

// Encoding summarizes the byte-level state of the sample.
type Encoding struct {
	Valid bool `json:"valid" yaml:"valid"`

	// InvalidOffset is the sample offset of the first byte that is not valid
	// UTF-8, or -1.
	InvalidOffset int `json:"invalid_offset" yaml:"invalid_offset"`

	// Charset and Confidence are the detector's guess for invalid samples.
	Charset    string `json:"charset,omitempty" yaml:"charset,omitempty"`
	Confidence int    `json:"confidence,omitempty" yaml:"confidence,omitempty"`

	// Decoded is true when the sample was transcoded from Charset to UTF-8
	// before inference.
	Decoded bool `json:"decoded,omitempty" yaml:"decoded,omitempty"`

	BOM         string `json:"bom" yaml:"bom"`
	Compression string `json:"compression" yaml:"compression"`
}

// Input is everything Aggregate needs from the earlier stages.
type Input struct {
	Dialect   dialect.Dialect
	NumFields int

	// Header is the header row when Dialect.HasHeader; otherwise nil.
	Header []string

	// Columns holds one resolution per field. Nil means type inference was
	// skipped and every field is Text.
	Columns []infer.Resolution

	// RecordLens are the byte lengths (terminator included) of the sampled
	// data records: header and preamble excluded.
	RecordLens []int

	// Overhead is the byte length of the preamble and header records.
	Overhead int64

	// SampleEOF is true when the sample covers the whole input.
	SampleEOF bool

	// TotalSize is the input size in bytes, or -1.
	TotalSize int64

	Encoding Encoding

	// Data is the sample as inferred on; it is hashed, not retained.
	Data []byte
}

// Metadata is the result of a sniff run. It cannot be modified after
// Aggregate returns it; accessors hand out copies.
type Metadata struct {
	dialect     dialect.Dialect
	fields      []Field
	numFields   int
	numRecords  int64
	exact       bool
	avgLen      float64
	sampleRows  int
	encoding    Encoding
	fingerprint string
}

func (m *Metadata) Dialect() dialect.Dialect { return m.dialect }
func (m *Metadata) Fields() []Field          { return slices.Clone(m.fields) }
func (m *Metadata) NumFields() int           { return m.numFields }

// NumRecords is the number of data records: exact when RecordCountExact,
// otherwise estimated from the input size and AvgRecordLen.
func (m *Metadata) NumRecords() int64      { return m.numRecords }
func (m *Metadata) RecordCountExact() bool { return m.exact }
func (m *Metadata) AvgRecordLen() float64  { return m.avgLen }
func (m *Metadata) SampleRows() int        { return m.sampleRows }
func (m *Metadata) EncodingValid() bool    { return m.encoding.Valid }
func (m *Metadata) Encoding() Encoding     { return m.encoding }
func (m *Metadata) Fingerprint() string    { return m.fingerprint }

// Aggregate builds Metadata from the pipeline outputs. It is pure.
//
// Edge cases:
//   - Without a header, fields are named field_1, field_2, ...
//   - When the sample covers the input, NumRecords is the sampled count and
//     exact. Otherwise it is TotalSize (minus header and preamble) divided
//     by AvgRecordLen, never less than the sampled count; with an unknown
//     TotalSize it falls back to the sampled count, flagged inexact.
func Aggregate(in Input) *Metadata {
	names, normalized := fieldNames(in.Header, in.NumFields)
	fields := make([]Field, in.NumFields)
	for i := range fields {
		f := Field{Name: names[i], Normalized: normalized[i], Type: infer.Text}
		if i < len(in.Columns) {
			c := in.Columns[i]
			f.Type = c.Type
			f.Layout = c.Layout
			f.DateAmbiguous = c.DateAmbiguous
			f.NullCount = c.NullCount
			f.Distinct = c.Distinct
			f.DistinctCapped = c.DistinctCapped
		}
		f.SQLType = SQLType(f.Type)
		fields[i] = f
	}

	m := &Metadata{
		dialect:     in.Dialect,
		fields:      fields,
		numFields:   in.NumFields,
		sampleRows:  len(in.RecordLens),
		encoding:    in.Encoding,
		fingerprint: Fingerprint(in.Data),
	}

	var total int64
	for _, n := range in.RecordLens {
		total += int64(n)
	}
	if m.sampleRows > 0 {
		m.avgLen = float64(total) / float64(m.sampleRows)
	}

	sampled := int64(m.sampleRows)
	switch {
	case in.SampleEOF:
		m.numRecords, m.exact = sampled, true
	case in.TotalSize > 0 && m.avgLen > 0:
		est := int64(math.Round(float64(in.TotalSize-in.Overhead) / m.avgLen))
		m.numRecords = max(est, sampled)
	default:
		m.numRecords = sampled
	}
	return m
}

// Fingerprint is the hex BLAKE3-256 digest of a sample. Identical samples
// taken with identical limits share a fingerprint.
func Fingerprint(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Report is a detached, serializable view of Metadata.
type Report struct {
	Source string `json:"source,omitempty" yaml:"source,omitempty"`

	Delimiter    string `json:"delimiter" yaml:"delimiter"`
	Quote        string `json:"quote" yaml:"quote"`
	DoubleQuote  bool   `json:"double_quote" yaml:"double_quote"`
	Flexible     bool   `json:"flexible" yaml:"flexible"`
	HasHeader    bool   `json:"has_header" yaml:"has_header"`
	PreambleRows int    `json:"preamble_rows" yaml:"preamble_rows"`

	NumFields        int     `json:"num_fields" yaml:"num_fields"`
	NumRecords       int64   `json:"num_records" yaml:"num_records"`
	RecordCountExact bool    `json:"record_count_exact" yaml:"record_count_exact"`
	AvgRecordLen     float64 `json:"avg_record_len" yaml:"avg_record_len"`
	SampleRows       int     `json:"sample_rows" yaml:"sample_rows"`

	Encoding    Encoding `json:"encoding" yaml:"encoding"`
	Fingerprint string   `json:"fingerprint" yaml:"fingerprint"`

	Fields []Field `json:"fields" yaml:"fields"`
}

// Report returns the serializable view, labelled with source.
func (m *Metadata) Report(source string) Report {
	d := m.dialect
	return Report{
		Source:           source,
		Delimiter:        dialect.DisplayByte(d.Delimiter),
		Quote:            dialect.DisplayByte(d.Quote),
		DoubleQuote:      d.DoubleQuote,
		Flexible:         d.Flexible,
		HasHeader:        d.HasHeader,
		PreambleRows:     d.PreambleRows,
		NumFields:        m.numFields,
		NumRecords:       m.numRecords,
		RecordCountExact: m.exact,
		AvgRecordLen:     math.Round(m.avgLen*100) / 100,
		SampleRows:       m.sampleRows,
		Encoding:         m.encoding,
		Fingerprint:      m.fingerprint,
		Fields:           m.Fields(),
	}
}
