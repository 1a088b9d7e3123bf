package metadata

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"
)

// Format selects a report rendering.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat accepts table, json and yaml (case-insensitive; "yml" too).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table", "text":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
}

// Write renders r to w in the given format.
func (r Report) Write(w io.Writer, f Format) error {
	switch f {
	case FormatJSON:
		return r.WriteJSON(w)
	case FormatYAML:
		return r.WriteYAML(w)
	default:
		return r.WriteTable(w)
	}
}

// WriteJSON writes r as indented JSON followed by a newline.
func (r Report) WriteJSON(w io.Writer) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

// WriteYAML writes r as a YAML document.
func (r Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return enc.Close()
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true)
)

// WriteTable writes a human-readable summary followed by a table of fields.
func (r Report) WriteTable(w io.Writer) error {
	var b strings.Builder

	if r.Source != "" {
		b.WriteString(titleStyle.Render(r.Source))
		b.WriteByte('\n')
	}

	records := strconv.FormatInt(r.NumRecords, 10)
	if !r.RecordCountExact {
		records = "~" + records
	}
	enc := "valid utf-8"
	if !r.Encoding.Valid {
		enc = fmt.Sprintf("invalid utf-8 at byte %d", r.Encoding.InvalidOffset)
		if r.Encoding.Charset != "" {
			enc += fmt.Sprintf(" (looks like %s, %d%%)", r.Encoding.Charset, r.Encoding.Confidence)
		}
	}

	summary := table.New().
		Border(lipgloss.HiddenBorder()).
		StyleFunc(func(row, col int) lipgloss.Style { return cellStyle }).
		Row("delimiter", r.Delimiter).
		Row("quote", r.Quote).
		Row("double quote", strconv.FormatBool(r.DoubleQuote)).
		Row("flexible", strconv.FormatBool(r.Flexible)).
		Row("header", strconv.FormatBool(r.HasHeader)).
		Row("preamble rows", strconv.Itoa(r.PreambleRows)).
		Row("fields", strconv.Itoa(r.NumFields)).
		Row("records", records).
		Row("avg record len", strconv.FormatFloat(r.AvgRecordLen, 'f', 2, 64)).
		Row("sample rows", strconv.Itoa(r.SampleRows)).
		Row("encoding", enc).
		Row("compression", r.Encoding.Compression)
	b.WriteString(summary.String())
	b.WriteByte('\n')

	fields := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("#", "name", "normalized", "type", "sql type", "layout", "nulls", "distinct")
	for i, f := range r.Fields {
		distinct := strconv.Itoa(f.Distinct)
		if f.DistinctCapped {
			distinct += "+"
		}
		fields.Row(
			strconv.Itoa(i+1),
			f.Name,
			f.Normalized,
			f.Type.String(),
			f.SQLType,
			f.Layout,
			strconv.Itoa(f.NullCount),
			distinct,
		)
	}
	b.WriteString(fields.String())
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}
