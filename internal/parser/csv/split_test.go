package csv

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanAll(t *testing.T, in string, cfg Config) []Record {
	t.Helper()
	sc := NewScanner(strings.NewReader(in), cfg)
	var out []Record
	for sc.Scan() {
		out = append(out, sc.Record())
	}
	require.NoError(t, sc.Err())
	return out
}

func fieldsOf(recs []Record) [][]string {
	out := make([][]string, len(recs))
	for i, r := range recs {
		out[i] = r.Fields
	}
	return out
}

func TestScanner_Fields(t *testing.T) {
	t.Parallel()

	comma := Config{Delimiter: ',', Quote: '"', DoubleQuote: true}

	tests := []struct {
		name string
		in   string
		cfg  Config
		want [][]string
	}{
		{name: "simple", in: "a,b,c\n1,2,3\n", cfg: comma, want: [][]string{{"a", "b", "c"}, {"1", "2", "3"}}},
		{name: "no_trailing_newline", in: "a,b\n1,2", cfg: comma, want: [][]string{{"a", "b"}, {"1", "2"}}},
		{name: "crlf", in: "a,b\r\n1,2\r\n", cfg: comma, want: [][]string{{"a", "b"}, {"1", "2"}}},
		{name: "embedded_delimiter", in: "\"x,y\",z\n", cfg: comma, want: [][]string{{"x,y", "z"}}},
		{name: "embedded_newline", in: "\"line1\nline2\",z\n", cfg: comma, want: [][]string{{"line1\nline2", "z"}}},
		{name: "embedded_crlf", in: "\"a\r\nb\",c\r\n", cfg: comma, want: [][]string{{"a\r\nb", "c"}}},
		{name: "doubled_quote", in: "\"say \"\"hi\"\"\",x\n", cfg: comma, want: [][]string{{"say \"hi\"", "x"}}},
		{name: "empty_fields", in: ",,\n", cfg: comma, want: [][]string{{"", "", ""}}},
		{name: "quoted_empty", in: "\"\"\n", cfg: comma, want: [][]string{{""}}},
		{name: "blank_lines_skipped", in: "a,b\n\n\r\n1,2\n", cfg: comma, want: [][]string{{"a", "b"}, {"1", "2"}}},
		{name: "quote_mid_field_is_literal", in: "ab\"c,d\n", cfg: comma, want: [][]string{{"ab\"c", "d"}}},
		{name: "text_after_closing_quote", in: "\"ab\"c,d\n", cfg: comma, want: [][]string{{"abc", "d"}}},
		{name: "bare_cr_is_data", in: "a\rb,c\n", cfg: comma, want: [][]string{{"a\rb", "c"}}},
		{
			name: "semicolon_single_quote",
			in:   "'a;b';c\n",
			cfg:  Config{Delimiter: ';', Quote: '\'', DoubleQuote: true},
			want: [][]string{{"a;b", "c"}},
		},
		{
			name: "backslash_escape",
			in:   "\"a\\\"b\",c\n",
			cfg:  Config{Delimiter: ',', Quote: '"', DoubleQuote: false},
			want: [][]string{{"a\"b", "c"}},
		},
		{
			name: "tab",
			in:   "a\tb\tc\n",
			cfg:  Config{Delimiter: '\t', Quote: '"', DoubleQuote: true},
			want: [][]string{{"a", "b", "c"}},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, fieldsOf(scanAll(t, tt.in, tt.cfg)))
		})
	}
}

func TestScanner_UnterminatedQuote(t *testing.T) {
	t.Parallel()

	recs := scanAll(t, "a,b\n1,\"open\n", Config{Delimiter: ',', Quote: '"', DoubleQuote: true})
	require.Len(t, recs, 2)
	assert.False(t, recs[0].Unterminated)
	assert.True(t, recs[1].Unterminated)
	assert.Equal(t, []string{"1", "open\n"}, recs[1].Fields)
}

func TestScanner_LenAndLine(t *testing.T) {
	t.Parallel()

	recs := scanAll(t, "a,b\r\n\n\"x\ny\",2\nlast", Config{Delimiter: ',', Quote: '"', DoubleQuote: true})
	require.Len(t, recs, 3)

	assert.Equal(t, 5, recs[0].Len)
	assert.Equal(t, 1, recs[0].Line)

	assert.Equal(t, 8, recs[1].Len)
	assert.Equal(t, 3, recs[1].Line)

	assert.Equal(t, 4, recs[2].Len)
	assert.Equal(t, 5, recs[2].Line)
}

func TestScanner_CountOnlyMatchesFields(t *testing.T) {
	t.Parallel()

	in := "a,\"b,c\",d\n1,2,3\n\"x\"\"y\",z\n"
	full := scanAll(t, in, Config{Delimiter: ',', Quote: '"', DoubleQuote: true})
	counts := scanAll(t, in, Config{Delimiter: ',', Quote: '"', DoubleQuote: true, CountOnly: true})

	require.Len(t, counts, len(full))
	for i := range full {
		assert.Nil(t, counts[i].Fields)
		assert.Equal(t, len(full[i].Fields), counts[i].NumFields)
		assert.Equal(t, full[i].Len, counts[i].Len)
	}
}

func BenchmarkScanner(b *testing.B) {
	in := strings.Repeat("12345,\"some, text\",2024-01-02,3.5,true\n", 2000)
	cfg := Config{Delimiter: ',', Quote: '"', DoubleQuote: true}
	b.ReportAllocs()
	b.SetBytes(int64(len(in)))
	for i := 0; i < b.N; i++ {
		sc := NewScanner(strings.NewReader(in), cfg)
		for sc.Scan() {
		}
	}
}
