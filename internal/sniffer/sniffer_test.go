package sniffer

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvsniff/internal/dialect"
	"csvsniff/internal/infer"
	"csvsniff/internal/metadata"
	"csvsniff/internal/metrics"
)

func sniffString(t *testing.T, in string, cfg Config) *metadata.Metadata {
	t.Helper()
	md, err := Sniff(context.Background(), strings.NewReader(in), cfg)
	require.NoError(t, err)
	return md
}

func fieldTypes(md *metadata.Metadata) []infer.Type {
	var out []infer.Type
	for _, f := range md.Fields() {
		out = append(out, f.Type)
	}
	return out
}

func TestSniff_HeaderAndTypes(t *testing.T) {
	t.Parallel()

	md := sniffString(t, "Name,Age,City\nAlice,30,Berlin\nBob,25,Paris\n", Config{})

	d := md.Dialect()
	assert.Equal(t, byte(','), d.Delimiter)
	assert.Equal(t, byte('"'), d.Quote)
	assert.True(t, d.HasHeader)
	assert.False(t, d.Flexible)
	assert.Equal(t, 3, md.NumFields())
	assert.Equal(t, []infer.Type{infer.Text, infer.Unsigned, infer.Text}, fieldTypes(md))
	assert.Equal(t, "Age", md.Fields()[1].Name)
	assert.Equal(t, int64(2), md.NumRecords())
	assert.True(t, md.RecordCountExact())
	assert.InDelta(t, 14.5, md.AvgRecordLen(), 1e-9)
	assert.True(t, md.EncodingValid())
	assert.Equal(t, 2, md.SampleRows())
}

func TestSniff_BooleanAndDateColumns(t *testing.T) {
	t.Parallel()

	in := "id,active,joined,score\n" +
		"1,1,2024-01-05,1.5\n" +
		"2,0,2024-02-10,-2\n" +
		"3,yes,2024-03-15,NA\n"
	md := sniffString(t, in, Config{})

	fs := md.Fields()
	require.Len(t, fs, 4)
	assert.Equal(t, infer.Unsigned, fs[0].Type)
	assert.Equal(t, infer.Boolean, fs[1].Type)
	assert.Equal(t, infer.Date, fs[2].Type)
	assert.Equal(t, "2006-01-02", fs[2].Layout)
	assert.Equal(t, infer.Float, fs[3].Type)
	assert.Equal(t, 1, fs[3].NullCount)
	assert.Equal(t, "double precision", fs[3].SQLType)
}

func TestSniff_AmbiguousDatesFallBackToText(t *testing.T) {
	t.Parallel()

	// 13/01 is day-first only, 01/13 month-first only.
	in := "when,n\n13/01/2024,1\n01/13/2024,2\n"
	md := sniffString(t, in, Config{})
	f := md.Fields()[0]
	assert.Equal(t, infer.Text, f.Type)
	assert.True(t, f.DateAmbiguous)
}

func TestSniff_SampleCutInsideQuotedRecord(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("id,note,score\n")
	for i := 1; i <= 20; i++ {
		fmt.Fprintf(&b, "%d,\"line one\nline two\",5\n", i)
	}
	// Ten lines end inside the fifth record's note.
	md := sniffString(t, b.String(), Config{SampleRows: 10})

	d := md.Dialect()
	assert.Equal(t, byte(','), d.Delimiter)
	assert.Equal(t, 3, md.NumFields())
	assert.True(t, d.HasHeader)
	assert.False(t, d.Flexible)
	assert.Zero(t, d.PreambleRows)
	assert.Equal(t, 4, md.SampleRows())
	assert.Equal(t, []infer.Type{infer.Unsigned, infer.Text, infer.Unsigned}, fieldTypes(md))
	assert.False(t, md.RecordCountExact())
}

func TestSniff_WholeInput(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("id,name\n")
	for i := 0; i < 40000; i++ {
		fmt.Fprintf(&b, "%d,name-%d\n", i, i)
	}
	in := b.String()
	require.Greater(t, len(in), 1<<19)

	md := sniffString(t, in, Config{SampleRows: -1, SampleBytes: -1})
	assert.True(t, md.RecordCountExact())
	assert.Equal(t, int64(40000), md.NumRecords())
	assert.Equal(t, 40000, md.SampleRows())

	md = sniffString(t, in, Config{SampleRows: -1, SampleBytes: 1 << 16})
	assert.False(t, md.RecordCountExact())
	assert.Less(t, md.SampleRows(), 40000)
}

func TestSniff_Idempotent(t *testing.T) {
	t.Parallel()

	in := "a;b;c\n\"x;1\";2;2024-01-01\nq;3;2024-01-02\n"
	r1 := sniffString(t, in, Config{}).Report("s")
	r2 := sniffString(t, in, Config{}).Report("s")
	assert.Equal(t, r1, r2)
}

func TestSniff_EmptyInput(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "\n", "\r\n\r\n", "   \n"} {
		md, err := Sniff(context.Background(), strings.NewReader(in), Config{})
		require.Error(t, err, "input=%q", in)
		assert.Nil(t, md)
		assert.Equal(t, InsufficientSample, KindOf(err), "input=%q", in)
		assert.ErrorIs(t, err, dialect.ErrInsufficientSample)

		var se *Error
		require.ErrorAs(t, err, &se)
		assert.Equal(t, StageDialect, se.Stage)
	}
}

func TestSniff_DelimiterRecovery(t *testing.T) {
	t.Parallel()

	for _, delim := range []byte{',', '\t', ';', '|', ':'} {
		delim := delim
		t.Run(dialect.DisplayByte(delim), func(t *testing.T) {
			t.Parallel()
			var b strings.Builder
			sep := string(delim)
			b.WriteString(strings.Join([]string{"id", "name", "amount"}, sep) + "\n")
			for i := 0; i < 20; i++ {
				b.WriteString(strings.Join([]string{fmt.Sprint(i), fmt.Sprintf("n%d", i), fmt.Sprintf("%d.25", i)}, sep) + "\n")
			}
			md := sniffString(t, b.String(), Config{})
			assert.Equal(t, delim, md.Dialect().Delimiter)
			assert.Equal(t, 3, md.NumFields())
			assert.True(t, md.Dialect().HasHeader)
			assert.Equal(t, []infer.Type{infer.Unsigned, infer.Text, infer.Float}, fieldTypes(md))
		})
	}
}

func TestSniff_Preamble(t *testing.T) {
	t.Parallel()

	md := sniffString(t, "Exported by tool\nid,name\n1,a\n2,b\n", Config{})
	d := md.Dialect()
	assert.Equal(t, 1, d.PreambleRows)
	assert.True(t, d.HasHeader)
	assert.Equal(t, "id", md.Fields()[0].Name)
	assert.Equal(t, int64(2), md.NumRecords())
}

func TestSniff_Overrides(t *testing.T) {
	t.Parallel()

	md := sniffString(t, "a|b,c\n1|2,3\n", Config{Delimiter: '|'})
	assert.Equal(t, byte('|'), md.Dialect().Delimiter)
	assert.Equal(t, 2, md.NumFields())

	_, err := Sniff(context.Background(), strings.NewReader("a,b\n"), Config{Delimiter: ';', Quote: ';'})
	assert.Equal(t, InvalidConfig, KindOf(err))

	_, err = Sniff(context.Background(), strings.NewReader("a,b\n"), Config{DatePatterns: []string{"15:04"}})
	assert.Equal(t, InvalidConfig, KindOf(err))

	_, err = Sniff(context.Background(), strings.NewReader("a,b\n"), Config{DatePreference: "martian"})
	assert.Equal(t, InvalidConfig, KindOf(err))
	assert.Error(t, Config{DatePreference: "martian"}.Validate())
	assert.NoError(t, Config{DatePreference: "eu"}.Validate())
}

func TestSniff_StrictDelimiter(t *testing.T) {
	t.Parallel()

	_, err := Sniff(context.Background(), strings.NewReader("a,b;c\n1,2;3\n"), Config{StrictDelimiter: true})
	require.Error(t, err)
	assert.Equal(t, DelimiterAmbiguous, KindOf(err))
	var amb *dialect.AmbiguousError
	require.ErrorAs(t, err, &amb)
	assert.Equal(t, []byte{',', ';'}, amb.Candidates)
}

func TestSniff_Encoding(t *testing.T) {
	t.Parallel()

	// ISO-8859-1 bytes for "José" and "München".
	in := "name,city\nJos\xe9,M\xfcnchen\nAnna,K\xf6ln\n"

	md := sniffString(t, in, Config{})
	assert.False(t, md.EncodingValid())
	assert.Equal(t, 13, md.Encoding().InvalidOffset)
	assert.Equal(t, byte(','), md.Dialect().Delimiter)
	assert.Equal(t, 2, md.NumFields())

	_, err := Sniff(context.Background(), strings.NewReader(in), Config{StrictEncoding: true})
	require.Error(t, err)
	assert.Equal(t, EncodingInvalid, KindOf(err))
	assert.ErrorIs(t, err, ErrEncodingInvalid)
	assert.Contains(t, err.Error(), "offset 13")
}

func TestSniff_DisableTypeInference(t *testing.T) {
	t.Parallel()

	md := sniffString(t, "a,b\n1,2\n3,4\n", Config{DisableTypeInference: true})
	for _, f := range md.Fields() {
		assert.Equal(t, infer.Text, f.Type)
		assert.Equal(t, "text", f.SQLType)
	}
}

func TestSniff_EstimatedRecordCount(t *testing.T) {
	t.Parallel()

	var b bytes.Buffer
	b.WriteString("id,val\n") // 7 bytes
	for i := 0; i < 10000; i++ {
		fmt.Fprintf(&b, "%05d,xyz\n", i) // 10 bytes
	}
	md, err := Sniff(context.Background(), bytes.NewReader(b.Bytes()), Config{SampleRows: 100})
	require.NoError(t, err)
	assert.False(t, md.RecordCountExact())
	assert.Equal(t, 99, md.SampleRows())
	assert.Equal(t, int64(10000), md.NumRecords())
}

// endless yields the same row forever and counts what it hands out.
type endless struct {
	row []byte
	off int
	n   int64
}

func (e *endless) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = e.row[e.off]
		e.off = (e.off + 1) % len(e.row)
	}
	e.n += int64(len(p))
	return len(p), nil
}

func TestSniff_BoundedCost(t *testing.T) {
	t.Parallel()

	src := &endless{row: []byte("1,2,3\n")}
	md, err := Sniff(context.Background(), src, Config{SampleRows: 500, SampleBytes: 64 << 10})
	require.NoError(t, err)
	assert.Equal(t, 500, md.SampleRows())
	assert.False(t, md.RecordCountExact())
	assert.Equal(t, int64(500), md.NumRecords())
	assert.LessOrEqual(t, src.n, int64(64<<10+64), "read past the sample bounds")

	src = &endless{row: []byte("1,2,3\n")}
	_, err = Sniff(context.Background(), src, Config{SampleRows: -1, SampleBytes: 4096})
	require.NoError(t, err)
	assert.LessOrEqual(t, src.n, int64(4096+64))
}

func TestSniff_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Sniff(ctx, strings.NewReader("a,b\n1,2\n"), Config{})
	require.Error(t, err)
	assert.Equal(t, IoFailure, KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestSniff_ReadError(t *testing.T) {
	t.Parallel()

	_, err := Sniff(context.Background(), io.MultiReader(strings.NewReader("a,b\n"), failingReader{}), Config{})
	require.Error(t, err)
	assert.Equal(t, IoFailure, KindOf(err))
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestSniffPath(t *testing.T) {
	t.Parallel()

	_, err := SniffPath(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), Config{})
	require.Error(t, err)
	assert.Equal(t, IoFailure, KindOf(err))
	assert.ErrorIs(t, err, fs.ErrNotExist)

	path := filepath.Join(t.TempDir(), "data.csv.gz")
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte("k\tv\nalpha\t1\nbeta\t2\n"))
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	md, err := SniffPath(context.Background(), path, Config{})
	require.NoError(t, err)
	assert.Equal(t, byte('\t'), md.Dialect().Delimiter)
	assert.Equal(t, "gzip", md.Encoding().Compression)
	assert.Equal(t, int64(2), md.NumRecords())
	assert.True(t, md.RecordCountExact())
}

func TestFingerprintMatchesSniff(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, in := range []string{
		"a,b\n1,2\n3,4\n",
		"name,city\nJos\xe9,M\xfcnchen\nAnna,K\xf6ln\n",
	} {
		md := sniffString(t, in, Config{})
		fp, err := Fingerprint(ctx, strings.NewReader(in), Config{})
		require.NoError(t, err)
		assert.Equal(t, md.Fingerprint(), fp)
	}

	other, err := Fingerprint(ctx, strings.NewReader("a,b\n1,2\n"), Config{})
	require.NoError(t, err)
	first, err := Fingerprint(ctx, strings.NewReader("a,b\n1,2\n3,4\n"), Config{})
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	// Fingerprinting never needs a dialect, so undetectable input is fine.
	_, err = Fingerprint(ctx, strings.NewReader(""), Config{})
	require.NoError(t, err)

	_, err = Fingerprint(ctx, strings.NewReader("a"), Config{Delimiter: ';', Quote: ';'})
	assert.Equal(t, InvalidConfig, KindOf(err))

	_, err = FingerprintPath(ctx, filepath.Join(t.TempDir(), "missing.csv"), Config{})
	assert.Equal(t, IoFailure, KindOf(err))
}

func TestSniffDefault(t *testing.T) {
	t.Parallel()

	md, err := SniffDefault(context.Background(), strings.NewReader("x,y\n1,2\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, md.NumFields())
}

func TestSniff_ConcurrentRunsShareConfig(t *testing.T) {
	t.Parallel()

	cfg := Config{DatePreference: "eu", NullSentinels: []string{"n/a"}}
	inputs := []string{
		"a,b\n1,02.01.2024\n2,n/a\n",
		"a;b\nx;1\ny;2\n",
		"a\tb\ntrue\t1.5\nfalse\t2\n",
	}
	want := make([]metadata.Report, len(inputs))
	for i, in := range inputs {
		want[i] = sniffString(t, in, cfg).Report("")
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i, in := range inputs {
				md, err := Sniff(context.Background(), strings.NewReader(in), cfg)
				if assert.NoError(t, err) {
					assert.Equal(t, want[i], md.Report(""))
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, infer.Date, want[0].Fields[1].Type)
	assert.Equal(t, 1, want[0].Fields[1].NullCount)
}

type recordingBackend struct {
	mu       sync.Mutex
	counters map[string]float64
	stages   map[string]string
}

func (r *recordingBackend) IncCounter(name string, delta float64, l metrics.Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name+"/"+l["status"]] += delta
}

func (r *recordingBackend) ObserveHistogram(name string, _ float64, l metrics.Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages[l["stage"]] = l["status"]
}

func TestSniff_MetricsAndLogs(t *testing.T) {
	t.Parallel()

	rb := &recordingBackend{counters: map[string]float64{}, stages: map[string]string{}}
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	in := "a,b\n1,2\n3,4\n"
	_, err := Sniff(context.Background(), strings.NewReader(in), Config{Metrics: rb, Logger: logger})
	require.NoError(t, err)

	assert.Equal(t, float64(1), rb.counters[metrics.RunsTotal+"/ok"])
	assert.Equal(t, float64(len(in)), rb.counters[metrics.BytesSampledTotal+"/"])
	assert.Equal(t, float64(3), rb.counters[metrics.RecordsSampledTotal+"/"])
	for _, st := range []string{StageSample, StageEncoding, StageDialect, StageInfer, StageAggregate, "total"} {
		assert.Equal(t, metrics.StatusOK, rb.stages[st], "stage %s", st)
	}

	var msgs []string
	for _, e := range hook.AllEntries() {
		msgs = append(msgs, e.Message)
	}
	assert.Contains(t, msgs, "dialect detected")

	_, err = Sniff(context.Background(), strings.NewReader(""), Config{Metrics: rb, Logger: logger})
	require.Error(t, err)
	assert.Equal(t, float64(1), rb.counters[metrics.RunsTotal+"/error"])
	assert.Equal(t, metrics.StatusError, rb.stages[StageDialect])
}

func TestKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "DelimiterAmbiguous", DelimiterAmbiguous.String())
	assert.Equal(t, "Kind(99)", Kind(99).String())
	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
	err := newError(IoFailure, StageOpen, fs.ErrNotExist)
	assert.Equal(t, "sniff open: file does not exist", err.Error())
}
