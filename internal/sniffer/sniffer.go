// Package sniffer is the entry point of csvsniff: it samples an input, infers
// its dialect and column types, and returns an immutable metadata report.
package sniffer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"csvsniff/internal/charset"
	"csvsniff/internal/dialect"
	"csvsniff/internal/infer"
	"csvsniff/internal/metadata"
	"csvsniff/internal/metrics"
	"csvsniff/internal/parser/csv"
	"csvsniff/internal/sample"
)

// Sniff reads a bounded sample from r and infers its metadata.
//
// Stages run in order: sample, encoding, dialect, infer, aggregate. The first
// failing stage stops the run; no partial Metadata is returned.
//
// Edge cases:
//   - An empty or blank input fails with InsufficientSample.
//   - A sample that is not valid UTF-8 is flagged in the report and, when a
//     charset can be guessed, transcoded before inference. With
//     StrictEncoding it fails with EncodingInvalid instead.
//   - Values that look like dates but share no layout make their column Text.
//
// Errors:
//   - *Error with Kind and Stage set; the cause is wrapped.
func Sniff(ctx context.Context, r io.Reader, cfg Config) (*metadata.Metadata, error) {
	start := time.Now()
	p, err := cfg.plan()
	if err != nil {
		return nil, newError(InvalidConfig, StageConfig, err)
	}

	md, err := p.run(ctx, r, cfg)
	status := metrics.StatusOK
	if err != nil {
		status = metrics.StatusError
		p.log.WithError(err).Debug("sniff failed")
	}
	p.m.IncCounter(metrics.RunsTotal, 1, metrics.Labels{"status": status})
	metrics.ObserveStage(p.m, "total", status, start)
	return md, err
}

// SniffPath opens path and sniffs it.
func SniffPath(ctx context.Context, path string, cfg Config) (*metadata.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newError(IoFailure, StageOpen, err)
	}
	defer f.Close()
	return Sniff(ctx, f, cfg)
}

// Fingerprint samples r the way Sniff would and returns the fingerprint the
// resulting Metadata would carry, without detecting a dialect or inferring
// types. Callers use it to look up stored reports.
func Fingerprint(ctx context.Context, r io.Reader, cfg Config) (string, error) {
	p, err := cfg.plan()
	if err != nil {
		return "", newError(InvalidConfig, StageConfig, err)
	}
	prep, err := p.prepare(ctx, r, cfg)
	if err != nil {
		return "", err
	}
	return metadata.Fingerprint(prep.data), nil
}

// FingerprintPath opens path and fingerprints it.
func FingerprintPath(ctx context.Context, path string, cfg Config) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", newError(IoFailure, StageOpen, err)
	}
	defer f.Close()
	return Fingerprint(ctx, f, cfg)
}

// SniffDefault sniffs r with the zero Config.
func SniffDefault(ctx context.Context, r io.Reader) (*metadata.Metadata, error) {
	return Sniff(ctx, r, Config{})
}

// stage times fn and records its outcome.
func (p *runPlan) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	status := metrics.StatusOK
	if err != nil {
		status = metrics.StatusError
	}
	metrics.ObserveStage(p.m, name, status, start)
	return err
}

// step times an infallible stage.
func (p *runPlan) step(name string, fn func()) {
	start := time.Now()
	fn()
	metrics.ObserveStage(p.m, name, metrics.StatusOK, start)
}

// prepared is a sample ready for dialect detection: read, and transcoded
// when it was not valid UTF-8 and a charset could be guessed.
type prepared struct {
	s    *sample.Sample
	data []byte
	enc  metadata.Encoding
}

func (p *runPlan) prepare(ctx context.Context, r io.Reader, cfg Config) (*prepared, error) {
	var s *sample.Sample
	err := p.stage(StageSample, func() error {
		var err error
		s, err = sample.Read(ctx, r, p.limits)
		return err
	})
	if err != nil {
		return nil, newError(IoFailure, StageSample, err)
	}
	p.m.IncCounter(metrics.BytesSampledTotal, float64(len(s.Data)), nil)
	p.log.WithFields(logrus.Fields{
		"stage":       StageSample,
		"bytes":       len(s.Data),
		"rows":        s.Lines,
		"eof":         s.EOF,
		"compression": s.Compression,
		"bom":         s.BOM.String(),
	}).Debug("sample read")

	out := &prepared{
		s:    s,
		data: s.Data,
		enc: metadata.Encoding{
			Valid:         true,
			InvalidOffset: -1,
			BOM:           s.BOM.String(),
			Compression:   string(s.Compression),
		},
	}
	err = p.stage(StageEncoding, func() error {
		v := charset.Validate(out.data)
		if v.Valid {
			return nil
		}
		out.enc.Valid, out.enc.InvalidOffset = false, v.Offset
		if cfg.StrictEncoding {
			return fmt.Errorf("%w: first invalid byte at offset %d", ErrEncodingInvalid, v.Offset)
		}
		g, ok := charset.GuessCharset(out.data)
		if !ok {
			p.log.WithField("offset", v.Offset).Warn("sample is not valid UTF-8; charset unknown")
			return nil
		}
		out.enc.Charset, out.enc.Confidence = g.Name, g.Confidence
		decoded, derr := charset.Decode(out.data, g.Name)
		if derr != nil {
			p.log.WithError(derr).WithField("charset", g.Name).Warn("could not transcode sample")
			return nil
		}
		out.data, out.enc.Decoded = decoded, true
		p.log.WithFields(logrus.Fields{
			"offset":     v.Offset,
			"charset":    g.Name,
			"confidence": g.Confidence,
		}).Warn("sample is not valid UTF-8; transcoded for inference")
		return nil
	})
	if err != nil {
		return nil, newError(EncodingInvalid, StageEncoding, err)
	}
	return out, nil
}

func (p *runPlan) run(ctx context.Context, r io.Reader, cfg Config) (*metadata.Metadata, error) {
	prep, err := p.prepare(ctx, r, cfg)
	if err != nil {
		return nil, err
	}
	s, data, enc := prep.s, prep.data, prep.enc

	var det dialect.Result
	err = p.stage(StageDialect, func() error {
		var err error
		det, err = dialect.Detect(data, dialect.Options{
			Delimiter:  cfg.Delimiter,
			Quote:      cfg.Quote,
			Strict:     cfg.StrictDelimiter,
			Truncated:  !s.EOF,
			Recognizer: p.rec,
			Logger:     p.log,
		})
		return err
	})
	if err != nil {
		return nil, newError(dialectKind(err), StageDialect, err)
	}
	d := det.Dialect
	p.m.IncCounter(metrics.RecordsSampledTotal, float64(det.Grid.Records()), nil)
	p.log.WithFields(logrus.Fields{
		"stage":        StageDialect,
		"delimiter":    dialect.DisplayByte(d.Delimiter),
		"quote":        dialect.DisplayByte(d.Quote),
		"fields":       det.NumFields,
		"flexible":     d.Flexible,
		"header":       d.HasHeader,
		"preamble":     d.PreambleRows,
		"dropped":      det.Grid.Dropped,
		"unterminated": det.Grid.Unterminated,
	}).Debug("dialect detected")

	rows := det.Grid.Rows
	lens := det.Grid.Lens
	var header []string
	var overhead int64
	if d.HasHeader && len(rows) > 0 {
		header, rows = rows[0], rows[1:]
		if len(lens) > 0 {
			overhead += int64(lens[0])
			lens = lens[1:]
		}
	}
	overhead += preambleBytes(data, det.Grid)

	var cols []infer.Resolution
	if !cfg.DisableTypeInference {
		p.step(StageInfer, func() {
			cols = inferColumns(p.rec, rows, det.NumFields)
		})
		p.log.WithFields(logrus.Fields{"stage": StageInfer, "rows": len(rows)}).Debug("types inferred")
	}

	var md *metadata.Metadata
	p.step(StageAggregate, func() {
		md = metadata.Aggregate(metadata.Input{
			Dialect:    d,
			NumFields:  det.NumFields,
			Header:     header,
			Columns:    cols,
			RecordLens: lens,
			Overhead:   overhead,
			SampleEOF:  s.EOF,
			TotalSize:  s.TotalSize,
			Encoding:   enc,
			Data:       data,
		})
	})
	return md, nil
}

// inferColumns folds each of the first width columns of rows.
func inferColumns(rec *infer.Recognizer, rows [][]string, width int) []infer.Resolution {
	cols := make([]*infer.Column, width)
	for j := range cols {
		cols[j] = infer.NewColumn(rec)
	}
	for _, row := range rows {
		for j := 0; j < width && j < len(row); j++ {
			cols[j].Add(row[j])
		}
	}
	out := make([]infer.Resolution, width)
	for j, c := range cols {
		out[j] = c.Resolve()
	}
	return out
}

// preambleBytes is the sample size not covered by post-preamble records:
// the preamble plus blank lines. A record cut at the end of the sample is
// not overhead.
func preambleBytes(data []byte, g csv.Grid) int64 {
	n := int64(len(data)) - int64(g.Cut)
	for _, l := range g.Lens {
		n -= int64(l)
	}
	return max(n, 0)
}

func dialectKind(err error) Kind {
	var amb *dialect.AmbiguousError
	switch {
	case errors.As(err, &amb):
		return DelimiterAmbiguous
	case errors.Is(err, dialect.ErrInvalidDialect):
		return InvalidConfig
	default:
		return InsufficientSample
	}
}
