package sniffer

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"csvsniff/internal/infer"
	"csvsniff/internal/metrics"
	"csvsniff/internal/sample"
)

// DefaultSampleRows is the line limit used when Config.SampleRows is zero.
const DefaultSampleRows = 1000

// Config controls a sniff run. The zero value sniffs with defaults. Sniff
// never modifies it, so one Config may serve concurrent runs.
type Config struct {
	// SampleRows caps the sample in lines. If zero, DefaultSampleRows.
	// Negative means no line cap (the byte cap still applies).
	SampleRows int

	// SampleBytes caps the sample in bytes. If zero, sample.DefaultBytes.
	// Negative means no byte cap; with SampleRows also negative the whole
	// input is sampled.
	SampleBytes int

	// Delimiter and Quote, when non-zero, skip detection.
	Delimiter byte
	Quote     byte

	// DatePatterns are Go time layouts tried in order. When empty, the
	// layouts of DatePreference are used.
	DatePatterns []string

	// DatePreference names a layout preset: auto (default), eu, us or iso.
	DatePreference string

	// NullSentinels are values read as Null. If nil, infer.DefaultNullSentinels.
	NullSentinels []string

	// DisableTypeInference reports every field as Text.
	DisableTypeInference bool

	// StrictEncoding makes an invalid UTF-8 sample an EncodingInvalid error
	// instead of a flag in the report.
	StrictEncoding bool

	// StrictDelimiter makes a tie between equally good delimiters a
	// DelimiterAmbiguous error instead of resolving it by priority.
	StrictDelimiter bool

	// Logger receives stage progress at debug level. If nil, logs are
	// discarded.
	Logger logrus.FieldLogger

	// Metrics receives run counters and stage durations. If nil, none.
	Metrics metrics.Backend
}

// Validate checks the overrides and date settings.
func (c Config) Validate() error {
	_, err := c.plan()
	return err
}

// runPlan is the per-run state compiled from a Config.
type runPlan struct {
	limits sample.Limits
	rec    *infer.Recognizer
	log    logrus.FieldLogger
	m      metrics.Backend
}

func (c Config) plan() (*runPlan, error) {
	switch {
	case c.Delimiter != 0 && c.Delimiter == c.Quote:
		return nil, fmt.Errorf("delimiter and quote are both %q", c.Delimiter)
	case c.Delimiter == '\n' || c.Delimiter == '\r':
		return nil, fmt.Errorf("delimiter cannot be a line terminator")
	case c.Quote == '\n' || c.Quote == '\r':
		return nil, fmt.Errorf("quote cannot be a line terminator")
	}

	layouts := c.DatePatterns
	if len(layouts) == 0 {
		var err error
		if layouts, err = infer.DatePreset(c.DatePreference); err != nil {
			return nil, err
		}
	}
	dates, err := infer.NewDateMatcher(layouts)
	if err != nil {
		return nil, err
	}

	rows := c.SampleRows
	switch {
	case rows == 0:
		rows = DefaultSampleRows
	case rows < 0:
		rows = 0
	}

	log := c.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	return &runPlan{
		limits: sample.Limits{Rows: rows, Bytes: c.SampleBytes},
		rec:    infer.NewRecognizer(c.NullSentinels, dates),
		log:    log,
		m:      metrics.OrNop(c.Metrics),
	}, nil
}
