package sniffer

import (
	"errors"
	"fmt"
)

// Kind classifies sniff failures.
type Kind int

const (
	// IoFailure: the input could not be opened or read (or ctx was cancelled).
	IoFailure Kind = iota + 1
	// InsufficientSample: the sample holds no records.
	InsufficientSample
	// EncodingInvalid: the sample is not valid UTF-8 and StrictEncoding is set.
	EncodingInvalid
	// DelimiterAmbiguous: StrictDelimiter is set and delimiters tie.
	DelimiterAmbiguous
	// InvalidConfig: the Config cannot describe a dialect or date set.
	InvalidConfig
)

func (k Kind) String() string {
	switch k {
	case IoFailure:
		return "IoFailure"
	case InsufficientSample:
		return "InsufficientSample"
	case EncodingInvalid:
		return "EncodingInvalid"
	case DelimiterAmbiguous:
		return "DelimiterAmbiguous"
	case InvalidConfig:
		return "InvalidConfig"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Stage names, as used in errors, logs and metrics.
const (
	StageConfig    = "config"
	StageOpen      = "open"
	StageSample    = "sample"
	StageEncoding  = "encoding"
	StageDialect   = "dialect"
	StageInfer     = "infer"
	StageAggregate = "aggregate"
)

// ErrEncodingInvalid is the cause of EncodingInvalid errors.
var ErrEncodingInvalid = errors.New("sample is not valid UTF-8")

// Error is returned by Sniff for every failure. It names the stage that
// failed and wraps the cause, so errors.Is and errors.As see through it.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("sniff %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of a sniff error, or 0 when err is not one.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

func newError(kind Kind, stage string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}
