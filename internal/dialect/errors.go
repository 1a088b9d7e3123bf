package dialect

import (
	"errors"
	"strings"
)

var (
	// ErrInsufficientSample is returned when the sample holds no records.
	ErrInsufficientSample = errors.New("insufficient sample")

	// ErrInvalidDialect is returned for overrides that break the dialect
	// invariants (e.g. delimiter equal to quote).
	ErrInvalidDialect = errors.New("invalid dialect")
)

// AmbiguousError is returned in strict mode when several delimiters explain
// the sample equally well.
type AmbiguousError struct {
	Candidates []byte
	NumFields  int
}

func (e *AmbiguousError) Error() string {
	names := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		names[i] = DisplayByte(c)
	}
	return "ambiguous delimiter: candidates " + strings.Join(names, ", ")
}
