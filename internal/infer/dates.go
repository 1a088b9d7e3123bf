package infer

import (
	"fmt"
	"math/bits"
	"strings"
	"time"
)

// MaxDatePatterns bounds DateMatcher: layout sets are tracked as a uint64 mask.
const MaxDatePatterns = 64

// Date layouts, grouped by field order. Single-digit day/month layouts ("2",
// "1") also accept zero-padded input.
var (
	isoLayouts = []string{
		"2006-01-02",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006/01/02",
	}

	dmyLayouts = []string{
		"2.1.2006",
		"2/1/2006",
		"2-1-2006",
		"2.1.2006 15:04:05",
		"2.1.2006 15:04",
		"2/1/2006 15:04:05",
		"2/1/2006 15:04",
		"2 Jan 2006",
	}

	mdyLayouts = []string{
		"1/2/2006",
		"1/2/2006 15:04:05",
		"1/2/2006 15:04",
		"1/2/2006 3:04 PM",
		"Jan 2, 2006",
	}
)

// DatePreset returns the layouts for a named preference:
//
//	auto  ISO, then day-first, then month-first
//	eu    ISO, then day-first
//	us    ISO, then month-first
//	iso   ISO only
//
// An empty name means "auto".
func DatePreset(name string) ([]string, error) {
	join := func(parts ...[]string) []string {
		var out []string
		for _, p := range parts {
			out = append(out, p...)
		}
		return out
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return join(isoLayouts, dmyLayouts, mdyLayouts), nil
	case "eu", "dmy":
		return join(isoLayouts, dmyLayouts), nil
	case "us", "mdy":
		return join(isoLayouts, mdyLayouts), nil
	case "iso":
		return join(isoLayouts), nil
	default:
		return nil, fmt.Errorf("infer: unknown date preference %q", name)
	}
}

// DateMatcher holds a compiled, ordered set of date layouts. It is immutable
// after NewDateMatcher and safe for concurrent use.
type DateMatcher struct {
	layouts []string
	kinds   []Type

	// Indexes into layouts, date-time layouts first.
	order []int
}

// NewDateMatcher compiles layouts (Go reference-time syntax) in the given order.
//
// Each layout is classified once: it is a DateTime layout when it carries a
// time of day, a Date layout otherwise.
//
// Errors:
//   - More than MaxDatePatterns layouts.
//   - A layout that does not describe a calendar date (e.g. "15:04").
func NewDateMatcher(layouts []string) (*DateMatcher, error) {
	if len(layouts) > MaxDatePatterns {
		return nil, fmt.Errorf("infer: %d date patterns exceeds limit of %d", len(layouts), MaxDatePatterns)
	}
	m := &DateMatcher{
		layouts: append([]string(nil), layouts...),
		kinds:   make([]Type, len(layouts)),
	}
	for idx, lay := range m.layouts {
		kind, err := layoutKind(lay)
		if err != nil {
			return nil, err
		}
		m.kinds[idx] = kind
	}
	for _, want := range []Type{DateTime, Date} {
		for idx, k := range m.kinds {
			if k == want {
				m.order = append(m.order, idx)
			}
		}
	}
	return m, nil
}

var layoutRef = time.Date(2001, time.February, 3, 16, 47, 59, 0, time.UTC)

func layoutKind(layout string) (Type, error) {
	got, err := time.Parse(layout, layoutRef.Format(layout))
	if err != nil || got.Year() != 2001 || got.Month() != time.February || got.Day() != 3 {
		return Text, fmt.Errorf("infer: %q is not a date layout", layout)
	}
	if got.Hour() != 0 || got.Minute() != 0 || got.Second() != 0 {
		return DateTime, nil
	}
	return Date, nil
}

// Match returns DateTime or Date with the mask of every layout of that kind
// that parses v. A value matching both kinds is DateTime. Returns (Text, 0)
// when nothing matches.
func (m *DateMatcher) Match(v string) (Type, uint64) {
	if m == nil || !plausibleDate(v) {
		return Text, 0
	}
	var mask uint64
	kind := Text
	for _, idx := range m.order {
		if kind != Text && m.kinds[idx] != kind {
			break
		}
		if _, err := time.Parse(m.layouts[idx], v); err == nil {
			mask |= 1 << uint(idx)
			kind = m.kinds[idx]
		}
	}
	return kind, mask
}

// Layout returns the highest-priority layout in mask, or "".
func (m *DateMatcher) Layout(mask uint64) string {
	if m == nil || mask == 0 {
		return ""
	}
	return m.layouts[bits.TrailingZeros64(mask)]
}

// Layouts returns a copy of the configured layouts.
func (m *DateMatcher) Layouts() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.layouts...)
}

// plausibleDate rejects values no layout can match before trying them all.
func plausibleDate(v string) bool {
	if len(v) < 6 || len(v) > 40 {
		return false
	}
	digits := 0
	for k := 0; k < len(v); k++ {
		if v[k] >= '0' && v[k] <= '9' {
			digits++
		}
	}
	return digits >= 4
}
