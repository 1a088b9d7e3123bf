// Package charset validates and normalizes the character encoding of sampled
// CSV bytes.
//
// Validation is UTF-8 only. Inputs that fail validation are still sniffed; the
// report carries the first invalid offset and, when possible, a guessed
// charset so callers can re-encode the file before loading it.
package charset

import (
	"encoding/binary"
	"math/bits"
)

// Result is the outcome of a UTF-8 validation pass.
type Result struct {
	// Valid is true when the whole buffer is well-formed UTF-8.
	Valid bool
	// Offset is the byte offset of the first invalid sequence, or -1 when Valid.
	Offset int
}

const asciiMask = 0x8080808080808080

// Validate reports whether b is well-formed UTF-8.
//
// Runs of ASCII are skipped eight bytes at a time; any word carrying a high
// bit falls back to the scalar sequence decoder at the first non-ASCII byte.
// The result is identical to validateScalar for every input.
func Validate(b []byte) Result {
	i := 0
	n := len(b)
	for i < n {
		if i+8 <= n {
			w := binary.LittleEndian.Uint64(b[i:])
			if w&asciiMask == 0 {
				i += 8
				continue
			}
			// Jump to the first byte with the high bit set.
			i += bits.TrailingZeros64(w&asciiMask) / 8
		}
		c := b[i]
		if c < 0x80 {
			i++
			continue
		}
		w := seqLen(b, i)
		if w == 0 {
			return Result{Valid: false, Offset: i}
		}
		i += w
	}
	return Result{Valid: true, Offset: -1}
}

// validateScalar is the byte-at-a-time reference for Validate.
func validateScalar(b []byte) Result {
	for i := 0; i < len(b); {
		if b[i] < 0x80 {
			i++
			continue
		}
		w := seqLen(b, i)
		if w == 0 {
			return Result{Valid: false, Offset: i}
		}
		i += w
	}
	return Result{Valid: true, Offset: -1}
}

// seqLen returns the width of the well-formed multi-byte sequence starting at
// b[i], or 0 when the sequence is ill-formed or truncated.
//
// Byte ranges follow Unicode table 3-7: overlongs, surrogates and code points
// above U+10FFFF are rejected.
func seqLen(b []byte, i int) int {
	c := b[i]
	var width int
	lo, hi := byte(0x80), byte(0xBF)
	switch {
	case c >= 0xC2 && c <= 0xDF:
		width = 2
	case c == 0xE0:
		width, lo = 3, 0xA0
	case c >= 0xE1 && c <= 0xEC, c == 0xEE, c == 0xEF:
		width = 3
	case c == 0xED:
		width, hi = 3, 0x9F
	case c == 0xF0:
		width, lo = 4, 0x90
	case c >= 0xF1 && c <= 0xF3:
		width = 4
	case c == 0xF4:
		width, hi = 4, 0x8F
	default:
		return 0
	}
	if i+width > len(b) {
		return 0
	}
	if b[i+1] < lo || b[i+1] > hi {
		return 0
	}
	for k := 2; k < width; k++ {
		if b[i+k] < 0x80 || b[i+k] > 0xBF {
			return 0
		}
	}
	return width
}
