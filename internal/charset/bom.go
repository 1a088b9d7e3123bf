package charset

import (
	"bytes"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// BOM identifies a byte-order mark found at the start of an input.
type BOM int

const (
	BOMNone BOM = iota
	BOMUTF8
	BOMUTF16LE
	BOMUTF16BE
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

func (b BOM) String() string {
	switch b {
	case BOMUTF8:
		return "utf-8"
	case BOMUTF16LE:
		return "utf-16le"
	case BOMUTF16BE:
		return "utf-16be"
	default:
		return "none"
	}
}

// Len is the number of bytes the mark occupies in the raw input.
func (b BOM) Len() int {
	switch b {
	case BOMUTF8:
		return len(bomUTF8)
	case BOMUTF16LE, BOMUTF16BE:
		return 2
	default:
		return 0
	}
}

// DetectBOM inspects the leading bytes of an input.
func DetectBOM(head []byte) BOM {
	switch {
	case bytes.HasPrefix(head, bomUTF8):
		return BOMUTF8
	case bytes.HasPrefix(head, bomUTF16LE):
		return BOMUTF16LE
	case bytes.HasPrefix(head, bomUTF16BE):
		return BOMUTF16BE
	default:
		return BOMNone
	}
}

// NewUTF16Reader wraps r, which must start with a UTF-16 BOM, in a decoder that
// yields UTF-8. The BOM itself is consumed by the decoder.
func NewUTF16Reader(r io.Reader, bom BOM) io.Reader {
	order := unicode.LittleEndian
	if bom == BOMUTF16BE {
		order = unicode.BigEndian
	}
	dec := unicode.UTF16(order, unicode.ExpectBOM).NewDecoder()
	return transform.NewReader(r, dec)
}
