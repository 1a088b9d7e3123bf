package charset

import (
	"fmt"
	"strings"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// Guess is a charset detection result for a sample that is not valid UTF-8.
type Guess struct {
	// Name is the IANA-ish charset name reported by the detector (e.g. "ISO-8859-1").
	Name string
	// Confidence is the detector's score in [0, 100].
	Confidence int
}

// GuessCharset runs statistical charset detection over b.
//
// Edge cases:
//   - Empty input returns ok=false.
//   - A detector result of UTF-8 is discarded: the caller only asks when
//     validation already failed, so that answer carries no information.
func GuessCharset(b []byte) (Guess, bool) {
	if len(b) == 0 {
		return Guess{}, false
	}
	res, err := chardet.NewTextDetector().DetectBest(b)
	if err != nil || res == nil || res.Charset == "" {
		return Guess{}, false
	}
	if strings.EqualFold(res.Charset, "UTF-8") {
		return Guess{}, false
	}
	return Guess{Name: res.Charset, Confidence: res.Confidence}, true
}

// Decode transcodes b from the named charset into UTF-8.
//
// Errors:
//   - Returns an error when the name is unknown to the WHATWG encoding index
//     or when the decoder rejects the input.
func Decode(b []byte, name string) ([]byte, error) {
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("charset %q: %w", name, err)
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), b)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return out, nil
}
