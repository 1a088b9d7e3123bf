// Package sample reads the bounded prefix of a CSV input that the sniffer
// analyzes.
//
// A sample is bounded by a line count and by a byte count, whichever is hit
// first. Gzip and xz inputs are decompressed transparently, a UTF-8 BOM is
// stripped and UTF-16 inputs (BOM required) are transcoded to UTF-8.
package sample

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/ulikunitz/xz"

	"csvsniff/internal/charset"
)

const (
	// DefaultBytes caps a sample when Limits.Bytes is zero.
	DefaultBytes = 1 << 20

	// readBufSize is the line reader buffer. A single line longer than this is
	// still read correctly; it only affects read granularity.
	readBufSize = 32 << 10

	// headBufSize is the smallest bufio buffer; used for magic/BOM peeks so the
	// peek itself consumes almost nothing beyond the byte cap.
	headBufSize = 16
)

// Compression names a container format detected from magic bytes.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionXZ   Compression = "xz"
)

var (
	magicGzip = []byte{0x1f, 0x8b}
	magicXZ   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

// Limits bounds a sample.
type Limits struct {
	// Rows is the maximum number of physical lines. Zero means no line limit.
	Rows int
	// Bytes is the maximum number of (decoded) bytes. If zero, DefaultBytes.
	// Negative means no byte limit.
	Bytes int
}

// Sample is the bounded prefix of an input.
type Sample struct {
	// Data holds complete lines only (a trailing partial line is dropped unless
	// the input ended there). Encoding has been normalized to UTF-8 when a
	// UTF-16 BOM was present; otherwise bytes are untouched.
	Data []byte

	// Lines is the number of physical lines in Data.
	Lines int

	// EOF is true when Data is the whole input.
	EOF bool

	// TotalSize is the size in bytes of the (decoded) input, or -1 when it
	// cannot be known without reading everything (pipes, compressed streams,
	// transcoded streams).
	TotalSize int64

	Compression Compression
	BOM         charset.BOM
}

// Read draws a sample from r.
//
// When to use:
//   - Call once per sniff run with a freshly opened reader. r is consumed from
//     its current position.
//
// Edge cases:
//   - An empty stream yields a Sample with zero lines and EOF=true.
//   - A line longer than the byte cap is never partially included.
//   - Raw consumption from r stays within Limits.Bytes plus a few bytes of
//     peek buffering for uncompressed inputs.
//   - With no limit at all (Rows zero, Bytes negative) the whole input is
//     read.
//
// Errors:
//   - Returns the underlying I/O or decompression error, wrapped.
//   - Returns ctx.Err() if ctx is cancelled between lines.
func Read(ctx context.Context, r io.Reader, lim Limits) (*Sample, error) {
	maxBytes := lim.Bytes
	switch {
	case maxBytes == 0:
		maxBytes = DefaultBytes
	case maxBytes < 0:
		maxBytes = math.MaxInt - 1
	}

	s := &Sample{TotalSize: sizeHint(r), Compression: CompressionNone}

	head := bufio.NewReaderSize(r, headBufSize)
	magic, err := head.Peek(len(magicXZ))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("sample: peek: %w", err)
	}

	var src io.Reader = head
	switch {
	case bytes.HasPrefix(magic, magicGzip):
		zr, err := gzip.NewReader(head)
		if err != nil {
			return nil, fmt.Errorf("sample: gzip: %w", err)
		}
		defer zr.Close()
		src = zr
		s.Compression = CompressionGzip
		s.TotalSize = -1
	case bytes.HasPrefix(magic, magicXZ):
		xr, err := xz.NewReader(head)
		if err != nil {
			return nil, fmt.Errorf("sample: xz: %w", err)
		}
		src = xr
		s.Compression = CompressionXZ
		s.TotalSize = -1
	}

	pre := bufio.NewReaderSize(src, headBufSize)
	lead, err := pre.Peek(3)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("sample: peek: %w", err)
	}
	src = pre
	switch s.BOM = charset.DetectBOM(lead); s.BOM {
	case charset.BOMUTF8:
		if _, err := pre.Discard(s.BOM.Len()); err != nil {
			return nil, fmt.Errorf("sample: bom: %w", err)
		}
		if s.TotalSize > 0 {
			s.TotalSize -= int64(s.BOM.Len())
		}
	case charset.BOMUTF16LE, charset.BOMUTF16BE:
		src = charset.NewUTF16Reader(pre, s.BOM)
		s.TotalSize = -1
	}

	// One byte past the cap distinguishes "input ended at the cap" from
	// "cap reached".
	lr := &io.LimitedReader{R: src, N: int64(maxBytes) + 1}
	br := bufio.NewReaderSize(lr, readBufSize)

	buf := make([]byte, 0, min(maxBytes, readBufSize))
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if lim.Rows > 0 && s.Lines >= lim.Rows {
			if _, err := br.Peek(1); errors.Is(err, io.EOF) && lr.N > 0 {
				s.EOF = true
			}
			break
		}

		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			complete := line[len(line)-1] == '\n'
			atRealEOF := errors.Is(err, io.EOF) && lr.N > 0
			if (complete || atRealEOF) && len(buf)+len(line) <= maxBytes {
				buf = append(buf, line...)
				s.Lines++
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("sample: read: %w", err)
			}
			s.EOF = lr.N > 0
			break
		}
	}

	s.Data = buf
	if s.EOF && s.TotalSize < 0 {
		s.TotalSize = int64(len(buf))
	}
	return s, nil
}

// sizeHint returns the number of bytes remaining in r, or -1.
func sizeHint(r io.Reader) int64 {
	if f, ok := r.(*os.File); ok {
		fi, err := f.Stat()
		if err != nil || !fi.Mode().IsRegular() {
			return -1
		}
		cur, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			return fi.Size()
		}
		return fi.Size() - cur
	}
	if sk, ok := r.(io.Seeker); ok {
		cur, err := sk.Seek(0, io.SeekCurrent)
		if err != nil {
			return -1
		}
		end, err := sk.Seek(0, io.SeekEnd)
		if err != nil {
			return -1
		}
		if _, err := sk.Seek(cur, io.SeekStart); err != nil {
			return -1
		}
		return end - cur
	}
	return -1
}
