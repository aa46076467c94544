// Package input resolves and reads the capture to convert.
//
// A capture comes from a named file or, when no file is given, from piped
// stdin. Rotated captures may be compressed with zstd, gzip or lz4; the
// format is detected from the leading magic bytes.
package input

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"golang.org/x/term"

	"github.com/starford/avlog/internal/apperr"
)

// StdinName is reported as the source name when reading stdin.
const StdinName = "-"

// Compression formats recognised by Decompress.
const (
	FormatPlain = "plain"
	FormatZstd  = "zstd"
	FormatGzip  = "gzip"
	FormatLZ4   = "lz4"
)

var (
	magicZstd = []byte{0x28, 0xB5, 0x2F, 0xFD}
	magicGzip = []byte{0x1F, 0x8B}
	magicLZ4  = []byte{0x04, 0x22, 0x4D, 0x18}
)

// Source is an open capture.
type Source struct {
	Name string
	r    io.Reader
	c    io.Closer
}

// Read implements io.Reader.
func (s *Source) Read(p []byte) (int, error) { return s.r.Read(p) }

// Close releases the underlying file, if any. Stdin is left open.
func (s *Source) Close() error {
	if s.c == nil {
		return nil
	}
	return s.c.Close()
}

// Open returns the file at path, or stdin when path is empty. Reading
// from stdin attached to a terminal fails with apperr.ErrNoInput.
func Open(path string, stdin *os.File) (*Source, error) {
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("input: open %s: %w", path, err)
		}
		return &Source{Name: path, r: f, c: f}, nil
	}
	if stdin == nil || term.IsTerminal(int(stdin.Fd())) {
		return nil, apperr.ErrNoInput
	}
	return &Source{Name: StdinName, r: stdin}, nil
}

// Decompress wraps r in a decoder matching its magic bytes. The returned
// release func must be called once the reader is no longer used.
func Decompress(r io.Reader) (io.Reader, string, func(), error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(magicZstd))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, "", nil, fmt.Errorf("input: peek: %w", err)
	}

	switch {
	case bytes.HasPrefix(head, magicZstd):
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, "", nil, fmt.Errorf("input: zstd: %w", err)
		}
		return dec, FormatZstd, dec.Close, nil
	case bytes.HasPrefix(head, magicGzip):
		dec, err := gzip.NewReader(br)
		if err != nil {
			return nil, "", nil, fmt.Errorf("input: gzip: %w", err)
		}
		return dec, FormatGzip, func() { _ = dec.Close() }, nil
	case bytes.HasPrefix(head, magicLZ4):
		return lz4.NewReader(br), FormatLZ4, func() {}, nil
	}
	return br, FormatPlain, func() {}, nil
}

// ReadText reads the whole capture, decompressing it if needed, and
// returns it as text. Content that is not valid UTF-8 fails with
// apperr.ErrInvalidText.
func ReadText(r io.Reader) (string, string, error) {
	dr, format, release, err := Decompress(r)
	if err != nil {
		return "", "", err
	}
	defer release()

	data, err := io.ReadAll(dr)
	if err != nil {
		return "", format, fmt.Errorf("input: read: %w", err)
	}
	if !utf8.Valid(data) {
		return "", format, apperr.ErrInvalidText
	}
	return string(data), format, nil
}
