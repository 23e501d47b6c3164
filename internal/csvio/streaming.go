package csvio

// streaming.go cleans source bytes before they reach the CSV parser.
//
// Upstream exports come from a mix of tools: some prefix a UTF-8 BOM, some
// carry stray Latin-1 bytes. Both are handled in a single pass without
// loading the file into memory:
//
//   - the BOM (0xEF 0xBB 0xBF) is dropped if it is the first thing in the file
//   - invalid UTF-8 bytes are replaced with '?'
//   - bytes consumed from the source are counted for run statistics

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// replacementByte stands in for each invalid byte. A single byte keeps the
// output no longer than the input.
const replacementByte = '?'

// countingReader tracks bytes read from the underlying source.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// sanitizer re-encodes its source rune by rune, replacing invalid bytes.
type sanitizer struct {
	br *bufio.Reader
	// encoded bytes of a rune that did not fit the previous Read
	pending []byte
}

// newSanitizer wraps r, skipping a leading BOM.
func newSanitizer(r io.Reader) *sanitizer {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return &sanitizer{br: br}
}

// Read implements io.Reader.
func (s *sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]

	var buf [utf8.UTFMax]byte
	for n < len(p) {
		r, size, err := s.br.ReadRune()
		if err != nil {
			if n > 0 && err == io.EOF {
				return n, nil
			}
			return n, err
		}

		var enc []byte
		if r == utf8.RuneError && size == 1 {
			buf[0] = replacementByte
			enc = buf[:1]
		} else {
			enc = buf[:utf8.EncodeRune(buf[:], r)]
		}

		c := copy(p[n:], enc)
		n += c
		if c < len(enc) {
			s.pending = append(s.pending[:0], enc[c:]...)
		}
	}
	return n, nil
}

// wrapSource applies byte counting, BOM skipping and sanitization, in that
// order, so the count reflects the raw file.
func wrapSource(r io.Reader) (io.Reader, *countingReader) {
	c := &countingReader{r: r}
	return newSanitizer(c), c
}
