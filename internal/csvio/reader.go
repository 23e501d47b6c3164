// Package csvio reads source files into record batches and writes the
// per-file clean, bad and metadata outputs.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/JonMunkholm/dqm/internal/core"
)

// Stats describes one source read.
type Stats struct {
	Bytes   int64 // raw bytes consumed from the source
	Records int
}

// ErrNoHeader is returned for a source with no header row.
var ErrNoHeader = errors.New("no header row")

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr
}

// ReadBatch parses a headered delimited source into a batch. Record IDs are
// 0-based data-row positions. Empty cells are null.
func ReadBatch(r io.Reader) (core.Batch, Stats, error) {
	src, counter := wrapSource(r)
	cr := newCSVReader(src)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, Stats{}, ErrNoHeader
	}
	if err != nil {
		return nil, Stats{}, fmt.Errorf("read header: %w", err)
	}
	header = CleanHeader(header)

	var batch core.Batch
	for {
		cells, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, Stats{}, fmt.Errorf("record %d: %w", len(batch), err)
		}
		batch = append(batch, core.NewRecord(len(batch), header, cells))
	}

	return batch, Stats{Bytes: counter.n, Records: len(batch)}, nil
}

// ReadFile reads the file at path. Failures are wrapped in a *core.IOError.
func ReadFile(path string) (core.Batch, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, &core.IOError{Op: "read", Path: path, Err: err}
	}
	defer f.Close()

	batch, stats, err := ReadBatch(f)
	if err != nil {
		return nil, Stats{}, &core.IOError{Op: "read", Path: path, Err: err}
	}
	return batch, stats, nil
}

// HasRecords reports whether the file at path has at least one data row
// after its header. Only the first two rows are parsed.
func HasRecords(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	src, _ := wrapSource(f)
	cr := newCSVReader(src)
	for i := 0; i < 2; i++ {
		if _, err := cr.Read(); err != nil {
			if err == io.EOF {
				return false, nil
			}
			return false, err
		}
	}
	return true, nil
}

// CleanHeader normalizes header names: whitespace and spreadsheet quoting
// artifacts are removed, blank names become "Unnamed: <i>", and repeated
// names get a ".<n>" suffix so every column stays addressable.
func CleanHeader(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := cleanName(h)
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = name + "." + strconv.Itoa(n+1)
		} else {
			seen[name] = 0
		}
		out[i] = name
	}
	return out
}

// cleanName strips whitespace, an Excel ="..." formula wrapper and
// surrounding quotes.
func cleanName(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}
