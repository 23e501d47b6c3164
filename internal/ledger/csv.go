package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// CSVColumn is the single column of the CSV ledger file.
const CSVColumn = "files_scanned"

// CSV keeps the ledger as a one-column delimited file. The file is re-read on
// every query, so entries added or removed by hand take effect immediately.
type CSV struct {
	path string
	mu   sync.Mutex
}

// NewCSV returns a ledger backed by the file at path. The file is created on
// the first MarkScanned; a missing file is an empty ledger.
func NewCSV(path string) *CSV {
	return &CSV{path: path}
}

// Path returns the ledger file location.
func (l *CSV) Path() string { return l.path }

func (l *CSV) IsScanned(_ context.Context, fileID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids, err := l.read()
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == fileID {
			return true, nil
		}
	}
	return false, nil
}

func (l *CSV) MarkScanned(ctx context.Context, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	ids, err := l.read()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == fileID {
			return nil
		}
	}

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ledgerError(l.path, err)
		}
	}
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return ledgerError(l.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return ledgerError(l.path, err)
	}

	cw := csv.NewWriter(f)
	if info.Size() == 0 {
		_ = cw.Write([]string{CSVColumn})
	} else if err := terminateLine(f, info.Size()); err != nil {
		f.Close()
		return ledgerError(l.path, err)
	}
	_ = cw.Write([]string{fileID})
	cw.Flush()
	if err := errors.Join(cw.Error(), f.Close()); err != nil {
		return ledgerError(l.path, err)
	}
	return nil
}

// terminateLine appends a newline when a hand-edited file lacks a final one,
// so the next entry starts on its own row.
func terminateLine(f *os.File, size int64) error {
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	_, err := f.Write([]byte{'\n'})
	return err
}

func (l *CSV) List(_ context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read()
}

func (l *CSV) Close() error { return nil }

// read loads every identifier under the files_scanned column.
func (l *CSV) read() ([]string, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, ledgerError(l.path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, ledgerError(l.path, err)
	}
	col := -1
	for i, h := range header {
		if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == CSVColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, ledgerError(l.path, errors.New("missing column "+CSVColumn))
	}

	var ids []string
	seen := make(map[string]bool)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ledgerError(l.path, err)
		}
		if col >= len(row) {
			continue
		}
		id := row[col]
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}
