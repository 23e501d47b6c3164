package csvio

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/dqm/internal/core"
)

// Output file suffixes, replacing the source's ".csv" extension.
const (
	CleanSuffix    = ".out.csv"
	BadSuffix      = ".bad.csv"
	MetadataSuffix = ".metadata.csv"
)

// Metadata file columns.
const (
	MetadataKindColumn = "Type_of_issue"
	MetadataRowsColumn = "Row_num_list"
)

// OutputPaths are the three sinks for one source file.
type OutputPaths struct {
	Clean    string
	Bad      string
	Metadata string
}

// PathsFor derives the output paths for fileID inside dir.
func PathsFor(dir, fileID string) OutputPaths {
	base := fileID
	if ext := filepath.Ext(base); strings.EqualFold(ext, ".csv") {
		base = strings.TrimSuffix(base, ext)
	}
	return OutputPaths{
		Clean:    filepath.Join(dir, base+CleanSuffix),
		Bad:      filepath.Join(dir, base+BadSuffix),
		Metadata: filepath.Join(dir, base+MetadataSuffix),
	}
}

// WriteBatch writes columns as a header followed by one row per record.
func WriteBatch(w io.Writer, columns []string, batch core.Batch, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(columns); err != nil {
			return err
		}
	}
	for _, rec := range batch {
		if err := cw.Write(rec.Cells(columns)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteClean replaces the file at path with the batch.
func WriteClean(path string, columns []string, batch core.Batch) error {
	f, err := os.Create(path)
	if err != nil {
		return &core.IOError{Op: "write", Path: path, Err: err}
	}
	werr := WriteBatch(f, columns, batch, true)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return &core.IOError{Op: "write", Path: path, Err: werr}
	}
	return nil
}

// AppendBad appends the batch to the file at path, writing the header only
// when the file is new or empty. An empty batch leaves the file untouched.
func AppendBad(path string, columns []string, batch core.Batch) error {
	if len(batch) == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return &core.IOError{Op: "write", Path: path, Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return &core.IOError{Op: "write", Path: path, Err: err}
	}

	werr := WriteBatch(f, columns, batch, info.Size() == 0)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return &core.IOError{Op: "write", Path: path, Err: werr}
	}
	return nil
}

// WriteMetadata replaces the file at path with one row per issue.
func WriteMetadata(path string, issues []core.IssueMetadata) error {
	f, err := os.Create(path)
	if err != nil {
		return &core.IOError{Op: "write", Path: path, Err: err}
	}

	cw := csv.NewWriter(f)
	werr := cw.Write([]string{MetadataKindColumn, MetadataRowsColumn})
	for _, issue := range issues {
		if werr != nil {
			break
		}
		werr = cw.Write([]string{string(issue.Kind), issue.RowList()})
	}
	cw.Flush()
	werr = errors.Join(werr, cw.Error(), f.Close())
	if werr != nil {
		return &core.IOError{Op: "write", Path: path, Err: werr}
	}
	return nil
}
