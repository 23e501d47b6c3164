package pipeline

import (
	"context"
	"os"

	"github.com/JonMunkholm/dqm/internal/core"
	"github.com/JonMunkholm/dqm/internal/csvio"
)

// Sink persists one file's partition.
type Sink interface {
	Emit(ctx context.Context, fileID string, p core.Partition) error
}

// FileSink writes the clean, metadata and bad files, in that order, into Dir.
// The first failure aborts the remaining writes. The append-only bad file
// goes last so a failed emit that is retried next run does not repeat rows.
type FileSink struct {
	Dir string
}

func (s FileSink) Emit(_ context.Context, fileID string, p core.Partition) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return &core.IOError{Op: "write", Path: s.Dir, Err: err}
	}
	paths := csvio.PathsFor(s.Dir, fileID)

	cols := p.Clean.Columns()
	if len(cols) == 0 {
		cols = p.Rejected.Columns()
	}
	if err := csvio.WriteClean(paths.Clean, cols, p.Clean); err != nil {
		return err
	}
	if err := csvio.WriteMetadata(paths.Metadata, p.Issues); err != nil {
		return err
	}

	return csvio.AppendBad(paths.Bad, p.Rejected.Columns(), p.Rejected)
}
