package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/dqm/internal/core"
	"github.com/JonMunkholm/dqm/internal/csvio"
	"github.com/JonMunkholm/dqm/internal/ledger"
)

// Discover lists the files in dir that a run should process, in name order:
// regular files with a .csv extension (any case) that the ledger has not
// recorded and that hold at least one data row. Files named like pipeline
// outputs are ignored. A file whose ledger lookup fails is skipped for this run.
func Discover(ctx context.Context, dir string, l ledger.Ledger, logger *slog.Logger) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &core.IOError{Op: "read", Path: dir, Err: err}
	}

	var files []string
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), ".csv") || isOutput(name) {
			continue
		}

		scanned, err := l.IsScanned(ctx, name)
		if err != nil {
			logger.ErrorContext(ctx, "ledger lookup failed, skipping file",
				"file", name, "error", err, "code", core.ErrorCode(err))
			continue
		}
		if scanned {
			logger.DebugContext(ctx, "already scanned", "file", name)
			continue
		}

		ok, err := csvio.HasRecords(filepath.Join(dir, name))
		if err != nil {
			logger.WarnContext(ctx, "unreadable file, skipping", "file", name, "error", err)
			continue
		}
		if !ok {
			logger.InfoContext(ctx, "no records, skipping", "file", name)
			continue
		}

		files = append(files, name)
	}
	return files, nil
}

func isOutput(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range []string{csvio.CleanSuffix, csvio.BadSuffix, csvio.MetadataSuffix} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
