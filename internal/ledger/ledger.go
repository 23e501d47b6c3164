// Package ledger records which source files have been fully processed.
//
// A file is marked scanned only after every output for it was written, so a
// crash or sink failure leaves it eligible for the next run. Backends are
// interchangeable behind [Ledger]; [Open] picks one from [Options].
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/dqm/internal/core"
)

// Ledger is the persistent set of scanned file identifiers.
type Ledger interface {
	// IsScanned reports whether fileID has been recorded.
	IsScanned(ctx context.Context, fileID string) (bool, error)
	// MarkScanned records fileID. Recording an existing entry is a no-op.
	MarkScanned(ctx context.Context, fileID string) error
	// List returns every recorded identifier in recording order.
	List(ctx context.Context) ([]string, error)
	Close() error
}

// Backend names.
const (
	BackendCSV      = "csv"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	// Path is the ledger file for the csv and sqlite backends.
	Path string
	// URL is the connection string for the postgres backend.
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Open returns the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (Ledger, error) {
	switch opts.Backend {
	case BackendCSV, "":
		return NewCSV(opts.Path), nil
	case BackendSQLite:
		return OpenSQLite(ctx, opts.Path)
	case BackendPostgres:
		return OpenPostgres(ctx, opts)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", opts.Backend)
	}
}

func ledgerError(path string, err error) error {
	return &core.IOError{Op: "ledger", Path: path, Err: err}
}
