package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLite keeps the ledger in a scanned_files table of a SQLite database.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (or creates) the database at path and migrates it.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	l := &SQLite{db: db, path: path}
	if err := l.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return l, nil
}

func (l *SQLite) migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS scanned_files (
		file_id    TEXT PRIMARY KEY,
		scanned_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

func (l *SQLite) IsScanned(ctx context.Context, fileID string) (bool, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scanned_files WHERE file_id = ?`, fileID).Scan(&n)
	if err != nil {
		return false, ledgerError(l.path, err)
	}
	return n > 0, nil
}

func (l *SQLite) MarkScanned(ctx context.Context, fileID string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO scanned_files (file_id) VALUES (?)`, fileID)
	if err != nil {
		return ledgerError(l.path, err)
	}
	return nil
}

func (l *SQLite) List(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT file_id FROM scanned_files ORDER BY rowid`)
	if err != nil {
		return nil, ledgerError(l.path, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, ledgerError(l.path, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, ledgerError(l.path, err)
	}
	return ids, nil
}

func (l *SQLite) Close() error {
	return l.db.Close()
}
