package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/dqm/internal/core"
)

// testLedger exercises the behavior every backend shares.
func testLedger(t *testing.T, l Ledger) {
	t.Helper()
	ctx := context.Background()

	ok, err := l.IsScanned(ctx, "a_20240101000000000.csv")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.MarkScanned(ctx, "a_20240101000000000.csv"))
	require.NoError(t, l.MarkScanned(ctx, "b_20240101000000000.csv"))
	require.NoError(t, l.MarkScanned(ctx, "a_20240101000000000.csv"))

	ok, err = l.IsScanned(ctx, "a_20240101000000000.csv")
	require.NoError(t, err)
	assert.True(t, ok)

	ids, err := l.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a_20240101000000000.csv", "b_20240101000000000.csv"}, ids)
}

func TestMemory(t *testing.T) {
	testLedger(t, NewMemory())
}

func TestCSV(t *testing.T) {
	testLedger(t, NewCSV(filepath.Join(t.TempDir(), "state", "scanned.csv")))
}

func TestSQLite(t *testing.T) {
	l, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	testLedger(t, l)
}

func TestSQLite_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	l, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, l.MarkScanned(ctx, "x.csv"))
	require.NoError(t, l.Close())

	l, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer l.Close()

	ok, err := l.IsScanned(ctx, "x.csv")
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestPostgres runs against a real database when DQM_TEST_DATABASE_URL is set.
func TestPostgres(t *testing.T) {
	url := os.Getenv("DQM_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("DQM_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	l, err := OpenPostgres(ctx, Options{URL: url, MaxConns: 2})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = l.pool.Exec(ctx, `DROP TABLE IF EXISTS scanned_files`)
		l.Close()
	})
	_, err = l.pool.Exec(ctx, `TRUNCATE scanned_files`)
	require.NoError(t, err)

	testLedger(t, l)
}

func TestCSV_OriginalFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scanned.csv")
	require.NoError(t, os.WriteFile(path, []byte("files_scanned\nx.csv\n\ny.csv\nx.csv\n"), 0o644))
	l := NewCSV(path)

	ids, err := l.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"x.csv", "y.csv"}, ids)

	require.NoError(t, l.MarkScanned(context.Background(), "z.csv"))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "files_scanned\nx.csv\n\ny.csv\nx.csv\nz.csv\n", string(b))
}

func TestCSV_MissingFileIsEmpty(t *testing.T) {
	l := NewCSV(filepath.Join(t.TempDir(), "none.csv"))

	ok, err := l.IsScanned(context.Background(), "x.csv")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCSV_WrongHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scanned.csv")
	require.NoError(t, os.WriteFile(path, []byte("file\nx.csv\n"), 0o644))

	_, err := NewCSV(path).IsScanned(context.Background(), "x.csv")

	var ioErr *core.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "IO003", core.ErrorCode(err))
}

func TestMarkScanned_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := NewMemory()
	require.Error(t, l.MarkScanned(ctx, "x.csv"))

	ok, _ := l.IsScanned(context.Background(), "x.csv")
	assert.False(t, ok)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	l, err := Open(ctx, Options{Backend: BackendCSV, Path: filepath.Join(dir, "s.csv")})
	require.NoError(t, err)
	assert.IsType(t, &CSV{}, l)

	l, err = Open(ctx, Options{Backend: BackendSQLite, Path: filepath.Join(dir, "s.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, l)
	l.Close()

	l, err = Open(ctx, Options{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, l)

	_, err = Open(ctx, Options{Backend: "redis"})
	assert.Error(t, err)
}

func TestCSV_MarkScannedAfterUnterminatedLine(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"last entry unterminated", "files_scanned\na.csv", []string{"a.csv", "b.csv"}},
		{"header unterminated", "files_scanned", []string{"b.csv"}},
		{"crlf terminated", "files_scanned\r\na.csv\r\n", []string{"a.csv", "b.csv"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "scanned.csv")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			l := NewCSV(path)

			require.NoError(t, l.MarkScanned(ctx, "b.csv"))

			ids, err := l.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids)

			for _, id := range tt.want {
				ok, err := l.IsScanned(ctx, id)
				require.NoError(t, err)
				assert.True(t, ok, id)
			}
		})
	}
}

func TestCSV_IDsMatchExactly(t *testing.T) {
	ctx := context.Background()
	l := NewCSV(filepath.Join(t.TempDir(), "scanned.csv"))

	require.NoError(t, l.MarkScanned(ctx, " x.csv"))

	ok, err := l.IsScanned(ctx, " x.csv")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.IsScanned(ctx, "x.csv")
	require.NoError(t, err)
	assert.False(t, ok)

	ids, err := l.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{" x.csv"}, ids)
}
