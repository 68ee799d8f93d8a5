package cli

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mikig28/secbrain/internal/storage"
)

// captureOutput captures stdout during fn execution and returns it as a string.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

// openTestStore creates a migrated SQLite store in a temp dir.
func openTestStore(t *testing.T) (*storage.SQLiteStore, *sql.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secbrain.db")
	db, err := storage.Open(context.Background(), path, "wal")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := storage.NewSQLiteStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, db, path
}

// writeTestConfig writes a config file whose data lives in a temp dir and
// whose daemon port has nothing listening.
func writeTestConfig(t *testing.T) (configPath, dataDir string) {
	t.Helper()
	dataDir = t.TempDir()
	configPath = filepath.Join(dataDir, "config.yaml")
	content := fmt.Sprintf("storage:\n  path: %s\ndaemon:\n  host: 127.0.0.1\n  port: 1\nlogging:\n  file: \"\"\n", dataDir)
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return configPath, dataDir
}
