package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mikig28/secbrain/internal/config"
	"github.com/mikig28/secbrain/internal/logging"
	"github.com/mikig28/secbrain/internal/storage"
)

// loadConfig reads .env, the config file named by --config (or the default
// one) and SECBRAIN_* overrides, then validates the result.
func loadConfig(globals *GlobalFlags) (*config.Config, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	var (
		cfg *config.Config
		err error
	)
	if globals != nil && globals.Config != "" {
		cfg, err = config.LoadOrCreateAt(globals.Config)
	} else {
		cfg, err = config.LoadOrCreate()
	}
	if err != nil {
		return nil, err
	}

	if err := config.ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openStore opens the configured SQLite database, runs migrations, and
// returns a ready-to-use store, the underlying *sql.DB and its path.
func openStore(ctx context.Context, cfg *config.Config) (*storage.SQLiteStore, *sql.DB, string, error) {
	dbPath, err := cfg.DBPath()
	if err != nil {
		return nil, nil, "", err
	}

	db, err := storage.Open(ctx, dbPath, cfg.Storage.SQLiteJournalMode)
	if err != nil {
		return nil, nil, "", err
	}

	store, err := storage.NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, nil, "", fmt.Errorf("create store: %w", err)
	}

	return store, db, dbPath, nil
}

// openImages opens the configured image directory.
func openImages(cfg *config.Config) (*storage.FileImageStore, error) {
	dir, err := cfg.ImagesDir()
	if err != nil {
		return nil, err
	}
	return storage.NewFileImageStore(dir, cfg.Images.PublicURL)
}

// commandLogger is the logger for one-shot commands: console only, and
// quiet unless --verbose.
func commandLogger(cfg *config.Config, globals *GlobalFlags) (*zap.Logger, error) {
	lc := cfg.Logging
	lc.Level = "warn"
	verbose := globals != nil && globals.Verbose
	return logging.Setup(lc, logging.Options{Verbose: verbose})
}

// daemonURL is the base URL of the configured daemon.
func daemonURL(cfg *config.Config) string {
	host := cfg.Daemon.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Daemon.Port))
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseDuration parses a human-friendly duration string like "30d", "7d", "24h", "2w".
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("invalid duration: empty string")
	}

	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]

	n, err := strconv.Atoi(numStr)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	switch suffix {
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	default:
		return 0, fmt.Errorf("invalid duration: %q (use d, h, w, or m suffix)", s)
	}
}

// truncate shortens s to at most n runes for table output.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
