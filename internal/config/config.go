package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Default config file path.
const DefaultConfigPath = "~/.config/secbrain/config.yaml"

// Config holds all secbrain configuration.
type Config struct {
	Session SessionConfig `yaml:"session"`
	Storage StorageConfig `yaml:"storage"`
	Images  ImagesConfig  `yaml:"images"`
	Daemon  DaemonConfig  `yaml:"daemon"`
	Logging LoggingConfig `yaml:"logging"`
}

// SessionConfig controls the WhatsApp Web automation session and the poller.
type SessionConfig struct {
	TargetAddress         string `yaml:"target_address"`
	PollIntervalMs        int    `yaml:"poll_interval_ms"`
	ConnectionTimeoutMs   int    `yaml:"connection_timeout_ms"`
	LoginTimeoutMs        int    `yaml:"login_timeout_ms"`
	ChatDetectionAttempts int    `yaml:"chat_detection_attempts"`
	ChatDetectionDelayMs  int    `yaml:"chat_detection_delay_ms"`
	RequireOpenChat       bool   `yaml:"require_open_chat"`
	IngestBacklog         bool   `yaml:"ingest_backlog"`
	MaxReconnectAttempts  int    `yaml:"max_reconnect_attempts"`
	Headless              bool   `yaml:"headless"`
	UserDataDir           string `yaml:"user_data_dir"`
	ChromePath            string `yaml:"chrome_path"`
}

type StorageConfig struct {
	Path              string `yaml:"path"`
	SQLiteFile        string `yaml:"sqlite_file"`
	SQLiteJournalMode string `yaml:"sqlite_journal_mode"`
}

type ImagesConfig struct {
	Dir       string `yaml:"dir"`
	PublicURL string `yaml:"public_url"`
}

type DaemonConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	MaxRequestSize int    `yaml:"max_request_size"`
}

type LoggingConfig struct {
	Mode       string `yaml:"mode"`
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// Error reports an invalid configuration value.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// PollInterval returns the poll interval as a duration.
func (s SessionConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}

func (s SessionConfig) ConnectionTimeout() time.Duration {
	return time.Duration(s.ConnectionTimeoutMs) * time.Millisecond
}

func (s SessionConfig) LoginTimeout() time.Duration {
	return time.Duration(s.LoginTimeoutMs) * time.Millisecond
}

func (s SessionConfig) ChatDetectionDelay() time.Duration {
	return time.Duration(s.ChatDetectionDelayMs) * time.Millisecond
}

// Validate checks values that would otherwise fail late, inside the poller
// or the server.
func (c *Config) Validate() error {
	switch {
	case c.Session.TargetAddress == "":
		return &Error{Field: "session.target_address", Reason: "must not be empty"}
	case c.Session.PollIntervalMs <= 0:
		return &Error{Field: "session.poll_interval_ms", Reason: "must be positive"}
	case c.Session.ConnectionTimeoutMs <= 0:
		return &Error{Field: "session.connection_timeout_ms", Reason: "must be positive"}
	case c.Session.ChatDetectionAttempts <= 0:
		return &Error{Field: "session.chat_detection_attempts", Reason: "must be positive"}
	case c.Session.ChatDetectionDelayMs < 0:
		return &Error{Field: "session.chat_detection_delay_ms", Reason: "must not be negative"}
	case c.Session.MaxReconnectAttempts < 0:
		return &Error{Field: "session.max_reconnect_attempts", Reason: "must not be negative"}
	case c.Storage.SQLiteFile == "":
		return &Error{Field: "storage.sqlite_file", Reason: "must not be empty"}
	case c.Daemon.Port <= 0 || c.Daemon.Port > 65535:
		return &Error{Field: "daemon.port", Reason: fmt.Sprintf("%d is out of range", c.Daemon.Port)}
	}
	return nil
}

// DataDir returns the expanded storage directory.
func (c *Config) DataDir() (string, error) {
	return expandPath(c.Storage.Path)
}

// DBPath returns the absolute path of the SQLite database file.
func (c *Config) DBPath() (string, error) {
	dir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.Storage.SQLiteFile), nil
}

// ImagesDir returns the image directory. Relative paths are resolved
// against the storage directory.
func (c *Config) ImagesDir() (string, error) {
	return c.resolve(c.Images.Dir)
}

// LogPath returns the log file path, or "" when file logging is disabled.
func (c *Config) LogPath() (string, error) {
	if c.Logging.File == "" {
		return "", nil
	}
	return c.resolve(c.Logging.File)
}

// BrowserDataDir returns the expanded browser profile directory.
func (c *Config) BrowserDataDir() (string, error) {
	return c.resolve(c.Session.UserDataDir)
}

func (c *Config) resolve(p string) (string, error) {
	p, err := expandPath(p)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(p) {
		return p, nil
	}
	dir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, p), nil
}

// Load reads a YAML config file at path and merges it with defaults.
// Returns an error if the file cannot be read or contains invalid YAML.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// expandPath replaces a leading ~ with the user's home directory.
func expandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// LoadOrCreate loads the config from the default path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreate() (*Config, error) {
	path, err := expandPath(DefaultConfigPath)
	if err != nil {
		return nil, err
	}
	return LoadOrCreateAt(path)
}

// LoadOrCreateAt loads the config from the given path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreateAt(path string) (*Config, error) {
	path, err := expandPath(path)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()

		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating config directory: %w", err)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshaling default config: %w", err)
		}

		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}

		return cfg, nil
	}

	return Load(path)
}
