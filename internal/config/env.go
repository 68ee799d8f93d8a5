package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "SECBRAIN_"

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none
// are given) into the process environment. Missing files are ignored and
// variables already set in the environment win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

type envBinding struct {
	name  string
	apply func(cfg *Config, v string) error
}

var envBindings = []envBinding{
	{"TARGET_ADDRESS", func(c *Config, v string) error { c.Session.TargetAddress = v; return nil }},
	{"POLL_INTERVAL_MS", intField("session.poll_interval_ms", func(c *Config) *int { return &c.Session.PollIntervalMs })},
	{"CONNECTION_TIMEOUT_MS", intField("session.connection_timeout_ms", func(c *Config) *int { return &c.Session.ConnectionTimeoutMs })},
	{"LOGIN_TIMEOUT_MS", intField("session.login_timeout_ms", func(c *Config) *int { return &c.Session.LoginTimeoutMs })},
	{"CHAT_DETECTION_ATTEMPTS", intField("session.chat_detection_attempts", func(c *Config) *int { return &c.Session.ChatDetectionAttempts })},
	{"REQUIRE_OPEN_CHAT", boolField("session.require_open_chat", func(c *Config) *bool { return &c.Session.RequireOpenChat })},
	{"HEADLESS", boolField("session.headless", func(c *Config) *bool { return &c.Session.Headless })},
	{"USER_DATA_DIR", func(c *Config, v string) error { c.Session.UserDataDir = v; return nil }},
	{"CHROME_PATH", func(c *Config, v string) error { c.Session.ChromePath = v; return nil }},
	{"DATA_DIR", func(c *Config, v string) error { c.Storage.Path = v; return nil }},
	{"IMAGES_DIR", func(c *Config, v string) error { c.Images.Dir = v; return nil }},
	{"DAEMON_PORT", intField("daemon.port", func(c *Config) *int { return &c.Daemon.Port })},
	{"LOG_LEVEL", func(c *Config, v string) error { c.Logging.Level = v; return nil }},
}

// ApplyEnv overrides cfg with SECBRAIN_* variables found through lookup.
// Pass os.LookupEnv for the process environment.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, b := range envBindings {
		v, ok := lookup(EnvPrefix + b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(cfg, v); err != nil {
			return err
		}
	}
	return nil
}

func intField(field string, ptr func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &Error{Field: field, Reason: "not an integer: " + strconv.Quote(v)}
		}
		*ptr(c) = n
		return nil
	}
}

func boolField(field string, ptr func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &Error{Field: field, Reason: "not a boolean: " + strconv.Quote(v)}
		}
		*ptr(c) = b
		return nil
	}
}
