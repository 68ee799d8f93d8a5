package poller

import (
	"time"

	"github.com/mikig28/secbrain/internal/config"
)

// Config controls connection, chat detection and the poll schedule.
type Config struct {
	TargetAddress         string
	PollInterval          time.Duration
	ConnectionTimeout     time.Duration
	ChatDetectionAttempts int
	ChatDetectionDelay    time.Duration
	// RequireOpenChat makes a missing conversation panel fatal to Start.
	RequireOpenChat bool
	// IngestBacklog skips priming the seen-set with ids already on screen.
	IngestBacklog bool
	// MaxReconnectAttempts is the number of consecutive failed reconnects
	// after which the poller terminates. Zero retries forever.
	MaxReconnectAttempts int
}

// FromSession builds a Config from the session section of the config file.
func FromSession(s config.SessionConfig) Config {
	return Config{
		TargetAddress:         s.TargetAddress,
		PollInterval:          s.PollInterval(),
		ConnectionTimeout:     s.ConnectionTimeout(),
		ChatDetectionAttempts: s.ChatDetectionAttempts,
		ChatDetectionDelay:    s.ChatDetectionDelay(),
		RequireOpenChat:       s.RequireOpenChat,
		IngestBacklog:         s.IngestBacklog,
		MaxReconnectAttempts:  s.MaxReconnectAttempts,
	}
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = 60 * time.Second
	}
	if c.ChatDetectionAttempts <= 0 {
		c.ChatDetectionAttempts = 15
	}
	return c
}
