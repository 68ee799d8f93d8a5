package config

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			TargetAddress:         "https://web.whatsapp.com",
			PollIntervalMs:        2000,
			ConnectionTimeoutMs:   60000,
			LoginTimeoutMs:        120000,
			ChatDetectionAttempts: 15,
			ChatDetectionDelayMs:  2000,
			RequireOpenChat:       true,
			IngestBacklog:         false,
			MaxReconnectAttempts:  3,
			Headless:              false,
			UserDataDir:           "whatsapp-data",
			ChromePath:            "",
		},
		Storage: StorageConfig{
			Path:              "~/.config/secbrain",
			SQLiteFile:        "secbrain.db",
			SQLiteJournalMode: "wal",
		},
		Images: ImagesConfig{
			Dir:       "images",
			PublicURL: "/images",
		},
		Daemon: DaemonConfig{
			Host:           "127.0.0.1",
			Port:           7773,
			MaxRequestSize: 1048576,
		},
		Logging: LoggingConfig{
			Mode:       "development",
			Level:      "info",
			File:       "secbrain.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		},
	}
}
