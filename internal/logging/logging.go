// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mikig28/secbrain/internal/config"
)

// Options overrides parts of the logging config at runtime.
type Options struct {
	// LogPath is the rotated JSON log file. Empty disables file output.
	LogPath string
	// Verbose forces debug level.
	Verbose bool
	// Console receives human-readable output. Defaults to stderr.
	Console io.Writer
}

// Setup builds a logger from cfg and installs it as the zap global.
func Setup(cfg config.LoggingConfig, opts Options) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		level = zapcore.DebugLevel
	}
	atom := zap.NewAtomicLevelAt(level)

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	consoleEncoder := zap.NewDevelopmentEncoderConfig()
	if cfg.Mode == "production" {
		consoleEncoder = zap.NewProductionEncoderConfig()
		consoleEncoder.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoder), zapcore.AddSync(console), atom),
	}

	if opts.LogPath != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.LogPath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(rotator),
			atom,
		))
	}

	zopts := []zap.Option{zap.AddCaller()}
	if cfg.Mode != "production" {
		zopts = append(zopts, zap.Development())
	}
	logger := zap.New(zapcore.NewTee(cores...), zopts...)
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func parseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, &config.Error{Field: "logging.level", Reason: fmt.Sprintf("unknown level %q", s)}
	}
	return level, nil
}
