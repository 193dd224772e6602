// Package logging provides structured logging for taskgrove.
//
// Default output is text on stderr, following CLI conventions. When a
// log file is configured, output switches to JSON and rotates via
// lumberjack. The level is held in a slog.LevelVar so a config reload
// can adjust it without restarting.
package logging

import (
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls logger construction.
type Config struct {
	Level      string // debug, info, warn, error
	File       string // empty for stderr
	MaxSizeMB  int
	MaxBackups int
}

// Logger couples a slog.Logger with its adjustable level.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// New builds a logger from cfg.
func New(cfg Config) *Logger {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(cfg.Level))

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.File != "" {
		out := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return &Logger{Logger: slog.New(handler), level: level}
}

// SetLevel adjusts the level at runtime.
func (l *Logger) SetLevel(level string) {
	l.level.Set(ParseLevel(level))
}

// ParseLevel maps a config string to a slog level. Unknown strings map
// to info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
