package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with pipeline field helpers
type Logger struct {
	zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	Output string // stdout or file path
}

// New creates a logger from the configuration. An unwritable output file
// or unknown level falls back to stdout at info.
func New(cfg Config) *Logger {
	var out io.Writer = os.Stdout
	if cfg.Output != "" && cfg.Output != "stdout" {
		if file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666); err == nil {
			out = file
		}
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	l := zerolog.New(out).Level(level).With().Timestamp().Caller().Logger()
	return &Logger{Logger: l}
}

// Default creates a console logger at info level
func Default() *Logger {
	return New(Config{Level: "info", Format: "console", Output: "stdout"})
}

// WithComponent adds a component field to the logger
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.With().Str("component", component).Logger()}
}

// WithAccount adds the target account handle to the logger
func (l *Logger) WithAccount(handle string) *Logger {
	return &Logger{Logger: l.With().Str("account", handle).Logger()}
}

// WithTweetID adds a source tweet ID to the logger
func (l *Logger) WithTweetID(id string) *Logger {
	return &Logger{Logger: l.With().Str("tweet_id", id).Logger()}
}

// WithSource adds candidate-source fields to the logger
func (l *Logger) WithSource(sourceType, sourceName string) *Logger {
	return &Logger{Logger: l.With().
		Str("source_type", sourceType).
		Str("source_name", sourceName).
		Logger()}
}
