package utils

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger provides leveled, printf-style logging throughout the application.
// Output is structured by zerolog and rendered through its console writer.
type Logger struct {
	zl zerolog.Logger
}

// NewLogger creates a Logger writing to stdout at the level named by LOG_LEVEL
// (debug, info, warn, error). Unknown or empty values select info.
func NewLogger() *Logger {
	return NewLoggerTo(os.Stdout, levelFromEnv())
}

// NewLoggerTo creates a Logger writing human-readable lines to w.
func NewLoggerTo(w io.Writer, level zerolog.Level) *Logger {
	out := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    w != os.Stdout,
	}
	zl := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// With returns a child logger that tags every line with key=value.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

func (l *Logger) Info(format string, args ...any) {
	l.zl.Info().Msgf(format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.zl.Warn().Msgf(format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.zl.Error().Msgf(format, args...)
}

func (l *Logger) Debug(format string, args ...any) {
	l.zl.Debug().Msgf(format, args...)
}

func levelFromEnv() zerolog.Level {
	raw := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if raw == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// Since formats the elapsed time since start rounded to the millisecond.
func Since(start time.Time) string {
	return time.Since(start).Round(time.Millisecond).String()
}
