package utils

import (
	"bytes"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLoggerWritesFormattedMessage(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, zerolog.DebugLevel)

	l.Info("collected %d links", 42)
	l.With("component", "discovery").Warn("year %d skipped", 2013)

	out := buf.String()
	assert.Contains(t, out, "collected 42 links")
	assert.Contains(t, out, "year 2013 skipped")
	assert.Contains(t, out, "component=discovery")
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, zerolog.WarnLevel)

	l.Debug("hidden debug")
	l.Info("hidden info")
	l.Error("visible error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible error")
}

func TestLevelFromEnv(t *testing.T) {
	tests := []struct {
		raw  string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"nonsense", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		os.Setenv("LOG_LEVEL", tt.raw)
		assert.Equal(t, tt.want, levelFromEnv(), "LOG_LEVEL=%q", tt.raw)
	}
	os.Unsetenv("LOG_LEVEL")
}
