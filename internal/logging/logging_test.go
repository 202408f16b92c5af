package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/alanbuscaglia/toggl-mcp/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(config.LogConfig{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("hello", zap.String("tool", "start_timer"))
	require.NoError(t, log.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, "debug must be filtered at info level")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "start_timer", entry["tool"])
	assert.Contains(t, entry, "ts")
}

func TestNewWithWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(config.LogConfig{Level: "debug", Format: "console"}, &buf)
	require.NoError(t, err)

	log.Debug("visible")
	require.NoError(t, log.Sync())

	out := buf.String()
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "debug")
	assert.False(t, strings.HasPrefix(strings.TrimSpace(out), "{"))
}

func TestNewWithWriter_InvalidLevel(t *testing.T) {
	_, err := NewWithWriter(config.LogConfig{Level: "loud", Format: "json"}, &bytes.Buffer{})
	require.Error(t, err)
}

func TestSecretFieldsRedact(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core)

	log.Info("configured",
		Secret("api_token", config.Secret("abcdef")),
		RedactedString("raw", "1234567890"),
	)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()

	tokenField, ok := fields["api_token"].(map[string]any)
	require.True(t, ok, "secret should be logged as an object, got %T", fields["api_token"])
	assert.Equal(t, "[REDACTED:6]", tokenField["api_token"])
	assert.Equal(t, "[REDACTED:10]", fields["raw"])
}

func TestSecretNeverReachesOutput(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(config.LogConfig{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	log.Info("startup", Secret("token", config.Secret("tok-very-secret")))
	require.NoError(t, log.Sync())

	assert.NotContains(t, buf.String(), "tok-very-secret")
	assert.Contains(t, buf.String(), "[REDACTED:15]")
}
