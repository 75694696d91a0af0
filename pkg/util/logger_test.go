package util

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(LevelError))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestResolveFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, FormatJSON, ResolveFormat(FormatAuto, &buf))
	assert.Equal(t, FormatText, ResolveFormat("TEXT", &buf))
	assert.Equal(t, FormatJSON, ResolveFormat("", &buf))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: LevelWarn, Format: FormatJSON, Output: &buf})

	logger.Info("dropped")
	logger.Warn("kept", "file", "a.js")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "a.js", entry["file"])

	buf.Reset()
	NewLogger(LoggerConfig{Format: FormatText, Output: &buf}).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestGetOptimalPoolSize(t *testing.T) {
	size := GetOptimalPoolSize()
	assert.GreaterOrEqual(t, size, 4)
	assert.LessOrEqual(t, size, 32)
	assert.Equal(t, 3, GetOptimalPoolSizeWithOverride(3))
	assert.Equal(t, size, GetOptimalPoolSizeWithOverride(0))
}
