package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestNew_JSONToStdout(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := New(Options{Level: "info", Format: "json", Stdout: &buf}, "currentlogger", "1.2.3")
	defer closer.Close()

	logger.Debug("hidden")
	logger.Info("Sample taken", "value", 1.5)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "Sample taken", rec["msg"])
	assert.Equal(t, "currentlogger", rec["service"])
	assert.Equal(t, "1.2.3", rec["version"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNew_TextAlsoWritesFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "agent.log")
	logger, closer := New(Options{Format: "text", File: path, MaxSizeMB: 1, Stdout: &buf}, "collector", "dev")

	logger.Warn("Forward failed", "forwarder", "influxdb")
	require.NoError(t, closer.Close())

	assert.Contains(t, buf.String(), "msg=\"Forward failed\"")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "forwarder=influxdb")
}
