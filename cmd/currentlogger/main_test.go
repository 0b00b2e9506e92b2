package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/currentlogger/config"
	"github.com/c360/currentlogger/message"
)

func TestParseFlags(t *testing.T) {
	cli, err := parseFlags([]string{"-c", "agent.yaml", "--log-level=debug", "--shutdown-timeout=3s", "--validate"})
	require.NoError(t, err)
	assert.Equal(t, "agent.yaml", cli.ConfigPath)
	assert.Equal(t, "debug", cli.LogLevel)
	assert.Equal(t, 3*time.Second, cli.ShutdownTimeout)
	assert.True(t, cli.Validate)

	_, err = parseFlags([]string{"--shutdown-timeout=0s"})
	assert.Error(t, err)
	_, err = parseFlags([]string{"--no-such-flag"})
	assert.Error(t, err)
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
device:
  id: bench-1
http:
  url: http://collector:7777/api/v1/data
log:
  level: warn
`), 0o600))

	cfg, err := loadConfig(&CLIConfig{ConfigPath: path, LogLevel: "debug", LogFormat: "text"})
	require.NoError(t, err)
	assert.Equal(t, "bench-1", cfg.Device.ID)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)

	_, err = loadConfig(&CLIConfig{ConfigPath: path, LogFormat: "xml"})
	assert.Error(t, err)
}

func TestAgent_DeliversToCollector(t *testing.T) {
	var mu sync.Mutex
	var received []message.Measurement
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var batch message.Batch
		if assert.NoError(t, json.Unmarshal(body, &batch)) {
			mu.Lock()
			received = append(received, batch.Measurements...)
			mu.Unlock()
		}
		assert.Equal(t, "tok", r.Header.Get("X-API-Token"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Device.ID = "bench-1"
	cfg.HTTP.URL = srv.URL
	cfg.HTTP.APIToken = "tok"
	cfg.Sampling.Interval = config.Duration(50 * time.Millisecond)
	cfg.Sampling.Sensor = config.SensorConfig{Type: "static", StaticValue: 42}
	cfg.Dispatch.SendInterval = config.Duration(150 * time.Millisecond)
	cfg.Dispatch.TickInterval = config.Duration(10 * time.Millisecond)
	cfg.Buffer.ChunkSize = 4
	require.NoError(t, cfg.Validate())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	a, err := newAgent(ctx, cfg, logger)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- a.run(ctx, time.Second) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) >= 4
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("agent did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	for _, m := range received {
		assert.Equal(t, 42.0, m.Value)
	}
	assert.Positive(t, a.scheduler.Stats().ChunksAcked)

	status, ok := a.monitor.Get("clock")
	require.True(t, ok)
	assert.True(t, status.Healthy)
}

func TestOverwriteLog_Throttled(t *testing.T) {
	var out bytes.Buffer
	log := newOverwriteLog(slog.New(slog.NewJSONHandler(&out, nil)), time.Hour)

	for i := 0; i < 100; i++ {
		log.record(message.New(float64(i), int64(i)))
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "Buffer full, oldest samples overwritten", entry["msg"])
	assert.Equal(t, 1.0, entry["overwritten"])
	assert.Equal(t, int64(100), log.count.Load())
}
