package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/currentlogger/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newTestLoader(env map[string]string) *Loader {
	l := NewLoader()
	l.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	return l
}

func TestLoader_DefaultsOnly(t *testing.T) {
	cfg, err := newTestLoader(nil).Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig().Buffer, cfg.Buffer)
	assert.NotEmpty(t, cfg.Device.ID, "device id falls back to the hostname")
}

func TestLoader_YAMLLayer(t *testing.T) {
	path := writeFile(t, "agent.yaml", `
device:
  id: esp-lab-1
sampling:
  interval: 500ms
  sensor:
    type: hwmon
    path: /sys/class/hwmon/hwmon2/curr1_input
    scale: 0.5
buffer:
  capacity: 300
http:
  url: https://collector.example.com/api/v1/data
  api_token: abc
`)
	l := newTestLoader(nil)
	l.AddLayer(path)
	l.EnableValidation(true)

	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "esp-lab-1", cfg.Device.ID)
	assert.Equal(t, 500*time.Millisecond, cfg.Sampling.Interval.Std())
	assert.Equal(t, "hwmon", cfg.Sampling.Sensor.Type)
	assert.Equal(t, 0.5, cfg.Sampling.Sensor.Scale)
	assert.Equal(t, 300, cfg.Buffer.Capacity)
	assert.Equal(t, 256, cfg.Buffer.ChunkSize, "unset keys keep their defaults")
	assert.True(t, cfg.HTTP.Enabled)
	assert.Equal(t, 10*time.Second, cfg.HTTP.Timeout.Std())
}

func TestLoader_ChunkAboveCapacityRejected(t *testing.T) {
	path := writeFile(t, "agent.yaml", `
buffer:
  capacity: 100
http:
  url: https://collector.example.com/api/v1/data
`)
	l := newTestLoader(nil)
	l.AddLayer(path)
	l.EnableValidation(true)

	_, err := l.Load()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Contains(t, err.Error(), "buffer.chunk_size")
}

func TestLoader_LayersMergeInOrder(t *testing.T) {
	base := writeFile(t, "base.json", `{
		"device": {"id": "base"},
		"http": {"url": "http://collector:7777/api/v1/data", "timeout": "3s"},
		"buffer": {"capacity": 600, "chunk_size": 60}
	}`)
	override := writeFile(t, "site.yml", `
http:
  timeout: 20s
buffer:
  chunk_size: 120
`)
	l := newTestLoader(nil)
	l.AddLayer(base)
	l.AddLayer(override)

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "base", cfg.Device.ID)
	assert.Equal(t, "http://collector:7777/api/v1/data", cfg.HTTP.URL)
	assert.Equal(t, 20*time.Second, cfg.HTTP.Timeout.Std())
	assert.Equal(t, 600, cfg.Buffer.Capacity)
	assert.Equal(t, 120, cfg.Buffer.ChunkSize)
}

func TestLoader_EnvOverrides(t *testing.T) {
	l := newTestLoader(map[string]string{
		"CURRENTLOGGER_DEVICE_ID":       "from-env",
		"CURRENTLOGGER_HTTP_URL":        "https://env.example.com/ingest",
		"CURRENTLOGGER_SEND_INTERVAL":   "30s",
		"CURRENTLOGGER_CHUNK_SIZE":      "64",
		"CURRENTLOGGER_PUBSUB_ENABLED":  "true",
		"CURRENTLOGGER_PUBSUB_URL":      "nats://broker:4222",
		"CURRENTLOGGER_LOG_LEVEL":       "DEBUG",
		"CURRENTLOGGER_METRICS_ENABLED": "",
	})
	l.EnableValidation(true)

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Device.ID)
	assert.Equal(t, "https://env.example.com/ingest", cfg.HTTP.URL)
	assert.Equal(t, 30*time.Second, cfg.Dispatch.SendInterval.Std())
	assert.Equal(t, 64, cfg.Buffer.ChunkSize)
	assert.True(t, cfg.PubSub.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoader_EnvErrors(t *testing.T) {
	tests := map[string]string{
		"CURRENTLOGGER_CHUNK_SIZE":     "many",
		"CURRENTLOGGER_HTTP_ENABLED":   "sometimes",
		"CURRENTLOGGER_SEND_INTERVAL":  "soon",
		"CURRENTLOGGER_HTTP_API_TOKEN": strings.Repeat("x", maxEnvVarLen+1),
		"CURRENTLOGGER_DEVICE_ID":      "bad\x00id",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			_, err := newTestLoader(map[string]string{key: val}).Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoader_ValidationFailure(t *testing.T) {
	l := newTestLoader(nil)
	l.EnableValidation(true)
	_, err := l.Load()
	require.Error(t, err, "http is enabled by default but has no URL")
	assert.Contains(t, err.Error(), "http.url")
}

func TestLoader_FileErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") }},
		{"unsupported extension", func(t *testing.T) string { return writeFile(t, "cfg.toml", "x = 1") }},
		{"bad json", func(t *testing.T) string { return writeFile(t, "cfg.json", `{"device": }`) }},
		{"too deep", func(t *testing.T) string {
			return writeFile(t, "cfg.json", strings.Repeat("[", maxJSONDepth+1)+strings.Repeat("]", maxJSONDepth+1))
		}},
		{"bad yaml", func(t *testing.T) string { return writeFile(t, "cfg.yaml", "device: [unclosed") }},
		{"directory", func(t *testing.T) string {
			dir := filepath.Join(t.TempDir(), "cfg.yaml")
			require.NoError(t, os.Mkdir(dir, 0o700))
			return dir
		}},
		{"wrong type", func(t *testing.T) string { return writeFile(t, "cfg.json", `{"buffer": {"capacity": "big"}}`) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLoader(nil)
			l.AddLayer(tt.path(t))
			_, err := l.Load()
			assert.Error(t, err)
		})
	}
}

func TestDeepMerge(t *testing.T) {
	base := map[string]any{"a": 1, "nested": map[string]any{"x": 1, "y": 2}}
	override := map[string]any{"b": 2, "nested": map[string]any{"y": 3}, "a": nil}

	merged := deepMerge(base, override)
	assert.Equal(t, 1, merged["a"])
	assert.Equal(t, 2, merged["b"])
	assert.Equal(t, map[string]any{"x": 1, "y": 3}, merged["nested"])
	assert.Equal(t, 2, base["nested"].(map[string]any)["y"], "base is not modified")
}
