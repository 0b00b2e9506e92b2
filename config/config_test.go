package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/currentlogger/errors"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.HTTP.URL = "https://collector.example.com/api/v1/data"
	cfg.fillIdentity()
	return cfg
}

func TestDefaultConfig_MatchesStockLogger(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, time.Second, cfg.Sampling.Interval.Std())
	assert.Equal(t, 3600, cfg.Buffer.Capacity)
	assert.Equal(t, 256, cfg.Buffer.ChunkSize)
	assert.Equal(t, 5*time.Second, cfg.Dispatch.SendInterval.Std())
	assert.Equal(t, time.Minute, cfg.Dispatch.StatusInterval.Std())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero capacity", func(c *Config) { c.Buffer.Capacity = 0 }, "buffer.capacity"},
		{"chunk above capacity", func(c *Config) { c.Buffer.ChunkSize = 4000 }, "buffer.chunk_size"},
		{"default chunk above small capacity", func(c *Config) { c.Buffer.Capacity = 100 }, "buffer.chunk_size"},
		{"chunk equal to capacity", func(c *Config) { c.Buffer.Capacity = 256 }, ""},
		{"zero chunk", func(c *Config) { c.Buffer.ChunkSize = 0 }, "buffer.chunk_size"},
		{"zero sample interval", func(c *Config) { c.Sampling.Interval = 0 }, "sampling.interval"},
		{"negative send interval", func(c *Config) { c.Dispatch.SendInterval = -1 }, "dispatch.send_interval"},
		{"no sink", func(c *Config) { c.HTTP.Enabled = false }, "sinks"},
		{"http without url", func(c *Config) { c.HTTP.URL = "" }, "http.url"},
		{"http bad scheme", func(c *Config) { c.HTTP.URL = "ftp://host/x" }, "http.url"},
		{"http relative", func(c *Config) { c.HTTP.URL = "/api/v1/data" }, "http.url"},
		{"http zero timeout", func(c *Config) { c.HTTP.Timeout = 0 }, "http.timeout"},
		{"http timeout above sender bound", func(c *Config) { c.HTTP.Timeout = Duration(6 * time.Minute) }, "http.timeout"},
		{"http timeout at sender bound", func(c *Config) { c.HTTP.Timeout = Duration(5 * time.Minute) }, ""},
		{"pubsub without url", func(c *Config) { c.PubSub.Enabled = true }, "pubsub.url"},
		{"pubsub only", func(c *Config) {
			c.HTTP = HTTPConfig{}
			c.PubSub.Enabled = true
			c.PubSub.URL = "nats://broker:4222"
		}, ""},
		{"hwmon without path", func(c *Config) { c.Sampling.Sensor.Type = "hwmon" }, "path"},
		{"metrics port", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Port = 0 }, "metrics.port"},
		{"log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestConfig_Conversions(t *testing.T) {
	cfg := validConfig()
	cfg.Device.ID = "esp-lab-1"
	cfg.HTTP.APIToken = "tok"
	cfg.HTTP.BasicAuth = BasicAuthConfig{Username: "u", Password: "p"}
	cfg.HTTP.Gzip = true
	cfg.HTTP.TLS.CAFiles = []string{"/etc/currentlogger/ca.pem"}

	ec := cfg.EngineConfig()
	assert.Equal(t, time.Second, ec.SampleInterval)
	assert.Equal(t, 5*time.Second, ec.SendInterval)
	assert.Equal(t, 256, ec.ChunkSize)
	assert.NoError(t, ec.Validate())

	sc := cfg.SenderConfig()
	assert.Equal(t, cfg.HTTP.URL, sc.URL)
	assert.Equal(t, "tok", sc.APIToken)
	assert.Equal(t, "u", sc.Username)
	assert.True(t, sc.Gzip)
	assert.Equal(t, 10*time.Second, sc.Timeout)
	assert.Equal(t, "currentlogger/esp-lab-1", sc.UserAgent)
	assert.Equal(t, []string{"/etc/currentlogger/ca.pem"}, sc.TLS.CAFiles)
	assert.NoError(t, sc.Validate())

	assert.Equal(t, time.Minute, cfg.SensorConfig().Period)
	assert.Equal(t, "esp-lab-1", cfg.TopicPrefix())
	cfg.PubSub.TopicPrefix = "lab/esp"
	assert.Equal(t, "lab/esp", cfg.TopicPrefix())
}

func TestConfig_Redacted(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.APIToken = "secret-token"
	cfg.PubSub.Password = "pw"

	r := cfg.Redacted()
	assert.Equal(t, "****", r.HTTP.APIToken)
	assert.Equal(t, "****", r.PubSub.Password)
	assert.Empty(t, r.PubSub.Token)
	assert.Equal(t, "secret-token", cfg.HTTP.APIToken, "original untouched")
}

func TestDuration_JSON(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"250ms"`), &d))
	assert.Equal(t, 250*time.Millisecond, d.Std())

	require.NoError(t, json.Unmarshal([]byte(`1000000000`), &d))
	assert.Equal(t, time.Second, d.Std())

	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))

	out, err := json.Marshal(Duration(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(out))
}
