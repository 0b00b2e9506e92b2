package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/c360/currentlogger/engine"
	"github.com/c360/currentlogger/errors"
	"github.com/c360/currentlogger/input/sensor"
	"github.com/c360/currentlogger/output/httppost"
	"github.com/c360/currentlogger/pkg/tlsutil"
)

// Config is the complete agent configuration.
type Config struct {
	Device   DeviceConfig   `json:"device"`
	Sampling SamplingConfig `json:"sampling"`
	Buffer   BufferConfig   `json:"buffer"`
	Dispatch DispatchConfig `json:"dispatch"`
	HTTP     HTTPConfig     `json:"http"`
	PubSub   PubSubConfig   `json:"pubsub"`
	Metrics  MetricsConfig  `json:"metrics"`
	Log      LogConfig      `json:"log"`
}

// DeviceConfig identifies the agent.
type DeviceConfig struct {
	ID       string `json:"id"`
	Hostname string `json:"hostname"`
}

// SamplingConfig sets the sample cadence and the sensor.
type SamplingConfig struct {
	Interval Duration     `json:"interval"`
	Sensor   SensorConfig `json:"sensor"`
}

// SensorConfig mirrors sensor.Config with string durations.
type SensorConfig struct {
	Type        string   `json:"type"`
	Path        string   `json:"path,omitempty"`
	Scale       float64  `json:"scale,omitempty"`
	StaticValue float64  `json:"static_value,omitempty"`
	Offset      float64  `json:"offset,omitempty"`
	Amplitude   float64  `json:"amplitude,omitempty"`
	Period      Duration `json:"period,omitempty"`
	Noise       float64  `json:"noise,omitempty"`
}

// BufferConfig sizes the ring buffer and the chunks taken from it.
type BufferConfig struct {
	Capacity            int `json:"capacity"`
	ChunkSize           int `json:"chunk_size"`
	SerializationBuffer int `json:"serialization_buffer"`
}

// DispatchConfig sets the loop timers.
type DispatchConfig struct {
	SendInterval   Duration `json:"send_interval"`
	StatusInterval Duration `json:"status_interval"`
	TickInterval   Duration `json:"tick_interval"`
	MaxCatchUp     int      `json:"max_catch_up"`
}

// BasicAuthConfig holds HTTP basic credentials.
type BasicAuthConfig struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// HTTPConfig is the HTTP sink.
type HTTPConfig struct {
	Enabled   bool                 `json:"enabled"`
	URL       string               `json:"url"`
	APIToken  string               `json:"api_token,omitempty"`
	BasicAuth BasicAuthConfig      `json:"basic_auth"`
	Timeout   Duration             `json:"timeout"`
	Gzip      bool                 `json:"gzip"`
	TLS       tlsutil.ClientConfig `json:"tls"`
}

// PubSubConfig is the NATS sink.
type PubSubConfig struct {
	Enabled             bool                  `json:"enabled"`
	URL                 string                `json:"url"`
	TopicPrefix         string                `json:"topic_prefix,omitempty"`
	PublishMeasurements bool                  `json:"publish_measurements"`
	Username            string                `json:"username,omitempty"`
	Password            string                `json:"password,omitempty"`
	Token               string                `json:"token,omitempty"`
	TLS                 *tlsutil.ClientConfig `json:"tls,omitempty"`
}

// MetricsConfig is the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// LogConfig configures slog output and file rotation.
type LogConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// DefaultConfig returns the stock logger settings: 1 s samples into a 3600 entry buffer,
// 256 measurement chunks every 5 s, a status report every minute.
func DefaultConfig() *Config {
	return &Config{
		Sampling: SamplingConfig{
			Interval: Duration(time.Second),
			Sensor: SensorConfig{
				Type:      sensor.TypeSimulated,
				Scale:     1,
				Offset:    120,
				Amplitude: 30,
				Period:    Duration(time.Minute),
				Noise:     1.5,
			},
		},
		Buffer: BufferConfig{
			Capacity:            3600,
			ChunkSize:           256,
			SerializationBuffer: 16 << 10,
		},
		Dispatch: DispatchConfig{
			SendInterval:   Duration(5 * time.Second),
			StatusInterval: Duration(time.Minute),
			TickInterval:   Duration(100 * time.Millisecond),
			MaxCatchUp:     10,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Timeout: Duration(10 * time.Second),
		},
		Metrics: MetricsConfig{
			Port: 9090,
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
	}
}

func invalid(field, format string, args ...any) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s: %s", errors.ErrInvalidConfig, field, fmt.Sprintf(format, args...)),
		"Config", "Validate", field)
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Buffer.Capacity < 1 {
		return invalid("buffer.capacity", "must be at least 1, got %d", c.Buffer.Capacity)
	}
	if c.Buffer.ChunkSize < 1 || c.Buffer.ChunkSize > c.Buffer.Capacity {
		return invalid("buffer.chunk_size", "must be in [1, %d], got %d", c.Buffer.Capacity, c.Buffer.ChunkSize)
	}
	if c.Buffer.SerializationBuffer < 0 {
		return invalid("buffer.serialization_buffer", "must not be negative")
	}

	for _, iv := range []struct {
		name string
		d    Duration
	}{
		{"sampling.interval", c.Sampling.Interval},
		{"dispatch.send_interval", c.Dispatch.SendInterval},
		{"dispatch.status_interval", c.Dispatch.StatusInterval},
		{"dispatch.tick_interval", c.Dispatch.TickInterval},
	} {
		if iv.d <= 0 {
			return invalid(iv.name, "must be positive, got %v", iv.d)
		}
	}

	if !c.HTTP.Enabled && !c.PubSub.Enabled {
		return invalid("sinks", "at least one of http or pubsub must be enabled")
	}
	if c.HTTP.Enabled {
		if c.HTTP.URL == "" {
			return invalid("http.url", "required when http is enabled")
		}
		u, err := url.Parse(c.HTTP.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("http.url", "must be an absolute http or https URL, got %q", c.HTTP.URL)
		}
		if c.HTTP.Timeout <= 0 || c.HTTP.Timeout.Std() > httppost.MaxTimeout {
			return invalid("http.timeout", "must be in (0, %v], got %v", httppost.MaxTimeout, c.HTTP.Timeout)
		}
	}
	if c.PubSub.Enabled && c.PubSub.URL == "" {
		return invalid("pubsub.url", "required when pubsub is enabled")
	}

	if err := c.SensorConfig().Validate(); err != nil {
		return err
	}

	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return invalid("metrics.port", "out of range: %d", c.Metrics.Port)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level", "unknown level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return invalid("log.format", "unknown format %q", c.Log.Format)
	}
	return nil
}

// fillIdentity defaults the device id and hostname from the OS hostname.
func (c *Config) fillIdentity() {
	if c.Device.Hostname == "" {
		if h, err := os.Hostname(); err == nil {
			c.Device.Hostname = h
		}
	}
	if c.Device.ID == "" {
		c.Device.ID = c.Device.Hostname
	}
	if c.Device.ID == "" {
		c.Device.ID = "currentlogger"
	}
}

// TopicPrefix is the pub/sub prefix, the device id unless set explicitly.
func (c *Config) TopicPrefix() string {
	if c.PubSub.TopicPrefix != "" {
		return c.PubSub.TopicPrefix
	}
	return c.Device.ID
}

// SensorConfig converts to the sensor package configuration.
func (c *Config) SensorConfig() sensor.Config {
	s := c.Sampling.Sensor
	return sensor.Config{
		Type:        s.Type,
		Path:        s.Path,
		Scale:       s.Scale,
		StaticValue: s.StaticValue,
		Offset:      s.Offset,
		Amplitude:   s.Amplitude,
		Period:      s.Period.Std(),
		Noise:       s.Noise,
	}
}

// EngineConfig converts to the dispatch loop configuration.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		SampleInterval:      c.Sampling.Interval.Std(),
		SendInterval:        c.Dispatch.SendInterval.Std(),
		StatusInterval:      c.Dispatch.StatusInterval.Std(),
		TickInterval:        c.Dispatch.TickInterval.Std(),
		ChunkSize:           c.Buffer.ChunkSize,
		SerializationBuffer: c.Buffer.SerializationBuffer,
		MaxCatchUp:          c.Dispatch.MaxCatchUp,
	}
}

// SenderConfig converts to the HTTP sender configuration.
func (c *Config) SenderConfig() httppost.Config {
	cfg := httppost.DefaultConfig()
	cfg.URL = c.HTTP.URL
	cfg.APIToken = c.HTTP.APIToken
	cfg.Username = c.HTTP.BasicAuth.Username
	cfg.Password = c.HTTP.BasicAuth.Password
	cfg.Timeout = c.HTTP.Timeout.Std()
	cfg.Gzip = c.HTTP.Gzip
	cfg.TLS = c.HTTP.TLS
	cfg.UserAgent = "currentlogger/" + c.Device.ID
	return cfg
}

// Redacted returns a copy with credentials masked, for logging.
func (c *Config) Redacted() Config {
	out := *c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	out.HTTP.APIToken = mask(out.HTTP.APIToken)
	out.HTTP.BasicAuth.Password = mask(out.HTTP.BasicAuth.Password)
	out.PubSub.Password = mask(out.PubSub.Password)
	out.PubSub.Token = mask(out.PubSub.Token)
	return out
}
