package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/currentlogger/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CURRENTLOGGER"

// Loader merges defaults, file layers and environment overrides.
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a loader with the CURRENTLOGGER_ environment prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix: EnvPrefix,
		lookupEnv: os.LookupEnv,
	}
}

// AddLayer adds a configuration file. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation makes Load run Config.Validate.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// Load builds the configuration.
func (l *Loader) Load() (*Config, error) {
	base, err := toMap(DefaultConfig())
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "encode defaults")
	}

	for _, path := range l.layers {
		raw, err := l.readLayer(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "Load", "load "+path)
		}
		base = deepMerge(base, raw)
	}

	merged, err := json.Marshal(base)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "encode merged layers")
	}
	cfg := &Config{}
	if err := json.Unmarshal(merged, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "decode configuration")
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "apply environment")
	}
	cfg.fillIdentity()

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (l *Loader) readLayer(path string) (map[string]any, error) {
	format, err := configFormat(path)
	if err != nil {
		return nil, err
	}
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	raw := map[string]any{}
	switch format {
	case "json":
		if err := validateJSONDepth(data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse JSON: %w", err)
		}
	case "yaml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
	}
	return raw, nil
}

func toMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	return out, json.Unmarshal(data, &out)
}

// deepMerge merges override into base. Nested maps merge key by key; nil values are ignored.
func deepMerge(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		if bm, ok := base[k].(map[string]any); ok {
			if om, ok := v.(map[string]any); ok {
				result[k] = deepMerge(bm, om)
				continue
			}
		}
		result[k] = v
	}
	return result
}

type envBinding struct {
	key   string
	apply func(cfg *Config, value string) error
}

func str(set func(*Config, string)) func(*Config, string) error {
	return func(c *Config, v string) error {
		set(c, v)
		return nil
	}
}

func boolean(set func(*Config, bool)) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		set(c, b)
		return nil
	}
}

func integer(set func(*Config, int)) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		set(c, n)
		return nil
	}
}

func duration(set func(*Config, Duration)) func(*Config, string) error {
	return func(c *Config, v string) error {
		var d Duration
		if err := d.UnmarshalJSON([]byte(strconv.Quote(v))); err != nil {
			return err
		}
		set(c, d)
		return nil
	}
}

var envBindings = []envBinding{
	{"DEVICE_ID", str(func(c *Config, v string) { c.Device.ID = v })},
	{"HOSTNAME", str(func(c *Config, v string) { c.Device.Hostname = v })},
	{"SAMPLE_INTERVAL", duration(func(c *Config, d Duration) { c.Sampling.Interval = d })},
	{"SENSOR_TYPE", str(func(c *Config, v string) { c.Sampling.Sensor.Type = v })},
	{"SENSOR_PATH", str(func(c *Config, v string) { c.Sampling.Sensor.Path = v })},
	{"BUFFER_CAPACITY", integer(func(c *Config, n int) { c.Buffer.Capacity = n })},
	{"CHUNK_SIZE", integer(func(c *Config, n int) { c.Buffer.ChunkSize = n })},
	{"SEND_INTERVAL", duration(func(c *Config, d Duration) { c.Dispatch.SendInterval = d })},
	{"STATUS_INTERVAL", duration(func(c *Config, d Duration) { c.Dispatch.StatusInterval = d })},
	{"HTTP_ENABLED", boolean(func(c *Config, b bool) { c.HTTP.Enabled = b })},
	{"HTTP_URL", str(func(c *Config, v string) { c.HTTP.URL = v })},
	{"HTTP_API_TOKEN", str(func(c *Config, v string) { c.HTTP.APIToken = v })},
	{"HTTP_USERNAME", str(func(c *Config, v string) { c.HTTP.BasicAuth.Username = v })},
	{"HTTP_PASSWORD", str(func(c *Config, v string) { c.HTTP.BasicAuth.Password = v })},
	{"PUBSUB_ENABLED", boolean(func(c *Config, b bool) { c.PubSub.Enabled = b })},
	{"PUBSUB_URL", str(func(c *Config, v string) { c.PubSub.URL = v })},
	{"PUBSUB_TOKEN", str(func(c *Config, v string) { c.PubSub.Token = v })},
	{"METRICS_ENABLED", boolean(func(c *Config, b bool) { c.Metrics.Enabled = b })},
	{"METRICS_PORT", integer(func(c *Config, n int) { c.Metrics.Port = n })},
	{"LOG_LEVEL", str(func(c *Config, v string) { c.Log.Level = strings.ToLower(v) })},
	{"LOG_FORMAT", str(func(c *Config, v string) { c.Log.Format = strings.ToLower(v) })},
	{"LOG_FILE", str(func(c *Config, v string) { c.Log.File = v })},
}

func (l *Loader) applyEnvOverrides(cfg *Config) error {
	for _, b := range envBindings {
		key := l.envPrefix + "_" + b.key
		val, ok := l.lookupEnv(key)
		if !ok || val == "" {
			continue
		}
		if err := validateEnvVar(key, val); err != nil {
			return err
		}
		if err := b.apply(cfg, val); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}
