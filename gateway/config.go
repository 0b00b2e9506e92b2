package gateway

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/c360/currentlogger/errors"
	"github.com/c360/currentlogger/output/influxdb"
	"github.com/c360/currentlogger/pkg/tlsutil"
)

// DefaultSubject carries accepted batches into the JetStream stream.
const DefaultSubject = "currentlogger.measurements"

// Config holds collector settings.
type Config struct {
	Port           int                  `json:"port"`
	APIToken       string               `json:"-"`
	MaxRequestSize int64                `json:"max_request_size"`
	RateLimit      float64              `json:"rate_limit"`
	RateBurst      int                  `json:"rate_burst"`
	InfluxDB       influxdb.Config      `json:"influxdb"`
	NATSURL        string               `json:"nats_url,omitempty"`
	Stream         string               `json:"stream,omitempty"`
	Subject        string               `json:"subject,omitempty"`
	TLS            tlsutil.ServerConfig `json:"tls"`
}

// DefaultConfig listens on 7777 with a 1 MiB body limit and admits 100 ingest requests
// per second with a burst of 20.
func DefaultConfig() Config {
	return Config{
		Port:           7777,
		MaxRequestSize: 1 << 20,
		RateLimit:      100,
		RateBurst:      20,
		InfluxDB:       influxdb.DefaultConfig(),
		Subject:        DefaultSubject,
	}
}

// Validate checks the collector configuration.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("port out of range: %d", c.Port))
	}
	if c.APIToken == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"api token is required")
	}
	if c.MaxRequestSize <= 0 || c.MaxRequestSize > 100<<20 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_request_size must be in (0, 100MB]")
	}
	if c.RateLimit < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"rate_limit must not be negative")
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("rate_burst must be at least 1 when rate limiting, got %d", c.RateBurst))
	}
	if err := c.InfluxDB.Validate(); err != nil {
		return err
	}
	if err := c.TLS.Validate(); err != nil {
		return err
	}
	if c.Stream != "" && c.NATSURL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"nats url is required when a stream is configured")
	}
	return nil
}

// StreamEnabled reports whether batches are also published to JetStream.
func (c Config) StreamEnabled() bool {
	return c.Stream != "" && c.NATSURL != ""
}

// FromEnv overlays PORT, API_TOKEN, RATE_*, INFLUXDB_*, NATS_* and TLS_* onto DefaultConfig.
// A nil lookup reads the process environment.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg := DefaultConfig()

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return cfg, errors.WrapInvalid(err, "Config", "FromEnv", "parse PORT")
		}
		cfg.Port = port
	}
	if v, ok := lookup("RATE_LIMIT"); ok && v != "" {
		limit, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, errors.WrapInvalid(err, "Config", "FromEnv", "parse RATE_LIMIT")
		}
		cfg.RateLimit = limit
	}
	if v, ok := lookup("RATE_BURST"); ok && v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return cfg, errors.WrapInvalid(err, "Config", "FromEnv", "parse RATE_BURST")
		}
		cfg.RateBurst = burst
	}
	if v, ok := lookup("INFLUXDB_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return cfg, errors.WrapInvalid(err, "Config", "FromEnv", "parse INFLUXDB_TIMEOUT")
		}
		cfg.InfluxDB.Timeout = d
	}

	for key, dst := range map[string]*string{
		"API_TOKEN":       &cfg.APIToken,
		"INFLUXDB_URL":    &cfg.InfluxDB.URL,
		"INFLUXDB_ORG":    &cfg.InfluxDB.Org,
		"INFLUXDB_BUCKET": &cfg.InfluxDB.Bucket,
		"INFLUXDB_TOKEN":  &cfg.InfluxDB.Token,
		"NATS_URL":        &cfg.NATSURL,
		"NATS_STREAM":     &cfg.Stream,
		"NATS_SUBJECT":    &cfg.Subject,
		"TLS_CERT_FILE":   &cfg.TLS.CertFile,
		"TLS_KEY_FILE":    &cfg.TLS.KeyFile,
	} {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup("TLS_CLIENT_CA_FILE"); ok && v != "" {
		cfg.TLS.ClientCAFiles = []string{v}
		cfg.TLS.RequireClientCert = true
	}
	return cfg, nil
}
