package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/c360/currentlogger/gateway"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	LogLevel    string
	LogFormat   string
	LogFile     string
	MetricsPort int
	ShowVersion bool
	Validate    bool
}

// parseFlags overlays flags onto the environment-derived gateway config.
func parseFlags(args []string, cfg *gateway.Config) (*CLIConfig, error) {
	cli := &CLIConfig{}
	fs := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	fs.Usage = func() { printHelp(fs) }

	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP listen port (env: PORT)")
	fs.StringVar(&cfg.APIToken, "api-token", cfg.APIToken, "shared agent token (env: API_TOKEN)")
	fs.Int64Var(&cfg.MaxRequestSize, "max-request-size", cfg.MaxRequestSize, "request body limit in bytes")
	fs.Float64Var(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "ingest requests per second, 0 disables (env: RATE_LIMIT)")
	fs.IntVar(&cfg.RateBurst, "rate-burst", cfg.RateBurst, "ingest burst above --rate-limit (env: RATE_BURST)")
	fs.StringVar(&cfg.InfluxDB.URL, "influxdb-url", cfg.InfluxDB.URL, "InfluxDB base URL (env: INFLUXDB_URL)")
	fs.StringVar(&cfg.InfluxDB.Org, "influxdb-org", cfg.InfluxDB.Org, "InfluxDB organization (env: INFLUXDB_ORG)")
	fs.StringVar(&cfg.InfluxDB.Bucket, "influxdb-bucket", cfg.InfluxDB.Bucket, "InfluxDB bucket (env: INFLUXDB_BUCKET)")
	fs.StringVar(&cfg.InfluxDB.Token, "influxdb-token", cfg.InfluxDB.Token, "InfluxDB API token (env: INFLUXDB_TOKEN)")
	fs.DurationVar(&cfg.InfluxDB.Timeout, "influxdb-timeout", cfg.InfluxDB.Timeout, "InfluxDB write timeout")
	fs.StringVar(&cfg.NATSURL, "nats-url", cfg.NATSURL, "NATS URL for stream forwarding (env: NATS_URL)")
	fs.StringVar(&cfg.Stream, "nats-stream", cfg.Stream, "JetStream stream name, empty disables (env: NATS_STREAM)")
	fs.StringVar(&cfg.Subject, "nats-subject", cfg.Subject, "subject batches are published on")
	fs.StringVar(&cfg.TLS.CertFile, "tls-cert", cfg.TLS.CertFile, "serve HTTPS with this certificate (env: TLS_CERT_FILE)")
	fs.StringVar(&cfg.TLS.KeyFile, "tls-key", cfg.TLS.KeyFile, "private key for --tls-cert (env: TLS_KEY_FILE)")
	fs.StringVar(&cfg.TLS.MinVersion, "tls-min-version", cfg.TLS.MinVersion, "1.2 or 1.3")

	fs.StringVar(&cli.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "debug, info, warn, error (env: LOG_LEVEL)")
	fs.StringVar(&cli.LogFormat, "log-format", getEnv("LOG_FORMAT", "json"), "json or text (env: LOG_FORMAT)")
	fs.StringVar(&cli.LogFile, "log-file", getEnv("LOG_FILE", ""), "also write logs to this rotated file")
	fs.IntVar(&cli.MetricsPort, "metrics-port", 9091, "Prometheus port, 0 to disable")
	fs.BoolVarP(&cli.ShowVersion, "version", "v", false, "show version information")
	fs.BoolVar(&cli.Validate, "validate", false, "validate configuration and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cli.MetricsPort < 0 || cli.MetricsPort > 65535 {
		return nil, fmt.Errorf("invalid metrics port: %d", cli.MetricsPort)
	}
	return cli, nil
}

func printHelp(fs *pflag.FlagSet) {
	_, _ = fmt.Fprintf(os.Stderr, `%s - receives measurement batches and forwards them to InfluxDB

Usage: %s [options]

Options:
`, appName, os.Args[0])
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  API_TOKEN=secret INFLUXDB_TOKEN=xyz %s
  %s --api-token=secret --nats-url=nats://localhost:4222 --nats-stream=CURRENT

Version: %s
`, os.Args[0], os.Args[0], Version)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
