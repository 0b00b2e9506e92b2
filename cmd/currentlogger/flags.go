package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	LogFile         string
	ShutdownTimeout time.Duration
	ShowVersion     bool
	Validate        bool
}

func parseFlags(args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	fs.Usage = func() { printHelp(fs) }

	fs.StringVarP(&cfg.ConfigPath, "config", "c",
		getEnv("CURRENTLOGGER_CONFIG", ""),
		"path to a JSON or YAML configuration file (env: CURRENTLOGGER_CONFIG)")
	fs.StringVar(&cfg.LogLevel, "log-level", "",
		"override log.level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", "",
		"override log.format: json, text")
	fs.StringVar(&cfg.LogFile, "log-file", "",
		"override log.file")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("CURRENTLOGGER_SHUTDOWN_TIMEOUT", 15*time.Second),
		"graceful shutdown timeout (env: CURRENTLOGGER_SHUTDOWN_TIMEOUT)")
	fs.BoolVarP(&cfg.ShowVersion, "version", "v", false, "show version information")
	fs.BoolVar(&cfg.Validate, "validate", false, "validate configuration and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout <= 0 {
		return nil, fmt.Errorf("invalid shutdown timeout: %v", cfg.ShutdownTimeout)
	}
	return cfg, nil
}

func printHelp(fs *pflag.FlagSet) {
	_, _ = fmt.Fprintf(os.Stderr, `%s - samples a current sensor and ships the readings to a collector

Usage: %s [options]

Options:
`, appName, os.Args[0])
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Every config key can also be set through CURRENTLOGGER_* variables, for example
CURRENTLOGGER_HTTP_URL, CURRENTLOGGER_HTTP_API_TOKEN, CURRENTLOGGER_SENSOR_TYPE.

Examples:
  %s --config=/etc/currentlogger/agent.yaml
  CURRENTLOGGER_HTTP_URL=http://collector:7777/api/v1/data %s --log-format=text
  %s --config=agent.yaml --validate

Version: %s
`, os.Args[0], os.Args[0], os.Args[0], Version)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
