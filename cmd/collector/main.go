// Package main runs the collector: the HTTP endpoint agents post measurement batches to.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/c360/currentlogger/gateway"
	"github.com/c360/currentlogger/health"
	"github.com/c360/currentlogger/metric"
	"github.com/c360/currentlogger/natsclient"
	"github.com/c360/currentlogger/output/influxdb"
	"github.com/c360/currentlogger/pkg/logging"
)

// Build information
const (
	Version = "0.3.0"
	appName = "collector"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("Collector failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := gateway.FromEnv(nil)
	if err != nil {
		return err
	}
	cli, err := parseFlags(args, &cfg)
	if err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cli.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cli.Validate {
		fmt.Println("Configuration is valid")
		return nil
	}

	logger, closer := logging.New(logging.Options{
		Level:      cli.LogLevel,
		Format:     cli.LogFormat,
		File:       cli.LogFile,
		MaxSizeMB:  10,
		MaxBackups: 5,
		MaxAgeDays: 14,
	}, appName, Version)
	defer closer.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := metric.NewMetricsRegistry()
	monitor := health.NewMonitor(appName)

	writer, err := influxdb.New(cfg.InfluxDB, influxdb.WithLogger(logger), influxdb.WithMetrics(registry))
	if err != nil {
		return err
	}
	opts := []gateway.Option{
		gateway.WithLogger(logger),
		gateway.WithMetrics(registry),
		gateway.WithMonitor(monitor),
		gateway.WithForwarder(writer),
	}

	if cfg.StreamEnabled() {
		nc, err := connectStream(ctx, cfg, logger, registry, monitor)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = nc.Close(closeCtx)
		}()
		opts = append(opts, gateway.WithForwarder(gateway.NewStreamForwarder(nc, cfg.Subject)))
	}

	server, err := gateway.NewServer(cfg, opts...)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(gctx) })
	if cli.MetricsPort > 0 {
		metricsServer := metric.NewServer(cli.MetricsPort, "/metrics", registry)
		metricsServer.SetHealthHandler(monitor.Handler())
		g.Go(func() error { return metricsServer.Start(gctx) })
		logger.Info("Metrics available", "address", metricsServer.Address())
	}

	err = g.Wait()
	logger.Info("Collector stopped")
	return err
}

func connectStream(
	ctx context.Context,
	cfg gateway.Config,
	logger *slog.Logger,
	registry *metric.MetricsRegistry,
	monitor *health.Monitor,
) (*natsclient.Client, error) {
	nc, err := natsclient.NewClient(cfg.NATSURL,
		natsclient.WithLogger(logger),
		natsclient.WithName(appName),
		natsclient.WithMetrics(registry),
	)
	if err != nil {
		return nil, err
	}
	if err := nc.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	if _, err := nc.EnsureStream(ctx, cfg.Stream, cfg.Subject); err != nil {
		_ = nc.Close(ctx)
		return nil, err
	}
	monitor.Register("nats", func() health.Status {
		if nc.IsConnected() {
			return health.Healthy("nats", nc.Status().String())
		}
		return health.Degraded("nats", nc.Status().String())
	})
	return nc, nil
}
