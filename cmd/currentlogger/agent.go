package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/c360/currentlogger/config"
	"github.com/c360/currentlogger/engine"
	"github.com/c360/currentlogger/health"
	"github.com/c360/currentlogger/input/sensor"
	"github.com/c360/currentlogger/message"
	"github.com/c360/currentlogger/metric"
	"github.com/c360/currentlogger/natsclient"
	"github.com/c360/currentlogger/output/httppost"
	"github.com/c360/currentlogger/output/pubsub"
	"github.com/c360/currentlogger/pkg/buffer"
	"github.com/c360/currentlogger/pkg/timestamp"
)

// agent owns every long-lived component of one running logger.
type agent struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *metric.MetricsRegistry
	monitor   *health.Monitor
	ring      *buffer.Telemetry
	sender    *httppost.Sender
	nats      *natsclient.Client
	scheduler *engine.Scheduler
	metrics   *metric.Server
}

// dispatchStats defers to the scheduler, which is built after the status reporter.
type dispatchStats struct {
	scheduler *engine.Scheduler
}

func (d *dispatchStats) Stats() engine.Stats {
	if d.scheduler == nil {
		return engine.Stats{}
	}
	return d.scheduler.Stats()
}

// overwriteLog reports ring overwrites at most once per interval. At capacity every
// sample overwrites one, so an unthrottled log would repeat at the sampling rate.
type overwriteLog struct {
	logger *slog.Logger
	count  atomic.Int64
	every  rate.Sometimes
}

func newOverwriteLog(logger *slog.Logger, interval time.Duration) *overwriteLog {
	return &overwriteLog{logger: logger, every: rate.Sometimes{First: 1, Interval: interval}}
}

func (o *overwriteLog) record(m message.Measurement) {
	n := o.count.Add(1)
	o.every.Do(func() {
		o.logger.Warn("Buffer full, oldest samples overwritten", "overwritten", n, "sample", m.String())
	})
}

func newAgent(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*agent, error) {
	a := &agent{
		cfg:      cfg,
		logger:   logger,
		registry: metric.NewMetricsRegistry(),
		monitor:  health.NewMonitor(cfg.Device.ID),
	}
	core := a.registry.CoreMetrics()

	if err := a.waitForClock(ctx, core); err != nil {
		return nil, err
	}

	src, err := sensor.New(cfg.SensorConfig())
	if err != nil {
		return nil, fmt.Errorf("create sensor: %w", err)
	}

	a.ring, err = buffer.NewTelemetry(cfg.Buffer.Capacity,
		buffer.WithMetrics[message.Measurement](a.registry, "buffer"),
		buffer.WithDropCallback[message.Measurement](newOverwriteLog(logger, time.Minute).record),
	)
	if err != nil {
		return nil, fmt.Errorf("create buffer: %w", err)
	}
	a.monitor.Register("buffer", a.bufferHealth)

	if cfg.HTTP.Enabled {
		a.sender, err = httppost.New(cfg.SenderConfig(),
			httppost.WithLogger(logger),
			httppost.WithMetrics(a.registry))
		if err != nil {
			return nil, fmt.Errorf("create sender: %w", err)
		}
		a.monitor.Register("sender", func() health.Status {
			return health.Healthy("sender", a.sender.State().String())
		})
	}

	var sink *pubsub.Sink
	if cfg.PubSub.Enabled {
		sink, err = a.connectPubSub(ctx, core)
		if err != nil {
			a.closeSender()
			return nil, err
		}
	}

	dispatch := &dispatchStats{}
	reporterOpts := []health.ReporterOption{
		health.WithBuffer(a.ring),
		health.WithDispatch(dispatch),
		health.WithMonitor(a.monitor),
		health.WithReporterLogger(logger),
	}
	schedOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithMetrics(core),
	}
	// A nil *httppost.Sender must not reach the scheduler as a non-nil interface.
	var sender engine.Sender
	if a.sender != nil {
		sender = a.sender
		reporterOpts = append(reporterOpts, health.WithSender(a.sender))
	}
	if sink != nil {
		reporterOpts = append(reporterOpts, health.WithPublisher(sink))
		schedOpts = append(schedOpts, engine.WithPublisher(sink))
	}
	reporter := health.NewReporter(cfg.Device.ID, reporterOpts...)
	schedOpts = append(schedOpts, engine.WithStatusReporter(reporter))

	a.scheduler, err = engine.New(cfg.EngineConfig(), src, a.ring, sender, schedOpts...)
	if err != nil {
		a.shutdown(time.Second)
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	dispatch.scheduler = a.scheduler
	if a.sender != nil {
		a.sender.SetCallbacks(a.scheduler.OnSuccess, a.scheduler.OnFailure)
	}

	if cfg.Metrics.Enabled {
		a.metrics = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, a.registry)
		a.metrics.SetHealthHandler(a.monitor.Handler())
	}
	return a, nil
}

// waitForClock holds startup until the wall clock looks real. Giving up is only a warning.
func (a *agent) waitForClock(ctx context.Context, core *metric.Metrics) error {
	err := timestamp.WaitForSync(ctx, timestamp.System, timestamp.DefaultSyncConfig(), a.logger)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	core.RecordClockSynced(err == nil)
	if err != nil {
		a.logger.Warn("Wall clock not synchronized, timestamps may be wrong", "error", err)
		a.monitor.Update("clock", health.Degraded("clock", "wall clock not synchronized"))
		return nil
	}
	a.monitor.Update("clock", health.Healthy("clock", "synchronized"))
	return nil
}

func (a *agent) connectPubSub(ctx context.Context, core *metric.Metrics) (*pubsub.Sink, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(a.logger),
		natsclient.WithName(appName + "-" + a.cfg.Device.ID),
		natsclient.WithMetrics(a.registry),
		natsclient.WithStatusCallback(core.RecordPubsubConnected),
	}
	if a.cfg.PubSub.Username != "" || a.cfg.PubSub.Password != "" {
		opts = append(opts, natsclient.WithCredentials(a.cfg.PubSub.Username, a.cfg.PubSub.Password))
	}
	if a.cfg.PubSub.Token != "" {
		opts = append(opts, natsclient.WithToken(a.cfg.PubSub.Token))
	}
	if a.cfg.PubSub.TLS != nil {
		opts = append(opts, natsclient.WithTLS(*a.cfg.PubSub.TLS))
	}

	nc, err := natsclient.NewClient(a.cfg.PubSub.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	if err := nc.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect pubsub: %w", err)
	}
	a.nats = nc
	core.RecordPubsubConnected(nc.IsConnected())

	sink, err := pubsub.New(nc, a.cfg.TopicPrefix(),
		pubsub.WithLogger(a.logger),
		pubsub.WithMetrics(core),
		pubsub.WithMeasurements(a.cfg.PubSub.PublishMeasurements))
	if err != nil {
		return nil, fmt.Errorf("create pubsub sink: %w", err)
	}
	a.monitor.Register("pubsub", func() health.Status {
		if nc.IsConnected() {
			return health.Healthy("pubsub", nc.Status().String())
		}
		return health.Degraded("pubsub", nc.Status().String())
	})
	a.logger.Info("Pub/sub sink ready",
		"status_topic", sink.StatusTopic(),
		"measurement_topic", sink.MeasurementTopic())
	return sink, nil
}

func (a *agent) bufferHealth() health.Status {
	size, capacity := a.ring.Size(), a.ring.Capacity()
	msg := fmt.Sprintf("%d/%d buffered", size, capacity)
	if size >= capacity {
		return health.Degraded("buffer", msg+", overwriting oldest samples")
	}
	return health.Healthy("buffer", msg)
}

// run blocks until ctx is done or a component fails, then shuts down within timeout.
func (a *agent) run(ctx context.Context, timeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.scheduler.Run(gctx) })
	if a.metrics != nil {
		g.Go(func() error { return a.metrics.Start(gctx) })
		a.logger.Info("Metrics available", "address", a.metrics.Address())
	}

	err := g.Wait()
	a.shutdown(timeout)

	stats := a.scheduler.Stats()
	a.logger.Info("Agent stopped",
		"samples", stats.Samples,
		"chunks_acked", stats.ChunksAcked,
		"chunks_failed", stats.ChunksFailed,
		"unsent", a.ring.Size())
	return err
}

func (a *agent) shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a.closeSender()
	if a.nats != nil {
		if err := a.nats.Close(ctx); err != nil {
			a.logger.Warn("Pub/sub close failed", "error", err)
		}
	}
}

func (a *agent) closeSender() {
	if a.sender == nil {
		return
	}
	if err := a.sender.Close(); err != nil {
		a.logger.Warn("Sender close failed", "error", err)
	}
}
