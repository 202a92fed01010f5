// Package main implements the focusstream entry point. Focusstream is a
// distraction-detection pipeline: it ingests browser interaction events,
// buffers and samples them per session, persists flushed windows, and
// scores each window for distraction probability.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/focusstream/component"
	"github.com/c360/focusstream/config"
	"github.com/c360/focusstream/feature"
	"github.com/c360/focusstream/health"
	wsinput "github.com/c360/focusstream/input/websocket"
	"github.com/c360/focusstream/metric"
	"github.com/c360/focusstream/model"
	"github.com/c360/focusstream/natsclient"
	"github.com/c360/focusstream/storage"
	"github.com/c360/focusstream/storage/memstore"
	"github.com/c360/focusstream/storage/natsstore"
	"github.com/c360/focusstream/stream"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "focusstream"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	slog.Info("Starting focusstream",
		"version", Version,
		"config_path", cliCfg.ConfigPath,
		"buffer_capacity", cfg.Pipeline.BufferCapacity,
		"flush_interval", cfg.Pipeline.FlushInterval.String())

	ctx := context.Background()

	registry := metric.NewRegistry()

	natsClient, store, err := setupStorage(ctx, cfg, registry)
	if err != nil {
		return err
	}
	if natsClient != nil {
		defer natsClient.Close(ctx)
	}

	models, err := setupModels(ctx, cfg)
	if err != nil {
		return err
	}

	pipeline, err := stream.New(stream.Config{
		BufferCapacity: cfg.Pipeline.BufferCapacity,
		FlushInterval:  cfg.Pipeline.FlushInterval,
		IdleTimeout:    cfg.Pipeline.IdleTimeout,
		Sampling:       cfg.Pipeline.SamplingIntervals(),
	}, store, models,
		stream.WithLogger(logger),
		stream.WithMetrics(registry.CoreMetrics()),
		stream.WithSink(predictionLogger(logger)))
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}

	components := []component.Lifecycle{pipeline}

	if cfg.Ingest.WebSocket.Enabled {
		var nc *natsclient.Client
		if natsClient != nil && natsClient.IsHealthy() {
			nc = natsClient
		}
		ingest, err := setupIngest(cfg, pipeline, registry, nc, logger)
		if err != nil {
			return err
		}
		components = append(components, ingest)
	}

	for _, c := range components {
		if err := c.Initialize(); err != nil {
			return fmt.Errorf("initialize %s: %w", c.Name(), err)
		}
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", c.Name(), err)
		}
	}

	monitor := health.NewMonitor()
	healthCtx, stopHealth := context.WithCancel(ctx)
	defer stopHealth()
	go reportHealth(healthCtx, monitor, pipeline, natsClient)

	var metricsServer *metric.Server
	if cfg.Metrics.Enabled {
		metricsServer = metric.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, registry,
			metric.WithHandler("/healthz", health.NewHandler(monitor, appName)))
		errCh := make(chan error, 1)
		if err := metricsServer.Start(errCh); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		go func() {
			if serveErr := <-errCh; serveErr != nil {
				slog.Error("Metrics server failed", "error", serveErr)
			}
		}()
	}

	shutdownTimeout := cliCfg.ShutdownTimeout
	if cfg.Pipeline.ShutdownTimeout > 0 {
		shutdownTimeout = cfg.Pipeline.ShutdownTimeout
	}

	waitForSignal()

	slog.Info("Shutting down", "timeout", shutdownTimeout.String())

	// Stop in reverse start order so ingest drains into the pipeline
	// before the pipeline's final flush.
	var stopErr error
	for i := len(components) - 1; i >= 0; i-- {
		if err := components[i].Stop(shutdownTimeout); err != nil {
			slog.Error("Component stop failed", "component", components[i].Name(), "error", err)
			stopErr = err
		}
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(5 * time.Second); err != nil {
			slog.Error("Metrics server stop failed", "error", err)
		}
	}

	slog.Info("Shutdown complete")
	return stopErr
}

// setupStorage connects to NATS and opens the KV-backed event store, or
// falls back to the in-memory store when NATS is disabled.
func setupStorage(ctx context.Context, cfg *config.Config, registry *metric.Registry) (*natsclient.Client, storage.EventStore, error) {
	if !cfg.NATS.Enabled {
		slog.Info("NATS disabled, using in-memory event store")
		return nil, memstore.New(), nil
	}

	client := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait))

	if err := client.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	registry.CoreMetrics().RecordNATSStatus(true)

	store, err := natsstore.New(ctx, client, cfg.NATS.Bucket)
	if err != nil {
		client.Close(ctx)
		return nil, nil, fmt.Errorf("open event store bucket %q: %w", cfg.NATS.Bucket, err)
	}

	slog.Info("Event store ready", "bucket", cfg.NATS.Bucket, "nats_url", cfg.NATS.URL)
	return client, store, nil
}

func setupModels(ctx context.Context, cfg *config.Config) (*model.Manager, error) {
	models := model.NewManager(
		model.WithDomainLists(cfg.Model.DistractionDomains, cfg.Model.ProductiveDomains))

	kind := model.Kind(cfg.Model.PreferredKind)
	if err := models.LoadModel(ctx, kind); err != nil {
		// The manager keeps serving the conservative fallback; a missing
		// model artifact should not take the pipeline down.
		slog.Warn("Model load failed, predictions fall back to defaults",
			"kind", cfg.Model.PreferredKind, "error", err)
	} else {
		slog.Info("Model active", "kind", cfg.Model.PreferredKind, "version", models.ActiveVersion())
	}

	return models, nil
}

func setupIngest(cfg *config.Config, pipeline *stream.Pipeline, registry *metric.Registry,
	nc *natsclient.Client, logger *slog.Logger) (*wsinput.Input, error) {

	var conn *nats.Conn
	if nc != nil {
		conn = nc.Conn()
	}
	compLogger := component.NewLogger("websocket_input", "", conn, logger)

	ingest, err := wsinput.NewInput("websocket_input", wsinput.Config{
		Addr:           cfg.Ingest.WebSocket.Addr,
		Path:           cfg.Ingest.WebSocket.Path,
		MaxConnections: cfg.Ingest.WebSocket.MaxConnections,
	}, pipeline, registry, compLogger)
	if err != nil {
		return nil, fmt.Errorf("create websocket ingest: %w", err)
	}
	return ingest, nil
}

func predictionLogger(logger *slog.Logger) stream.PredictionSink {
	return func(pred model.Prediction, _ feature.Vector) {
		logger.Info("prediction",
			"probability", pred.Probability,
			"confidence", pred.Confidence,
			"model_version", pred.ModelVersion)
	}
}

// reportHealth samples pipeline and connection state periodically. Lost
// events mark the pipeline degraded, not unhealthy: it is still serving,
// just shedding under storage pressure.
func reportHealth(ctx context.Context, monitor *health.Monitor, pipeline *stream.Pipeline, nc *natsclient.Client) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	observe := func() {
		info := pipeline.SessionInfo()
		if info.EventsLost > 0 {
			monitor.UpdateDegraded("pipeline",
				fmt.Sprintf("%d events lost under flush failure", info.EventsLost))
		} else {
			monitor.UpdateHealthy("pipeline",
				fmt.Sprintf("%d events buffered", info.BufferLength))
		}

		if nc != nil {
			if nc.IsHealthy() {
				monitor.UpdateHealthy("nats", "connected")
			} else {
				monitor.UpdateUnhealthy("nats", "connection lost")
			}
		}
	}

	observe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observe()
		}
	}
}

func waitForSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("Signal received", "signal", sig.String())
}
