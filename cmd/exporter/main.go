package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"portfolio_exporter/internal/aggregate"
	"portfolio_exporter/internal/artifact"
	"portfolio_exporter/internal/capture"
	"portfolio_exporter/internal/config"
	"portfolio_exporter/internal/core"
	"portfolio_exporter/internal/export"
	"portfolio_exporter/internal/infrastructure/metrics"
	"portfolio_exporter/internal/ingest"
	"portfolio_exporter/internal/refdata"
	"portfolio_exporter/internal/storage"
	"portfolio_exporter/pkg/concurrency"
	"portfolio_exporter/pkg/logging"
	"portfolio_exporter/pkg/telemetry"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/exporter.yaml", "Path to configuration file")
	listenAddr := flag.String("listen", "", "Capture server address (overrides config)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("exporter version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.Capture.ListenAddr = *listenAddr
	}

	// Providers must be installed before the logger so the zap bridge
	// tees into a live log provider.
	tel, telErr := telemetry.Setup("portfolio_exporter")

	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info("Starting exporter",
		"version", version,
		"listen_addr", cfg.Capture.ListenAddr,
		"monitored_origin", cfg.Ingest.MonitoredOrigin,
	)

	if telErr != nil {
		logger.Warn("Failed to initialize telemetry", "error", telErr)
	} else {
		logger.Info("Telemetry initialized")
	}

	// Blob store
	var store core.IBlobStore
	switch cfg.Storage.Driver {
	case "sqlite":
		sqliteStore, err := storage.NewSQLiteStore(cfg.Storage.Path)
		if err != nil {
			logger.Error("Failed to open blob store", "error", err, "path", cfg.Storage.Path)
			os.Exit(1)
		}
		defer sqliteStore.Close()
		store = sqliteStore
	default:
		store = storage.NewMemoryStore()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)

	// Capture hub
	hub := capture.NewHub(logger)
	group.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	// The trigger and the server are the same object; declare the server
	// late and hand the reconciler a forwarding trigger.
	trigger := &serverTrigger{}

	refStore := refdata.NewStore()
	reconciler := ingest.NewReconciler(ingest.Config{
		MonitoredOrigin: cfg.Ingest.MonitoredOrigin,
		DetailTimeout:   cfg.Ingest.DetailTimeout(),
	}, refStore, store, trigger, logger)
	reconciler.Restore(ctx)

	// Export pipeline
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "ExportAggregation",
		MaxWorkers:  cfg.Concurrency.ExportPoolSize,
		MaxCapacity: cfg.Concurrency.ExportPoolBuffer,
	}, logger)
	defer pool.Stop()

	aggregator := aggregate.New(cfg.Aggregation.BaseExtraDecimals)
	exportService := export.NewService(reconciler, refStore, aggregator, pool, logger)

	var exporter capture.Exporter = exportService
	if cfg.Export.OutputDir != "" {
		exporter = newTeeExporter(exportService, cfg.Export.OutputDir, logger)
	}

	server := capture.NewServer(hub, reconciler, exporter, logger, cfg.Capture.AllowedOrigins)
	server.SetProduction(cfg.Capture.Production)
	server.SetMaxConnections(cfg.Capture.MaxConnections)
	server.SetRateLimit(cfg.Capture.RateLimit, cfg.Capture.RateBurst)
	trigger.server = server

	reconciler.SetStatusObserver(func(update core.StatusUpdate) {
		server.PushStatus(update)
	})

	// Optional standalone metrics endpoint
	var metricsServer *metrics.Server
	if cfg.Telemetry.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Telemetry.MetricsPort, logger)
		metricsServer.Start()
	}

	group.Go(func() error {
		return server.Start(gctx, cfg.Capture.ListenAddr)
	})

	logger.Info("exporter is running",
		"websocket_url", fmt.Sprintf("ws://localhost%s/ws", cfg.Capture.ListenAddr),
		"export_url", fmt.Sprintf("http://localhost%s/export", cfg.Capture.ListenAddr),
		"health_url", fmt.Sprintf("http://localhost%s/health", cfg.Capture.ListenAddr),
	)

	if err := group.Wait(); err != nil {
		logger.Error("Capture server error", "error", err)
	} else {
		logger.Info("Received shutdown signal, gracefully shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Error during server shutdown", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error during metrics server shutdown", "error", err)
		}
	}
	if tel != nil {
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during telemetry shutdown", "error", err)
		}
	}

	logger.Info("exporter stopped")
}

// serverTrigger forwards detail triggers to the capture server once it
// exists; the reconciler is constructed before the server.
type serverTrigger struct {
	server *capture.Server
}

func (t *serverTrigger) TriggerDetails(ctx context.Context) error {
	if t.server == nil {
		return capture.ErrNoClients
	}
	return t.server.TriggerDetails(ctx)
}

// teeExporter also writes every produced artifact to the output directory.
type teeExporter struct {
	inner  *export.Service
	sink   core.IArtifactSink
	logger core.ILogger
}

func newTeeExporter(inner *export.Service, dir string, logger core.ILogger) *teeExporter {
	return &teeExporter{
		inner:  inner,
		sink:   artifact.NewFileSink(dir, logger),
		logger: logger,
	}
}

func (t *teeExporter) Export(ctx context.Context, q export.Query) (*export.Artifact, error) {
	art, err := t.inner.Export(ctx, q)
	if err != nil {
		return nil, err
	}
	if err := t.sink.Deliver(art.Content, art.SuggestedName, art.MimeType); err != nil {
		t.logger.Warn("Failed to write artifact copy", "error", err)
	}
	return art, nil
}
