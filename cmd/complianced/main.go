// Complianced is the payment compliance back office daemon.
//
// It fronts an external Compliance Service: rulebook uploads, the cached
// rules library, payment intake and validation, and session statistics, all
// behind a local HTTP API.
//
// Configuration is loaded from ~/.config/complianced/config.yaml and
// overridden by environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the daemon with defaults
//	complianced
//
//	# Configure via environment
//	SERVER_PORT=9090 SERVICE_BASE_URL=http://localhost:8000 complianced
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/clearlane/complianced/internal/compliance"
	"github.com/clearlane/complianced/internal/complianceapi"
	"github.com/clearlane/complianced/internal/config"
	"github.com/clearlane/complianced/internal/intake"
	"github.com/clearlane/complianced/internal/library"
	"github.com/clearlane/complianced/internal/logging"
	"github.com/clearlane/complianced/internal/monitor"
	"github.com/clearlane/complianced/internal/orchestrator"
	"github.com/clearlane/complianced/internal/registry"
	"github.com/clearlane/complianced/internal/server"
	"github.com/clearlane/complianced/internal/stats"
	"github.com/clearlane/complianced/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/complianced/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  complianced           Start the back office daemon\n")
			fmt.Fprintf(os.Stderr, "  complianced version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("complianced\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run wires the back office and blocks until the context is cancelled.
//
//  1. Loads and validates configuration
//  2. Initializes logger and telemetry
//  3. Creates the Compliance Service client
//  4. Wires registry, library, intake, monitor, orchestrator, statistics
//  5. Probes connectivity and warms caches best-effort
//  6. Serves the HTTP API until shutdown
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("Starting complianced",
		zap.Int("port", cfg.Server.Port),
		zap.String("service_url", cfg.Service.BaseURL),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	var provider *telemetry.Provider
	var metricsHandler http.Handler
	if cfg.Telemetry.Enabled {
		provider, err = telemetry.Setup(cfg.Telemetry.ServiceName, version)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		metricsHandler = provider.Handler()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", zap.Error(err))
			}
		}()
	}

	client, err := complianceapi.New(complianceapi.Config{
		BaseURL:   cfg.Service.BaseURL,
		APIKey:    cfg.Service.APIKey,
		Timeout:   cfg.Service.Timeout,
		RateLimit: cfg.Service.RateLimit,
		Burst:     cfg.Service.Burst,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create compliance service client: %w", err)
	}

	lib := library.New(client, logger)
	reg := registry.New(client, lib, logger)
	ink := intake.New(client, cfg.Schemes.Known, cfg.Schemes.Default, logger)
	mon := monitor.New(client, logger)
	agg := stats.New(client, logger)

	orch := orchestrator.New(client, ink, mon, logger)
	metrics := server.NewMetrics(logger)
	orch.OnComplete(func(result *compliance.ValidationResult) {
		metrics.RecordSubmission(string(result.Status))
	})

	srv, err := server.New(server.Deps{
		Registry:       reg,
		Library:        lib,
		Monitor:        mon,
		Orchestrator:   orch,
		Stats:          agg,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
	}, logger, &server.Config{Host: cfg.Server.Host, Port: cfg.Server.Port})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	warmUp(ctx, logger, mon, reg, lib, agg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// warmUp probes the Compliance Service and preloads caches. Every step is
// best-effort: an unreachable service leaves the daemon up and degraded, to
// be recovered by an explicit probe later.
func warmUp(ctx context.Context, logger *zap.Logger, mon *monitor.Monitor, reg *registry.Registry, lib *library.Library, agg *stats.Aggregator) {
	if _, err := mon.Probe(ctx); err != nil {
		logger.Warn("compliance service unreachable at startup, continuing degraded", zap.Error(err))
		return
	}
	if err := reg.Refresh(ctx); err != nil {
		logger.Warn("rulebook refresh failed at startup", zap.Error(err))
	}
	if err := lib.Load(ctx); err != nil {
		logger.Warn("rules library load failed at startup", zap.Error(err))
	}
	if err := agg.RefreshReport(ctx); err != nil {
		logger.Warn("statistics refresh failed at startup", zap.Error(err))
	}
}
