// Command scopedb-web runs the entity aggregation web service.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/scopedb/internal/audit"
	"github.com/scrypster/scopedb/internal/cache"
	"github.com/scrypster/scopedb/internal/config"
	"github.com/scrypster/scopedb/internal/connector"
	"github.com/scrypster/scopedb/internal/engine"
	"github.com/scrypster/scopedb/internal/logging"
	"github.com/scrypster/scopedb/internal/metrics"
	"github.com/scrypster/scopedb/internal/notify"
	"github.com/scrypster/scopedb/internal/pivot"
	"github.com/scrypster/scopedb/internal/server"
	"github.com/scrypster/scopedb/internal/storage"
	"github.com/scrypster/scopedb/internal/storage/postgres"
	"github.com/scrypster/scopedb/internal/storage/sqlite"
	"github.com/scrypster/scopedb/web/handlers"
)

func main() {
	manifestFlag := flag.String("connectors", "", "Path to the connector manifest (overrides SCOPEDB_CONNECTORS_PATH)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *manifestFlag != "" {
		cfg.Aggregation.ManifestPath = *manifestFlag
	}

	logger, err := logging.New(cfg.Security.SecurityMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	store, err := openStore(cfg)
	if err != nil {
		logger.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer store.Close()

	manifest, err := config.LoadManifest(cfg.Aggregation.ManifestPath)
	if err != nil {
		logger.Fatal("failed to load connector manifest", zap.Error(err))
	}

	fetcher := connector.NewFetcher()
	registry := connector.NewRegistry(fetcher, connector.BreakerConfig{
		MaxFailures: uint32(cfg.Aggregation.RetryMax),
		Timeout:     cfg.Aggregation.RetryBackoff,
	})
	if err := registry.Apply(manifest); err != nil {
		logger.Fatal("failed to apply connector manifest", zap.Error(err))
	}

	pivotGraph, err := pivot.LoadGraph(cfg.Aggregation.PivotGraphPath)
	if err != nil {
		logger.Fatal("failed to load pivot graph", zap.Error(err))
	}

	metricsReg := metrics.NewRegistry()
	auditLog := audit.NewLog()
	hub := handlers.NewEventHub(logger)
	go hub.Run()

	runCache := cache.New[*engine.RunResult](cfg.Aggregation.CacheSize, cfg.Aggregation.CacheTTL,
		func(r *engine.RunResult) bool { return r != nil && r.Connectors != nil })

	orchestrator := engine.NewOrchestrator(engine.Options{
		Registry:    registry,
		Cache:       runCache,
		Metrics:     metricsReg,
		Store:       store,
		Audit:       auditLog,
		Events:      hub,
		Logger:      logger,
		RunDeadline: cfg.Aggregation.RunDeadline,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher := notify.NewManifestWatcher(cfg.Aggregation.ManifestPath, logger, registry.Apply)
	if err := watcher.Start(); err != nil {
		logger.Warn("manifest hot reload disabled", zap.Error(err))
	} else {
		defer watcher.Stop()
	}

	addr, err := server.Start(ctx, cfg, server.Deps{
		Orchestrator: orchestrator,
		Store:        store,
		Metrics:      metricsReg,
		Audit:        auditLog,
		Pivot:        pivot.NewExecutor(pivotGraph),
		Hub:          hub,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
	logger.Info("scopedb running", zap.String("addr", addr))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down gracefully")
	cancel()
	time.Sleep(1 * time.Second) // let in-flight connections close
}

// openStore selects and opens the configured profile store backend.
func openStore(cfg *config.Config) (storage.ProfileStore, error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		return postgres.NewProfileStore(cfg.Storage.PostgresDSN)
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, err
		}
		return sqlite.NewProfileStore(filepath.Join(cfg.Storage.DataPath, "scopedb.db"))
	}
}
