package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nvik/alphafeed/internal/calendar"
	"github.com/nvik/alphafeed/internal/config"
	"github.com/nvik/alphafeed/internal/engine"
	"github.com/nvik/alphafeed/internal/provider"
	"github.com/nvik/alphafeed/internal/registry"
	"github.com/nvik/alphafeed/internal/scheduler"
	"github.com/nvik/alphafeed/internal/snapshot"
	"github.com/nvik/alphafeed/internal/store"
	"github.com/nvik/alphafeed/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/backfiller.local.yaml", "path to config file")
	flag.Parse()

	// Load configuration first so the log level can honor it
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("starting backfiller",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)
	pg, err := store.Connect(ctx, cfg.Database.ConnString(), cfg.Database.MinConns, cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pg.Close()
	logger.Info("database connected")

	// Trading calendar
	cal, err := calendar.New()
	if err != nil {
		logger.Error("failed to load trading calendar", "error", err)
		os.Exit(1)
	}

	// Upstream client behind the rate limiter
	client := provider.NewClient(
		cfg.Provider.BaseURL,
		cfg.Provider.APIKey,
		provider.WithLogger(logger),
		provider.WithTimeout(cfg.Provider.Timeout),
	)

	sched := scheduler.New(scheduler.Config{
		PerMinute:     cfg.Scheduler.PerMinute,
		PerSecond:     cfg.Scheduler.PerSecond,
		BatchCap:      cfg.Scheduler.BatchCap,
		MaxRetries:    cfg.Scheduler.MaxRetries,
		RetryDelay:    cfg.Scheduler.RetryDelay,
		MinSleep:      cfg.Scheduler.MinSleep,
		PruneInterval: cfg.Scheduler.PruneInterval,
		MaxPriority:   cfg.Scheduler.MaxPriority,
	}, client, logger)
	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer stopComponent(sched.Stop, "scheduler", logger)

	// Symbol registry
	reg := registry.New(pg, logger)
	if err := reg.Preload(ctx); err != nil {
		logger.Error("failed to preload registry", "error", err)
		os.Exit(1)
	}
	for _, sym := range cfg.Symbols {
		if err := reg.Ensure(ctx, sym); err != nil {
			logger.Error("failed to register seed symbol", "symbol", sym, "error", err)
			os.Exit(1)
		}
	}

	// Background quote persistence
	writer := store.NewQuoteWriter(store.WriterConfig{
		QueueSize:  cfg.Writer.QueueSize,
		MaxRetries: cfg.Writer.MaxRetries,
		RetryDelay: cfg.Writer.RetryDelay,
	}, pg, logger)
	if err := writer.Start(ctx); err != nil {
		logger.Error("failed to start quote writer", "error", err)
		os.Exit(1)
	}
	defer stopComponent(writer.Stop, "quote writer", logger)

	// Reconciliation engine
	eng := engine.New(engine.Config{
		SettlementHour:   cfg.Engine.SettlementHour,
		FetchBatchSize:   cfg.Engine.FetchBatchSize,
		Priority:         cfg.Engine.Priority,
		RealtimePriority: cfg.Engine.RealtimePriority,
	}, cal, sched, reg, pg, writer, pg, logger)

	// Periodic snapshot jobs
	if cfg.Snapshot.Enabled {
		runner := snapshot.New(snapshot.Config{
			EODTime:         cfg.Snapshot.EODTime,
			IntradayEvery:   cfg.Snapshot.IntradayEvery,
			BackfillDays:    cfg.Snapshot.BackfillDays,
			JobTimeout:      cfg.Snapshot.JobTimeout,
			ReconcileOption: cfg.Snapshot.ReconcileOptions,
		}, cal, eng, reg, pg, logger)
		if err := runner.Start(ctx); err != nil {
			logger.Error("failed to start snapshot jobs", "error", err)
			os.Exit(1)
		}
		defer stopComponent(runner.Stop, "snapshot jobs", logger)
	}

	// Ops server
	opsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Ops.Port),
		Handler: createOpsHandler(pg, reg, sched, logger),
	}
	go func() {
		logger.Info("starting ops server", "port", cfg.Ops.Port)
		if err := opsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("ops server error", "error", err)
		}
	}()

	logger.Info("backfiller running",
		"symbols", len(reg.Symbols()),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Ops.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	opsServer.Shutdown(shutdownCtx)

	logger.Info("backfiller stopped")
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func stopComponent(stop func(context.Context) error, name string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Warn("component stop failed", "component", name, "error", err)
	}
}

// createOpsHandler serves health and scheduler-stats endpoints.
func createOpsHandler(pg *store.Postgres, reg *registry.Registry, sched *scheduler.Scheduler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		if err := pg.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["postgres"] = "connected"
		}

		symbols := reg.Symbols()
		health.Components["registry"] = map[string]interface{}{
			"symbols": len(symbols),
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sched.Stats())
	})

	return mux
}
