package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/zerverless/tabular/internal/api"
	"github.com/zerverless/tabular/internal/config"
	"github.com/zerverless/tabular/internal/db"
	"github.com/zerverless/tabular/internal/job"
	"github.com/zerverless/tabular/internal/logging"
	"github.com/zerverless/tabular/internal/storage"
	"github.com/zerverless/tabular/internal/worker"
	"github.com/zerverless/tabular/internal/ws"
)

func main() {
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	flush := logging.Setup(cfg.LogLevel, cfg.LogFormat, cfg.SeqURL)
	err = run(cfg)
	if err != nil {
		slog.Error("fatal", "error", err)
	}
	flush()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	slog.Info("starting tabular node",
		"node_id", cfg.NodeID,
		"port", cfg.HTTPPort,
		"job_store", cfg.JobStore,
		"workers", cfg.WorkerCount,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files, err := storage.NewFileStore(cfg.UploadDir)
	if err != nil {
		return fmt.Errorf("upload dir: %w", err)
	}
	results, err := storage.NewResultStore(cfg.ProcessedDir)
	if err != nil {
		return fmt.Errorf("processed dir: %w", err)
	}

	store, closeStore, err := openJobStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	queue := job.NewMemoryQueue()
	mgr := job.NewManager(store, queue, files, results, job.NewHub(), job.Options{
		PreviewDefault: cfg.PreviewDefault,
		PreviewMax:     cfg.PreviewMax,
		LinkPrefix:     "/processed/",
	})

	if _, err := mgr.Recover(ctx); err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}

	pool := worker.New(queue, mgr, cfg.WorkerCount, cfg.JobTimeoutDuration())
	poolCtx, stopPool := context.WithCancel(context.Background())
	poolDone := make(chan error, 1)
	go func() {
		poolDone <- pool.Run(poolCtx)
	}()

	wsServer := ws.NewServer(mgr)
	router := api.NewRouter(cfg, api.Services{
		Jobs:  mgr,
		Files: storage.NewHandlers(files, results, cfg.UploadMaxBytes),
		Pool:  pool,
		WS:    wsServer,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-serveErr:
		stopPool()
		<-poolDone
		return fmt.Errorf("server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeoutDuration())
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Workers finish the job they hold; queued jobs stay PENDING for Recover.
	stopPool()
	select {
	case err := <-poolDone:
		if err != nil {
			slog.Error("worker pool error", "error", err)
		}
	case <-shutdownCtx.Done():
		slog.Warn("workers did not finish in time", "busy", pool.Stats().Busy)
	}

	slog.Info("server stopped")
	return nil
}

// openJobStore selects the job store backend named by cfg.JobStore.
func openJobStore(ctx context.Context, cfg *config.Config) (job.JobStore, func(), error) {
	switch cfg.JobStore {
	case config.StoreBadger:
		dbStore, err := db.NewStore(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open badger: %w", err)
		}
		slog.Info("using badger job store", "dir", cfg.DataDir)
		return job.NewPersistentStore(dbStore), func() {
			if err := dbStore.Close(); err != nil {
				slog.Error("close badger", "error", err)
			}
		}, nil

	case config.StorePostgres:
		poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse database URL: %w", err)
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}
		store, err := job.NewPGStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		slog.Info("using postgres job store")
		return store, pool.Close, nil

	default:
		slog.Info("using in-memory job store")
		return job.NewMemoryStore(), func() {}, nil
	}
}
