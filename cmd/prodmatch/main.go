package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/prodmatch/internal/app"
	"github.com/kailas-cloud/prodmatch/internal/config"
	"github.com/kailas-cloud/prodmatch/internal/job"
	logpkg "github.com/kailas-cloud/prodmatch/internal/logger"
	"github.com/kailas-cloud/prodmatch/internal/metrics"
	chiTransport "github.com/kailas-cloud/prodmatch/internal/transport/chi"
	"github.com/kailas-cloud/prodmatch/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting prodmatch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("catalog_driver", cfg.Catalog.Driver),
	)

	// Register pipeline metrics explicitly (no init())
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to wire services", zap.Error(err))
	}
	defer a.Close()

	scheduler := job.NewScheduler(logger)
	if cfg.Monitor.Enabled() {
		if err := scheduler.Add(cfg.Monitor.Schedule, job.NewCacheStats(a.Embeddings, logger)); err != nil {
			logger.Fatal("Failed to schedule monitor", zap.Error(err))
		}
		if err := scheduler.Add(cfg.Monitor.Schedule, job.NewHealthWatch(a.Health, 0, logger)); err != nil {
			logger.Fatal("Failed to schedule monitor", zap.Error(err))
		}
		scheduler.Start(ctx)
	}

	server := chiTransport.NewServer(a.Batch, a.Embeddings, a.Health, logger).
		WithMaxItems(cfg.Matching.MaxItems)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      chiTransport.NewRouter(server, cfg.Auth.APIKeys, logger),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	if cfg.Monitor.Enabled() {
		scheduler.Stop()
	}

	logger.Info("Server stopped gracefully", zap.Object("cache", a.Embeddings.Stats()))
}
