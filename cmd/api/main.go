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

	"github.com/timmy/subtitles/internal/api"
	"github.com/timmy/subtitles/internal/api/handler"
	"github.com/timmy/subtitles/internal/bootstrap"
	"github.com/timmy/subtitles/internal/config"
	"github.com/timmy/subtitles/internal/logger"
	"github.com/timmy/subtitles/internal/metrics"
	"github.com/timmy/subtitles/internal/scheduler"
)

func main() {
	log := logger.NewDefault()
	logger.SetDefaultLogger(log)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load config")
	}

	if cfg.Metrics.Enabled {
		metrics.MustRegister()
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Pipeline runs outlive the request that started them
	pool := scheduler.NewPool(cfg.Scheduler.Workers, cfg.Scheduler.QueueSize, log)

	app, err := bootstrap.New(ctx, cfg, pool, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize application")
	}
	defer app.Close()

	pool.Start(ctx)

	subtitleHandler := handler.NewSubtitleHandler(app.Processor, app.Hub, cfg.Server.DefaultTenant)
	healthHandler := handler.NewHealthHandler(map[string]handler.Pinger{
		"database": app.Ping,
	})

	router := api.SetupRouter(subtitleHandler, healthHandler, cfg, log)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.WithFields(logger.Fields{
			"port":     cfg.Server.Port,
			"mode":     cfg.Server.Mode,
			"storage":  app.Subtitles.Name(),
			"workers":  cfg.Scheduler.Workers,
			"database": cfg.Database.Driver,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	// Let running jobs reach a persisted state before the database closes
	pool.Stop()
	stop()

	log.Info("Server exited")
}
