package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"schememap/internal/cli"
	apphttp "schememap/internal/http"
	applog "schememap/internal/log"
	"schememap/internal/metrics"
	"schememap/internal/services"
	"schememap/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	m := metrics.New(prometheus.DefaultRegisterer)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 2*time.Minute)
	loader, closeBackend, err := cli.NewLoader(startCtx, logger, cfg, m)
	if err != nil {
		logger.Error("Failed to initialize data sources", applog.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if _, err := loader.Reload(startCtx, "startup"); err != nil {
		logger.Error("Failed to load dataset", applog.FieldError, err)
		os.Exit(1)
	}
	cancelStart()

	explorer := services.NewExplorer(loader.Holder(), int64(cfg.IncomeMax), m, logger)
	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		ReadTimeout:        cfg.ReadTimeout,
		WriteTimeout:       cfg.WriteTimeout,
		IncomeDefault:      int64(cfg.IncomeDefault),
		AdminToken:         cfg.AdminToken,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Registerer:         prometheus.DefaultRegisterer,
		Gatherer:           prometheus.DefaultGatherer,
		Logger:             logger,
	}, explorer, loader.Holder(), loader)
	if err != nil {
		logger.Error("Failed to create HTTP server", applog.FieldError, err)
		os.Exit(1)
	}
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	amqpClient, err := cli.NewAMQPClient(logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", applog.FieldError, err)
			}
		}
		if err := closeBackend(); err != nil {
			logger.Warn("Backend close error", applog.FieldError, err)
		}
	})

	if amqpClient != nil {
		errc := worker.NewReloadWorker(loader, amqpClient).Start(ctx)
		go func() {
			if err := <-errc; err != nil {
				logger.Error("Reload consumer stopped", applog.FieldError, err)
			}
		}()
	}

	logger.Info("Starting schememap server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}
