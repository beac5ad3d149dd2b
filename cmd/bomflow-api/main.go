// bomflow-api — HTTP API конвейера закупок.
//
// Синхронные подачи выполняются в процессе API, асинхронные
// публикуются в RabbitMQ для bomflow-worker.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/bomflow/internal/api"
	"github.com/shaiso/bomflow/internal/app"
	"github.com/shaiso/bomflow/internal/config"
	"github.com/shaiso/bomflow/internal/telemetry"
)

var startTime = time.Now()

func main() {
	logger := telemetry.SetupLogger("bomflow-api")
	logger.Info("starting bomflow-api")

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	a, err := app.New(ctx, app.Options{
		Config:  cfg,
		Broker:  true,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	var publisher api.SubmissionPublisher
	if a.Publisher != nil {
		publisher = a.Publisher
	} else {
		logger.Warn("RabbitMQ not configured, async submissions disabled")
	}

	handler := api.NewHandler(api.Config{
		Engine:    a.Engine,
		Projects:  a.Projects,
		Knowledge: a.Knowledge,
		Publisher: publisher,
		Metrics:   metrics,
		Logger:    logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	handler.RegisterRoutes(mux)

	addr := fmt.Sprintf(":%d", cfg.API.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
