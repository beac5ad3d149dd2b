// bomflow-worker — обрабатывает подачи из RabbitMQ.
//
// При старте продолжает проекты, прерванные падением процесса.
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/bomflow/internal/app"
	"github.com/shaiso/bomflow/internal/config"
	"github.com/shaiso/bomflow/internal/telemetry"
	"github.com/shaiso/bomflow/internal/worker"
)

func main() {
	logger := telemetry.SetupLogger("bomflow-worker")
	logger.Info("starting bomflow-worker")

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

	if a.Pool == nil {
		logger.Warn("database.url not set, projects are kept in memory")
	}

	w, err := worker.New(worker.Config{
		Engine:          a.Engine,
		Pending:         a.Projects,
		History:         a.Knowledge,
		Conn:            a.Conn,
		Prefetch:        cfg.Worker.Prefetch,
		RecoverInterval: cfg.RecoverInterval(),
		Metrics:         metrics,
		Logger:          logger,
	})
	if err != nil {
		logger.Error("failed to create worker", "error", err)
		os.Exit(1)
	}

	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.Worker.MetricsPort)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	w.Stop()
	logger.Info("bomflow-worker stopped")
}
