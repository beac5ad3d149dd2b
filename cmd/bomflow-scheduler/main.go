// bomflow-scheduler — подаёт BOM по расписаниям из конфигурации.
//
// С брокером подачи идут в очередь, без брокера конвейер выполняется
// в процессе. Несколько экземпляров выбирают лидера через
// PostgreSQL advisory lock.
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

	"github.com/shaiso/bomflow/internal/app"
	"github.com/shaiso/bomflow/internal/config"
	"github.com/shaiso/bomflow/internal/scheduler"
	"github.com/shaiso/bomflow/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger("bomflow-scheduler")
	logger.Info("starting bomflow-scheduler")

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
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

	var submitter scheduler.Submitter
	if a.Publisher != nil {
		submitter = scheduler.QueueSubmitter{Publisher: a.Publisher}
	} else {
		logger.Warn("RabbitMQ not configured, running submissions in process")
		submitter = scheduler.EngineSubmitter{Engine: a.Engine}
	}

	var leader scheduler.Leader
	if a.Pool != nil {
		leader = scheduler.NewPGLeader(a.Pool, scheduler.LockKey)
	}

	s, err := scheduler.New(scheduler.Config{
		Schedules:    cfg.Schedules,
		Submitter:    submitter,
		Leader:       leader,
		TickInterval: cfg.TickInterval(),
		Metrics:      metrics,
		Logger:       logger,
	}, time.Now())
	if err != nil {
		logger.Error("invalid schedules", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.Scheduler.MetricsPort)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("http error", "error", err)
			cancel()
		}
	}()

	if err := s.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("scheduler stopped", "error", err)
	}
	logger.Info("bomflow-scheduler stopped")
}
