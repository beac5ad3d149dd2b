package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/bomflow/internal/domain"
	"github.com/shaiso/bomflow/internal/flow"
	"github.com/shaiso/bomflow/internal/mq"
	"github.com/shaiso/bomflow/internal/telemetry"
)

// Default configuration values.
const (
	defaultPrefetch = 2
)

// Runner — движок конвейера.
type Runner interface {
	Run(ctx context.Context, src flow.Source) (*domain.Project, error)
	Resume(ctx context.Context, id uuid.UUID) (*domain.Project, error)
}

// UnfinishedLister находит проекты, не дошедшие до терминального состояния.
type UnfinishedLister interface {
	Unfinished(ctx context.Context) ([]uuid.UUID, error)
}

// HistoryRecorder учитывает завершённые проекты в истории деталей.
type HistoryRecorder interface {
	RecordProject(ctx context.Context, p *domain.Project) error
}

// Worker обрабатывает подачи BOM из очереди projects.submitted.
//
// Несколько экземпляров могут потреблять из одной очереди.
// При старте (и с интервалом RecoverInterval, если задан) Worker
// продолжает проекты, прерванные падением процесса.
type Worker struct {
	engine  Runner
	pending UnfinishedLister
	history HistoryRecorder
	metrics *telemetry.Metrics

	conn     *mq.Connection
	consumer *mq.Consumer
	prefetch int

	recoverInterval time.Duration

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Worker.
type Config struct {
	// Engine — движок конвейера (обязателен).
	Engine Runner

	// Pending — источник незавершённых проектов для восстановления (необязателен).
	Pending UnfinishedLister

	// History — база знаний для учёта использования деталей (необязательна).
	History HistoryRecorder

	// Conn — соединение с RabbitMQ (обязательно для Start).
	Conn *mq.Connection

	// Prefetch — сколько подач обрабатывать одновременно (default: 2).
	Prefetch int

	// RecoverInterval — период повторного восстановления. 0 — только при старте.
	RecoverInterval time.Duration

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) (*Worker, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("%w: Engine", ErrMissingDependency)
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		engine:          cfg.Engine,
		pending:         cfg.Pending,
		history:         cfg.History,
		metrics:         cfg.Metrics,
		conn:            cfg.Conn,
		prefetch:        prefetch,
		recoverInterval: cfg.RecoverInterval,
		logger:          logger,
	}, nil
}

// Start запускает consumer подач и восстановление незавершённых проектов.
func (w *Worker) Start(ctx context.Context) error {
	if w.conn == nil {
		return fmt.Errorf("%w: Conn", ErrMissingDependency)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"prefetch", w.prefetch,
		"recover_interval", w.recoverInterval,
	)

	w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
		Queue:    mq.QueueProjectsSubmitted,
		Handler:  w.handleSubmission,
		Prefetch: w.prefetch,
	})

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("submission consumer error", "error", err)
		}
	}()

	if w.pending != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.recoverLoop(ctx)
		}()
	}

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker и ждёт завершения текущих прогонов.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	if w.consumer != nil {
		w.consumer.Stop()
	}
	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// recoverLoop продолжает прерванные проекты при старте и, если задан, по таймеру.
func (w *Worker) recoverLoop(ctx context.Context) {
	w.Recover(ctx)

	if w.recoverInterval <= 0 {
		return
	}

	ticker := time.NewTicker(w.recoverInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Recover(ctx)
		}
	}
}

// Recover продолжает все незавершённые проекты. Возвращает число продолженных.
//
// Unfinished не отдаёт проекты под действующей арендой; проект, захваченный
// другим процессом между списком и Resume, пропускается по ErrProjectBusy.
func (w *Worker) Recover(ctx context.Context) int {
	if w.pending == nil {
		return 0
	}

	ids, err := w.pending.Unfinished(ctx)
	if err != nil {
		w.logger.Error("failed to list unfinished projects", "error", err)
		return 0
	}
	if len(ids) == 0 {
		return 0
	}

	w.logger.Info("recovering unfinished projects", "count", len(ids))

	resumed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return resumed
		}

		project, err := w.engine.Resume(ctx, id)
		switch {
		case errors.Is(err, flow.ErrProjectBusy), errors.Is(err, flow.ErrProjectTerminal):
			w.logger.Debug("project not resumed", "project_id", id, "reason", err)
			continue
		case err != nil:
			w.logger.Error("failed to resume project", "project_id", id, "error", err)
			continue
		}

		resumed++
		w.recordHistory(ctx, project)
	}
	return resumed
}

// recordHistory учитывает завершённый проект в истории деталей.
// Ошибка только логируется: проект уже сохранён.
func (w *Worker) recordHistory(ctx context.Context, p *domain.Project) {
	if w.history == nil || p == nil || p.Status != domain.ProjectStatusComplete {
		return
	}
	if err := w.history.RecordProject(ctx, p); err != nil {
		w.logger.Warn("failed to record part usage",
			"project_id", p.ID,
			"error", err,
		)
	}
}
