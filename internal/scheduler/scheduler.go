package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/shaiso/bomflow/internal/domain"
	"github.com/shaiso/bomflow/internal/telemetry"
)

// Default configuration values.
const (
	defaultTickInterval = 30 * time.Second
)

// Scheduler подаёт BOM на повторную проверку по расписанию.
//
// Расписания берутся из конфигурации и живут в памяти процесса:
// после перезапуска NextDueAt вычисляется заново от текущего времени.
type Scheduler struct {
	schedules []*domain.Schedule
	submitter Submitter
	readFile  func(string) ([]byte, error)
	leader    Leader
	interval  time.Duration
	metrics   *telemetry.Metrics
	logger    *slog.Logger

	mu sync.Mutex
}

// Config — конфигурация Scheduler.
type Config struct {
	Schedules []domain.Schedule
	Submitter Submitter

	// Leader — выбор лидера между экземплярами. nil — этот процесс всегда лидер.
	Leader Leader

	// TickInterval — период проверки расписаний (default: 30s).
	TickInterval time.Duration

	// ReadFile читает BOM и intake (default: os.ReadFile).
	ReadFile func(string) ([]byte, error)

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// New создаёт Scheduler, проверяет расписания и вычисляет первое NextDueAt от now.
func New(cfg Config, now time.Time) (*Scheduler, error) {
	if cfg.Submitter == nil {
		return nil, fmt.Errorf("%w: submitter is required", ErrInvalidSchedule)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = defaultTickInterval
	}
	readFile := cfg.ReadFile
	if readFile == nil {
		readFile = os.ReadFile
	}

	seen := make(map[string]bool, len(cfg.Schedules))
	schedules := make([]*domain.Schedule, 0, len(cfg.Schedules))
	for i := range cfg.Schedules {
		sched := cfg.Schedules[i]
		if err := Validate(&sched); err != nil {
			return nil, err
		}
		if seen[sched.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSchedule, sched.Name)
		}
		seen[sched.Name] = true

		if sched.Enabled && sched.NextDueAt == nil {
			next, err := NextDue(&sched, now)
			if err != nil {
				return nil, err
			}
			sched.NextDueAt = &next
		}
		schedules = append(schedules, &sched)
	}

	return &Scheduler{
		schedules: schedules,
		submitter: cfg.Submitter,
		readFile:  readFile,
		leader:    cfg.Leader,
		interval:  interval,
		metrics:   cfg.Metrics,
		logger:    logger,
	}, nil
}

// Tick подаёт все расписания, время которых подошло. Возвращает число подач.
//
// Ошибка одного расписания не блокирует остальные; NextDueAt такого
// расписания всё равно сдвигается, иначе оно срабатывало бы каждый тик.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due, submitted int
	for _, sched := range s.schedules {
		if ctx.Err() != nil {
			break
		}
		if !sched.IsDue(now) {
			continue
		}
		due++

		id, err := s.submit(ctx, sched)
		s.metrics.Submission("scheduler", err != nil)
		if err != nil {
			s.logger.Error("scheduled submission failed",
				"schedule", sched.Name,
				"error", err,
			)
		} else {
			submitted++
			s.logger.Info("scheduled submission sent",
				"schedule", sched.Name,
				"submission_id", id,
			)
		}

		next, err := NextDue(sched, now)
		if err != nil {
			// расписание проверено в New, сюда попадать не должны
			s.logger.Error("failed to calculate next due, disabling schedule",
				"schedule", sched.Name,
				"error", err,
			)
			sched.Enabled = false
			continue
		}
		sched.RecordRun(id, now, next)
	}

	if due > 0 {
		s.logger.Info("scheduler tick completed", "due", due, "submitted", submitted)
	}
	return submitted
}

// submit читает файлы расписания и отправляет подачу.
func (s *Scheduler) submit(ctx context.Context, sched *domain.Schedule) (string, error) {
	bom, err := s.readFile(sched.BOMPath)
	if err != nil {
		return "", fmt.Errorf("read bom: %w", err)
	}

	var intake []byte
	if sched.IntakePath != "" {
		intake, err = s.readFile(sched.IntakePath)
		if err != nil {
			return "", fmt.Errorf("read intake: %w", err)
		}
	}

	return s.submitter.Submit(ctx, Submission{
		Name:   sched.Name,
		BOM:    string(bom),
		Intake: string(intake),
	})
}

// Run тикает с интервалом до отмены ctx. Тик выполняется только лидером.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"schedules", len(s.schedules),
		"interval", s.interval,
	)
	defer s.release()

	tk := time.NewTicker(s.interval)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case t := <-tk.C:
			if !s.isLeader(ctx) {
				continue
			}
			s.Tick(ctx, t)
		}
	}
}

func (s *Scheduler) isLeader(ctx context.Context) bool {
	if s.leader == nil {
		return true
	}
	ok, err := s.leader.TryAcquire(ctx)
	if err != nil {
		s.logger.Warn("leader election failed", "error", err)
		return false
	}
	return ok
}

func (s *Scheduler) release() {
	if s.leader == nil {
		return
	}
	if err := s.leader.Release(context.Background()); err != nil {
		s.logger.Warn("leader release failed", "error", err)
	}
}

// Schedules возвращает копию текущего состояния расписаний.
func (s *Scheduler) Schedules() []domain.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Schedule, len(s.schedules))
	for i, sched := range s.schedules {
		out[i] = *sched
	}
	return out
}
