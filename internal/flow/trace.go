package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/bomflow/internal/domain"
	"github.com/shaiso/bomflow/internal/telemetry"
)

// maxReasoningLen — предел длины reasoning в записях специалистов.
const maxReasoningLen = 500

// runState — рабочая копия проекта на время одного прогона.
//
// Создаётся в Run/Resume и отбрасывается по завершении.
type runState struct {
	project *domain.Project

	// intel — отчёт рыночной аналитики (пустой, если не собран).
	intel *domain.MarketIntelReport

	// assessments — оценки специалистов текущего прогона.
	assessments map[domain.Role]*domain.Assessment

	logger *slog.Logger

	// mu сериализует запись журнала во время параллельного этапа.
	mu sync.Mutex
}

func (e *Engine) newRunState(p *domain.Project) *runState {
	return &runState{
		project:     p,
		intel:       &domain.MarketIntelReport{},
		assessments: make(map[domain.Role]*domain.Assessment, 3),
		logger:      telemetry.WithProjectID(e.logger, p.ID.String()),
	}
}

// trace добавляет запись в журнал, сохраняет проект и уведомляет потребителя.
//
// Запись сохраняется сразу (write-through): падение процесса оставляет
// правдивый частичный журнал. Ошибка хранилища оборачивает ErrPersist.
func (e *Engine) trace(ctx context.Context, st *runState, step domain.TraceStep) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	step = st.project.AppendTrace(step)
	e.metrics.TraceStep(string(step.Stage))
	st.logger.Debug("trace step",
		"seq", step.Seq,
		"stage", step.Stage,
		"actor", step.Actor,
		"message", step.Message,
	)

	if err := e.projects.Update(ctx, st.project); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}

	e.notify(ctx, st, step)
	return nil
}

// notify вызывает потребителя журнала. Ошибки и паники не выходят наружу.
func (e *Engine) notify(ctx context.Context, st *runState, step domain.TraceStep) {
	if e.onTrace == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			st.logger.Error("trace consumer panicked", "seq", step.Seq, "panic", r)
		}
	}()
	if err := e.onTrace(ctx, st.project.ID, step); err != nil {
		st.logger.Warn("trace consumer failed", "seq", step.Seq, "error", err)
	}
}

// truncate обрезает строку до n символов (по рунам).
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// firstN возвращает первые n элементов.
func firstN(list []string, n int) []string {
	if len(list) <= n {
		return list
	}
	return list[:n]
}
