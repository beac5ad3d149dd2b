package mq

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/bomflow/internal/domain"
	"github.com/shaiso/bomflow/internal/flow"
)

// StepPublisher публикует записи журнала.
type StepPublisher interface {
	PublishTraceStep(ctx context.Context, projectID uuid.UUID, step domain.TraceStep) error
}

// TraceSink превращает публикацию в потребителя журнала движка.
//
// Ошибки публикации логируются и не возвращаются: брокер недоступен —
// конвейер продолжает работу, журнал остаётся в Project Store.
func TraceSink(p StepPublisher, logger *slog.Logger) flow.TraceFunc {
	if p == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, projectID uuid.UUID, step domain.TraceStep) error {
		if err := p.PublishTraceStep(ctx, projectID, step); err != nil {
			logger.Warn("trace publish failed",
				"project_id", projectID,
				"seq", step.Seq,
				"error", err,
			)
		}
		return nil
	}
}
