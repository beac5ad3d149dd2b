package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shaiso/bomflow/internal/flow"
	"github.com/shaiso/bomflow/internal/mq"
	"github.com/shaiso/bomflow/internal/telemetry"
)

// handleSubmission обрабатывает событие из очереди projects.submitted.
//
// Исходы:
//   - payload не разбирается — DLQ без повтора;
//   - BOM или intake некорректны — ack, проект не создаётся;
//   - хранилище недоступно — повторная доставка;
//   - проект подачи ведёт другой прогон — ack;
//   - проект complete или failed — ack.
//
// ID проекта равен SubmissionID: повторная доставка продолжает тот же проект.
func (w *Worker) handleSubmission(ctx context.Context, delivery *mq.Delivery) error {
	if delivery.Message.Type != mq.MessageTypeProjectSubmitted {
		return mq.Permanent(fmt.Errorf("%w: unexpected type %q", ErrBadSubmission, delivery.Message.Type))
	}

	payload, err := mq.ParsePayload[mq.SubmissionPayload](&delivery.Message)
	if err != nil {
		return mq.Permanent(fmt.Errorf("%w: %w", ErrBadSubmission, err))
	}

	return w.Process(ctx, payload)
}

// Process выполняет конвейер для одной подачи.
func (w *Worker) Process(ctx context.Context, payload mq.SubmissionPayload) error {
	logger := telemetry.WithSubmissionID(w.logger, payload.SubmissionID.String())
	source := payload.Source
	if source == "" {
		source = "queue"
	}

	if strings.TrimSpace(payload.BOM) == "" {
		w.metrics.Submission(source, true)
		logger.Warn("submission has no BOM, dropping")
		return nil
	}

	src := flow.Source{
		ID:   payload.SubmissionID,
		Name: payload.Name,
		BOM:  strings.NewReader(payload.BOM),
	}
	if payload.Intake != "" {
		src.Intake = strings.NewReader(payload.Intake)
	}

	project, err := w.engine.Run(ctx, src)
	switch {
	case errors.Is(err, flow.ErrInvalidInput):
		w.metrics.Submission(source, true)
		logger.Warn("submission rejected", "error", err)
		return nil
	case errors.Is(err, flow.ErrProjectBusy):
		logger.Info("submission already in progress elsewhere", "error", err)
		return nil
	case err != nil:
		w.metrics.Submission(source, true)
		if project != nil {
			logger = telemetry.WithProjectID(logger, project.ID.String())
		}
		logger.Error("pipeline run failed", "error", err)
		return err
	}

	w.metrics.Submission(source, false)
	logger.Info("submission processed",
		"project_id", project.ID,
		"status", project.Status,
	)
	w.recordHistory(ctx, project)
	return nil
}
