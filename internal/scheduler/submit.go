package scheduler

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/shaiso/bomflow/internal/domain"
	"github.com/shaiso/bomflow/internal/flow"
	"github.com/shaiso/bomflow/internal/mq"
)

// Submission — BOM, подаваемый по расписанию.
type Submission struct {
	Name   string
	BOM    string
	Intake string
}

// Submitter подаёт BOM в конвейер. Возвращает идентификатор подачи.
type Submitter interface {
	Submit(ctx context.Context, s Submission) (string, error)
}

// SubmissionPublisher — публикация подачи в очередь (mq.Publisher).
type SubmissionPublisher interface {
	PublishSubmission(ctx context.Context, payload mq.SubmissionPayload) (uuid.UUID, error)
}

// QueueSubmitter ставит подачу в очередь projects.submitted.
type QueueSubmitter struct {
	Publisher SubmissionPublisher
}

// Submit публикует подачу.
func (q QueueSubmitter) Submit(ctx context.Context, s Submission) (string, error) {
	id, err := q.Publisher.PublishSubmission(ctx, mq.SubmissionPayload{
		Name:   s.Name,
		BOM:    s.BOM,
		Intake: s.Intake,
		Source: "scheduler",
	})
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Runner — прямой запуск конвейера.
type Runner interface {
	Run(ctx context.Context, src flow.Source) (*domain.Project, error)
}

// EngineSubmitter выполняет подачу синхронно в этом процессе.
// Используется без брокера.
type EngineSubmitter struct {
	Engine Runner
}

// Submit прогоняет подачу через движок. Идентификатор — ID проекта.
func (e EngineSubmitter) Submit(ctx context.Context, s Submission) (string, error) {
	src := flow.Source{Name: s.Name, BOM: strings.NewReader(s.BOM)}
	if s.Intake != "" {
		src.Intake = strings.NewReader(s.Intake)
	}
	p, err := e.Engine.Run(ctx, src)
	if err != nil {
		return "", err
	}
	return p.ID.String(), nil
}
