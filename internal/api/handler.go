package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/bomflow/internal/domain"
	"github.com/shaiso/bomflow/internal/flow"
	"github.com/shaiso/bomflow/internal/knowledge"
	"github.com/shaiso/bomflow/internal/mq"
	"github.com/shaiso/bomflow/internal/repo"
	"github.com/shaiso/bomflow/internal/telemetry"
)

// Runner — синхронный прогон конвейера.
type Runner interface {
	Run(ctx context.Context, src flow.Source) (*domain.Project, error)
}

// ProjectReader — чтение проектов.
type ProjectReader interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Project, error)
	List(ctx context.Context, f repo.ListFilter) ([]repo.ProjectSummary, error)
}

// SubmissionPublisher — постановка подачи в очередь.
type SubmissionPublisher interface {
	PublishSubmission(ctx context.Context, payload mq.SubmissionPayload) (uuid.UUID, error)
}

// KnowledgeAdmin — операции администрирования базы знаний.
type KnowledgeAdmin interface {
	BanPart(ctx context.Context, mpn, reason string) error
	UnbanPart(ctx context.Context, mpn string) error
	ListBanned(ctx context.Context) ([]knowledge.BannedPart, error)
	AddAlternate(ctx context.Context, mpn, alternate string) error
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	UpsertSupplier(ctx context.Context, sup domain.Supplier) error
	RecordProject(ctx context.Context, p *domain.Project) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	engine    Runner
	projects  ProjectReader
	knowledge KnowledgeAdmin
	publisher SubmissionPublisher
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Engine    Runner
	Projects  ProjectReader
	Knowledge KnowledgeAdmin

	// Publisher — необязателен; без него асинхронные подачи отклоняются.
	Publisher SubmissionPublisher

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine:    cfg.Engine,
		projects:  cfg.Projects,
		knowledge: cfg.Knowledge,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		logger:    logger,
	}
}
