// Package app собирает зависимости процесса из конфигурации.
//
// Набор зависимостей движка строится один раз при старте и дальше не меняется.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/bomflow/internal/config"
	"github.com/shaiso/bomflow/internal/decision"
	"github.com/shaiso/bomflow/internal/domain"
	"github.com/shaiso/bomflow/internal/flow"
	"github.com/shaiso/bomflow/internal/intel"
	"github.com/shaiso/bomflow/internal/knowledge"
	"github.com/shaiso/bomflow/internal/mq"
	"github.com/shaiso/bomflow/internal/narrate"
	"github.com/shaiso/bomflow/internal/offers"
	"github.com/shaiso/bomflow/internal/repo"
	"github.com/shaiso/bomflow/internal/specialist"
	"github.com/shaiso/bomflow/internal/telemetry"
)

// ProjectStore — хранилище проектов с операциями чтения для API и воркера.
type ProjectStore interface {
	flow.ProjectStore
	flow.ProjectLeaser
	List(ctx context.Context, f repo.ListFilter) ([]repo.ProjectSummary, error)
	Unfinished(ctx context.Context) ([]uuid.UUID, error)
}

// Options — что поднимать в этом процессе.
type Options struct {
	Config config.Config

	// InMemory — проекты и предложения в памяти, даже если задан database.url.
	InMemory bool

	// Broker — подключиться к RabbitMQ (если задан rabbitmq.url).
	Broker bool

	// OnTrace — дополнительный потребитель журнала (консоль CLI).
	OnTrace flow.TraceFunc

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// App — собранный процесс.
type App struct {
	Engine    *flow.Engine
	Projects  ProjectStore
	Knowledge *knowledge.Store

	// Pool — nil, если проекты хранятся в памяти.
	Pool *pgxpool.Pool

	// Conn и Publisher — nil без брокера.
	Conn      *mq.Connection
	Publisher *mq.Publisher

	logger  *slog.Logger
	closers []func() error
}

// New собирает App. При ошибке уже открытые ресурсы закрываются.
func New(ctx context.Context, opts Options) (_ *App, err error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// Knowledge Store
	a.Knowledge, err = knowledge.Open(cfg.Knowledge.Path)
	if err != nil {
		return nil, fmt.Errorf("open knowledge store: %w", err)
	}
	a.closers = append(a.closers, a.Knowledge.Close)

	if cfg.Knowledge.SeedSuppliers {
		n, err := a.Knowledge.SeedDefaultSuppliers(ctx)
		if err != nil {
			return nil, fmt.Errorf("seed suppliers: %w", err)
		}
		if n > 0 {
			logger.Info("seeded default suppliers", "count", n)
		}
	}

	// Project Store + Offer Store
	var offerStore flow.OfferStore
	if cfg.Database.URL != "" && !opts.InMemory {
		a.Pool, err = repo.NewPool(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { a.Pool.Close(); return nil })

		if err := repo.EnsureSchema(ctx, a.Pool); err != nil {
			return nil, err
		}
		a.Projects = repo.NewProjectRepo(a.Pool)
		offerStore = repo.NewOfferRepo(a.Pool)
		logger.Info("using postgres project store")
	} else {
		a.Projects = repo.NewMemoryProjectStore()
		offerStore = offers.NewMemoryStore()
		logger.Debug("using in-memory project store")
	}

	// Broker
	var brokerTrace flow.TraceFunc
	if opts.Broker && cfg.RabbitMQ.URL != "" {
		a.Conn, err = mq.NewConnection(cfg.RabbitMQ.URL, logger)
		if err != nil {
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		a.closers = append(a.closers, a.Conn.Close)

		if err := mq.SetupTopology(ctx, a.Conn); err != nil {
			return nil, fmt.Errorf("setup topology: %w", err)
		}
		a.Publisher = mq.NewPublisher(a.Conn, logger)
		brokerTrace = mq.TraceSink(a.Publisher, logger)
	}

	// Narrator
	narrator, err := narrate.New(cfg.NarrateConfig())
	if err != nil {
		return nil, fmt.Errorf("narrator: %w", err)
	}
	if narrator != nil {
		logger.Info("narrator enabled", "provider", cfg.Narrator.Provider)
	}

	fc := flow.Config{
		Projects:    a.Projects,
		Offers:      offerStore,
		OfferSource: offers.NewGenerator(offers.DefaultDistributors()...),
		Synthesizer: decision.New(narrator),
		OnTrace:     flow.Tee(opts.OnTrace, brokerTrace),
		Metrics:     opts.Metrics,
		Logger:      logger,
		LeaseTTL:    cfg.LeaseTTL(),
	}

	// Market Intelligence
	if cfg.Intel.URL != "" {
		provider, err := intel.New(intel.Config{
			URL:     cfg.Intel.URL,
			Token:   cfg.Intel.Token,
			Timeout: cfg.IntelTimeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("intel provider: %w", err)
		}
		fc.Intel = provider
	}

	if err := specialist.DefaultRegistry(a.Knowledge, narrator).Apply(&fc); err != nil {
		return nil, err
	}

	a.Engine, err = flow.New(fc)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// RecordHistory учитывает завершённый проект в базе знаний.
func (a *App) RecordHistory(ctx context.Context, p *domain.Project) {
	if err := a.Knowledge.RecordProject(ctx, p); err != nil {
		a.logger.Warn("failed to record part usage", "project_id", p.ID, "error", err)
	}
}

// Close закрывает ресурсы в обратном порядке открытия.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
