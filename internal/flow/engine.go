package flow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/bomflow/internal/domain"
	"github.com/shaiso/bomflow/internal/intake"
	"github.com/shaiso/bomflow/internal/telemetry"
)

// Config — зависимости движка.
//
// Собирается один раз при старте процесса и после New не меняется.
type Config struct {
	// Хранилища (обязательны).
	Projects ProjectStore
	Offers   OfferStore

	// OfferSource — источник предложений для enrich (обязателен).
	OfferSource OfferSource

	// Intel — рыночная аналитика (необязательна).
	Intel IntelProvider

	// Специалисты (обязательны, роли проверяются в New).
	Engineering Evaluator
	Sourcing    Evaluator
	Finance     Evaluator

	// Synthesizer — итоговое решение (обязателен).
	Synthesizer Synthesizer

	// OnTrace — потребитель журнала (необязателен).
	OnTrace TraceFunc

	// Metrics — Prometheus метрики (необязательны).
	Metrics *telemetry.Metrics

	// Logger
	Logger *slog.Logger

	// Owner — имя владельца аренды проектов. По умолчанию случайный UUID.
	Owner string

	// LeaseTTL — срок аренды без продления. По умолчанию DefaultLeaseTTL.
	LeaseTTL time.Duration
}

// DefaultLeaseTTL — срок аренды проекта по умолчанию.
// Движок продлевает аренду каждую треть срока.
const DefaultLeaseTTL = 2 * time.Minute

// Source — входные документы одного прогона.
type Source struct {
	// ID — ID проекта. Повторный Run с тем же ID продолжает существующий
	// проект вместо создания нового. uuid.Nil — сгенерировать.
	ID uuid.UUID

	// Name — имя проекта. Если пусто, берётся из intake-документа.
	Name string

	// BOM — CSV с заголовком (обязателен).
	BOM io.Reader

	// Intake — intake YAML. nil означает значения по умолчанию.
	Intake io.Reader
}

// Engine проводит проекты через этапы конвейера.
//
// Engine безопасен для параллельного использования: прогоны разных проектов
// независимы, второй прогон того же проекта отклоняется с ErrProjectBusy.
// Если хранилище реализует ProjectLeaser, то же верно для движков
// в разных процессах.
type Engine struct {
	projects    ProjectStore
	offers      OfferStore
	offerSource OfferSource
	intel       IntelProvider
	evaluators  [3]Evaluator
	synthesizer Synthesizer
	onTrace     TraceFunc
	metrics     *telemetry.Metrics
	logger      *slog.Logger

	leaser   ProjectLeaser
	owner    string
	leaseTTL time.Duration

	// Active projects — проекты в процессе выполнения (single-writer).
	// Значение останавливает продление аренды.
	active map[uuid.UUID]func()
	mu     sync.Mutex
}

// New создаёт Engine и проверяет зависимости.
func New(cfg Config) (*Engine, error) {
	required := []struct {
		name string
		ok   bool
	}{
		{"Projects", cfg.Projects != nil},
		{"Offers", cfg.Offers != nil},
		{"OfferSource", cfg.OfferSource != nil},
		{"Engineering", cfg.Engineering != nil},
		{"Sourcing", cfg.Sourcing != nil},
		{"Finance", cfg.Finance != nil},
		{"Synthesizer", cfg.Synthesizer != nil},
	}
	for _, r := range required {
		if !r.ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingDependency, r.name)
		}
	}

	evaluators := [3]Evaluator{cfg.Engineering, cfg.Sourcing, cfg.Finance}
	for i, role := range domain.Roles() {
		if got := evaluators[i].Role(); got != role {
			return nil, fmt.Errorf("%w: %s slot holds %q", ErrRoleMismatch, role, got)
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	owner := cfg.Owner
	if owner == "" {
		owner = uuid.NewString()
	}
	ttl := cfg.LeaseTTL
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	leaser, _ := cfg.Projects.(ProjectLeaser)

	return &Engine{
		projects:    cfg.Projects,
		offers:      cfg.Offers,
		offerSource: cfg.OfferSource,
		intel:       cfg.Intel,
		evaluators:  evaluators,
		synthesizer: cfg.Synthesizer,
		onTrace:     cfg.OnTrace,
		metrics:     cfg.Metrics,
		logger:      logger,
		leaser:      leaser,
		owner:       owner,
		leaseTTL:    ttl,
		active:      make(map[uuid.UUID]func()),
	}, nil
}

// Run выполняет конвейер для новой подачи.
//
// Возвращаемые значения:
//   - (nil, ErrInvalidInput) — входные документы не разбираются, проект не создан;
//   - (project, nil) — проект дошёл до complete или failed;
//   - (project, ErrPersist) — хранилище не приняло запись, project — последняя рабочая копия;
//   - (nil, ErrProjectBusy) — проект с src.ID сейчас ведёт другой прогон.
//
// Если проект src.ID уже создан (повторная доставка подачи), Run продолжает
// его с сохранённого этапа, а завершённый проект возвращает как есть.
func (e *Engine) Run(ctx context.Context, src Source) (*domain.Project, error) {
	items, err := intake.ParseBOM(src.BOM)
	if err != nil {
		e.logger.Warn("rejecting submission", "stage", domain.StageIntake, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	pctx, err := intake.ParseContext(src.Intake)
	if err != nil {
		e.logger.Warn("rejecting submission", "stage", domain.StageIntake, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	name := src.Name
	if name == "" {
		name = pctx.Name
	}

	project := domain.NewProject(name, pctx, items)
	if src.ID != uuid.Nil {
		project.ID = src.ID
	}

	if err := e.projects.Create(ctx, project); err != nil {
		if src.ID == uuid.Nil {
			return nil, fmt.Errorf("%w: create project: %v", ErrPersist, err)
		}
		return e.redeliver(ctx, src.ID, err)
	}

	if err := e.acquire(ctx, project.ID); err != nil {
		return project, err
	}
	defer e.release(ctx, project.ID)

	st := e.newRunState(project)
	st.logger.Info("project created", "line_items", len(items))

	return e.execute(ctx, st, domain.StageIntake)
}

// Resume продолжает незавершённый проект с этапа, на котором он остановился.
//
// Используется после падения процесса между этапами. Последний начатый этап
// выполняется заново: enrich идемпотентен, позиции не откатываются назад.
func (e *Engine) Resume(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	if err := e.acquire(ctx, id); err != nil {
		return nil, err
	}
	defer e.release(ctx, id)

	project, err := e.projects.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.resume(ctx, project)
}

// redeliver обрабатывает подачу, проект которой уже создан.
// createErr возвращается, если проекта всё же нет.
func (e *Engine) redeliver(ctx context.Context, id uuid.UUID, createErr error) (*domain.Project, error) {
	if err := e.acquire(ctx, id); err != nil {
		if errors.Is(err, ErrProjectBusy) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: create project: %v", ErrPersist, createErr)
	}
	defer e.release(ctx, id)

	project, err := e.projects.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: create project: %v", ErrPersist, createErr)
	}
	if project.Status.IsTerminal() || project.Failed() {
		e.logger.Info("submission already processed", "project_id", id, "status", project.Status)
		return project, nil
	}
	return e.resume(ctx, project)
}

// resume продолжает загруженный проект. Вызывается под acquire.
func (e *Engine) resume(ctx context.Context, project *domain.Project) (*domain.Project, error) {
	if project.Status.IsTerminal() || project.Failed() {
		return project, fmt.Errorf("%w: %s", ErrProjectTerminal, project.Status)
	}

	if !resumable(domain.Stage(project.Status)) {
		return project, fmt.Errorf("%w: unknown status %q", ErrProjectTerminal, project.Status)
	}

	// Оценки специалистов не сохраняются, поэтому final_decision
	// продолжается с повторной параллельной проверки.
	from := domain.Stage(project.Status)
	if from == domain.StageFinalDecision {
		from = domain.StageParallelReview
	}

	st := e.newRunState(project)
	st.logger.Info("resuming project", "status", project.Status, "from", from)

	return e.execute(ctx, st, from)
}

// acquire регистрирует проект как активный и берёт аренду в хранилище.
func (e *Engine) acquire(ctx context.Context, id uuid.UUID) error {
	e.mu.Lock()
	if _, exists := e.active[id]; exists {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrProjectBusy, id)
	}
	e.active[id] = func() {}
	e.mu.Unlock()

	if e.leaser == nil {
		return nil
	}

	ok, err := e.leaser.Claim(ctx, id, e.owner, e.leaseTTL)
	if err != nil || !ok {
		e.mu.Lock()
		delete(e.active, id)
		e.mu.Unlock()
		if err != nil {
			return fmt.Errorf("claim project %s: %w", id, err)
		}
		return fmt.Errorf("%w: %s is leased by another runner", ErrProjectBusy, id)
	}

	stop := e.renew(id)
	e.mu.Lock()
	e.active[id] = stop
	e.mu.Unlock()
	return nil
}

// renew продлевает аренду, пока не вызвана возвращённая функция.
func (e *Engine) renew(id uuid.UUID) func() {
	done := make(chan struct{})
	logger := telemetry.WithProjectID(e.logger, id.String())

	interval := max(e.leaseTTL/3, time.Millisecond)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			ok, err := e.leaser.Claim(ctx, id, e.owner, e.leaseTTL)
			cancel()
			switch {
			case err != nil:
				logger.Warn("lease renewal failed", "error", err)
			case !ok:
				logger.Error("lease lost to another runner")
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// release снимает аренду и удаляет проект из активных.
func (e *Engine) release(ctx context.Context, id uuid.UUID) {
	e.mu.Lock()
	stop := e.active[id]
	delete(e.active, id)
	e.mu.Unlock()

	if stop != nil {
		stop()
	}
	if e.leaser == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.leaser.Release(ctx, id, e.owner); err != nil {
		e.logger.Warn("lease release failed", "project_id", id, "error", err)
	}
}

// ActiveCount возвращает количество проектов в обработке.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// stage — один этап конвейера.
type stage struct {
	name domain.Stage
	run  func(ctx context.Context, st *runState) error
}

func (e *Engine) stages() []stage {
	return []stage{
		{domain.StageIntake, e.intake},
		{domain.StageEnrich, e.enrich},
		{domain.StageMarketIntel, e.marketIntel},
		{domain.StageParallelReview, e.parallelReview},
		{domain.StageFinalDecision, e.finalDecision},
	}
}

// execute выполняет этапы начиная с from.
//
// Этап, на входе которого проект уже в ошибке, пропускается.
// Конвейер всегда завершается ровно одним терминальным состоянием.
func (e *Engine) execute(ctx context.Context, st *runState, from domain.Stage) (*domain.Project, error) {
	started := false
	for _, s := range e.stages() {
		if s.name == from {
			started = true
		}
		if !started {
			continue
		}
		if st.project.Failed() {
			break
		}
		if err := e.runStage(ctx, st, s); err != nil {
			return st.project, err
		}
	}

	if st.project.Failed() {
		e.metrics.RunFinished(string(domain.ProjectStatusFailed), string(st.project.FailedStage))
		st.logger.Warn("project failed",
			"failed_stage", st.project.FailedStage,
			"error", st.project.Error,
		)
		return st.project, nil
	}

	if err := e.complete(ctx, st); err != nil {
		return st.project, err
	}
	e.metrics.RunFinished(string(domain.ProjectStatusComplete), "")
	st.logger.Info("project complete", "trace_steps", len(st.project.Trace))
	return st.project, nil
}

// runStage выполняет один этап с записью журнала на входе и выходе.
func (e *Engine) runStage(ctx context.Context, st *runState, s stage) error {
	start := time.Now()
	st.project.MarkStage(s.name)

	if err := e.trace(ctx, st, domain.TraceStep{
		Stage:   s.name,
		Message: "Starting " + stageTitle(s.name),
	}); err != nil {
		return e.persistFailure(st, s.name, err)
	}

	stageErr := s.run(ctx, st)
	e.metrics.ObserveStage(string(s.name), stageErr != nil, time.Since(start))

	if stageErr != nil {
		if errors.Is(stageErr, ErrPersist) {
			return e.persistFailure(st, s.name, stageErr)
		}
		return e.fail(ctx, st, s.name, stageErr)
	}

	if err := e.trace(ctx, st, domain.TraceStep{
		Stage:   s.name,
		Message: "Completed " + stageTitle(s.name),
	}); err != nil {
		return e.persistFailure(st, s.name, err)
	}
	return nil
}

// fail переводит проект в failed и фиксирует ошибку в журнале.
//
// Запись выполняется с контекстом без отмены: отменённый прогон
// всё равно оставляет правдивое состояние.
func (e *Engine) fail(ctx context.Context, st *runState, s domain.Stage, cause error) error {
	ctx = context.WithoutCancel(ctx)
	st.project.MarkFailed(s, cause.Error())
	st.logger.Error("stage failed", "stage", s, "error", cause)

	if err := e.trace(ctx, st, domain.TraceStep{
		Stage:   s,
		Message: "ERROR: " + cause.Error(),
	}); err != nil {
		return fmt.Errorf("record failure of %s: %w", s, err)
	}
	return nil
}

// persistFailure отмечает рабочую копию как failed, когда хранилище недоступно.
func (e *Engine) persistFailure(st *runState, s domain.Stage, err error) error {
	if !st.project.Failed() {
		st.project.MarkFailed(s, err.Error())
	}
	st.logger.Error("project store rejected write", "stage", s, "error", err)
	e.metrics.RunFinished(string(domain.ProjectStatusFailed), string(s))
	return err
}

// complete — терминальный этап.
func (e *Engine) complete(ctx context.Context, st *runState) error {
	st.project.MarkStage(domain.StageComplete)
	if err := e.trace(ctx, st, domain.TraceStep{
		Stage:   domain.StageComplete,
		Message: "Starting " + stageTitle(domain.StageComplete),
	}); err != nil {
		return e.persistFailure(st, domain.StageComplete, err)
	}

	st.project.MarkComplete()
	msg := "Project complete"
	if r := st.project.Report; r != nil {
		msg = fmt.Sprintf("Project complete: %d approved, %d rejected, total spend $%.2f",
			r.Summary.TotalApproved, r.Summary.TotalRejected, r.Summary.TotalSpend)
	}
	if err := e.trace(ctx, st, domain.TraceStep{
		Stage:   domain.StageComplete,
		Message: msg,
	}); err != nil {
		return e.persistFailure(st, domain.StageComplete, err)
	}
	return nil
}

// resumable проверяет, что с этапа можно продолжить прогон.
func resumable(s domain.Stage) bool {
	switch s {
	case domain.StageIntake, domain.StageEnrich, domain.StageMarketIntel,
		domain.StageParallelReview, domain.StageFinalDecision:
		return true
	default:
		return false
	}
}

func stageTitle(s domain.Stage) string {
	switch s {
	case domain.StageIntake:
		return "intake"
	case domain.StageEnrich:
		return "enrichment"
	case domain.StageMarketIntel:
		return "market intelligence gathering"
	case domain.StageParallelReview:
		return "parallel specialist review"
	case domain.StageFinalDecision:
		return "final decision"
	case domain.StageComplete:
		return "completion"
	default:
		return string(s)
	}
}
