package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/bomflow/internal/domain"
)

// ProjectSummary — строка списка проектов.
type ProjectSummary struct {
	ID          uuid.UUID            `json:"id"`
	Name        string               `json:"name"`
	Status      domain.ProjectStatus `json:"status"`
	FailedStage domain.Stage         `json:"failed_stage,omitempty"`
	Error       string               `json:"error,omitempty"`
	LineItems   int                  `json:"line_items"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
}

// ListFilter — параметры List.
type ListFilter struct {
	Status domain.ProjectStatus
	Limit  int
}

const defaultListLimit = 50

func (f ListFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

// ProjectRepo — хранилище проектов в PostgreSQL.
//
// Полное состояние проекта хранится в JSONB; колонки статуса и ошибки
// дублируются для списков и фильтров. Колонки lease_* — аренда проекта
// процессом, который его ведёт.
type ProjectRepo struct {
	pool *pgxpool.Pool
}

// NewProjectRepo создаёт новый ProjectRepo.
func NewProjectRepo(pool *pgxpool.Pool) *ProjectRepo {
	return &ProjectRepo{pool: pool}
}

// Create сохраняет новый проект. ErrAlreadyExists, если ID занят.
func (r *ProjectRepo) Create(ctx context.Context, p *domain.Project) error {
	state, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}

	query := `
		INSERT INTO projects (id, name, status, line_items, trace_len, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		p.ID,
		p.Name,
		string(p.Status),
		len(p.LineItems),
		len(p.Trace),
		state,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return translate("insert project", err)
	}
	return nil
}

// Get возвращает проект по ID.
func (r *ProjectRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	var state []byte
	err := r.pool.QueryRow(ctx, `SELECT state FROM projects WHERE id = $1`, id).Scan(&state)
	if err != nil {
		return nil, translate("get project", err)
	}

	var p domain.Project
	if err := json.Unmarshal(state, &p); err != nil {
		return nil, fmt.Errorf("decode project %s: %w", id, err)
	}
	return &p, nil
}

// Update записывает полное состояние проекта.
// ErrStaleWrite, если журнал короче сохранённого.
func (r *ProjectRepo) Update(ctx context.Context, p *domain.Project) error {
	state, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}

	query := `
		INSERT INTO projects (id, name, status, failed_stage, error, line_items, trace_len, state, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			failed_stage = EXCLUDED.failed_stage,
			error = EXCLUDED.error,
			line_items = EXCLUDED.line_items,
			trace_len = EXCLUDED.trace_len,
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at
		WHERE projects.trace_len <= EXCLUDED.trace_len
	`
	tag, err := r.pool.Exec(ctx, query,
		p.ID,
		p.Name,
		string(p.Status),
		string(p.FailedStage),
		p.Error,
		len(p.LineItems),
		len(p.Trace),
		state,
		p.CreatedAt,
		p.UpdatedAt,
		p.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: project %s, write has %d trace steps", ErrStaleWrite, p.ID, len(p.Trace))
	}
	return nil
}

// Claim берёт или продлевает аренду проекта.
// Чужая аренда, срок которой не истёк, не перехватывается.
func (r *ProjectRepo) Claim(ctx context.Context, id uuid.UUID, owner string, ttl time.Duration) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE projects
		SET lease_owner = $2, lease_until = now() + make_interval(secs => $3)
		WHERE id = $1
		  AND (lease_owner = '' OR lease_owner = $2 OR lease_until IS NULL OR lease_until < now())
	`, id, owner, ttl.Seconds())
	if err != nil {
		return false, fmt.Errorf("claim project: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("claim project: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

// Release снимает аренду владельца.
func (r *ProjectRepo) Release(ctx context.Context, id uuid.UUID, owner string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE projects SET lease_owner = '', lease_until = NULL
		WHERE id = $1 AND lease_owner = $2
	`, id, owner)
	if err != nil {
		return fmt.Errorf("release project: %w", err)
	}
	return nil
}

// List возвращает последние проекты, новые первыми.
func (r *ProjectRepo) List(ctx context.Context, f ListFilter) ([]ProjectSummary, error) {
	query := `
		SELECT id, name, status, failed_stage, error, line_items, created_at, updated_at, completed_at
		FROM projects
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, string(f.Status), f.limit())
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	out := []ProjectSummary{}
	for rows.Next() {
		var s ProjectSummary
		var status, failedStage string
		if err := rows.Scan(
			&s.ID,
			&s.Name,
			&status,
			&failedStage,
			&s.Error,
			&s.LineItems,
			&s.CreatedAt,
			&s.UpdatedAt,
			&s.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		s.Status = domain.ProjectStatus(status)
		s.FailedStage = domain.Stage(failedStage)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Unfinished возвращает ID проектов, не дошедших до complete или failed,
// без действующей аренды. Используется для возобновления после перезапуска.
func (r *ProjectRepo) Unfinished(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM projects
		WHERE status NOT IN ($1, $2)
		  AND (lease_until IS NULL OR lease_until < now())
		ORDER BY created_at
	`, string(domain.ProjectStatusComplete), string(domain.ProjectStatusFailed))
	if err != nil {
		return nil, fmt.Errorf("list unfinished projects: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan project id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func summarize(p *domain.Project) ProjectSummary {
	return ProjectSummary{
		ID:          p.ID,
		Name:        p.Name,
		Status:      p.Status,
		FailedStage: p.FailedStage,
		Error:       p.Error,
		LineItems:   len(p.LineItems),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		CompletedAt: p.CompletedAt,
	}
}
