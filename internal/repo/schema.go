package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema — DDL хранилища. Все операторы идемпотентны.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id           UUID PRIMARY KEY,
		name         TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL,
		failed_stage TEXT NOT NULL DEFAULT '',
		error        TEXT NOT NULL DEFAULT '',
		line_items   INT  NOT NULL DEFAULT 0,
		state        JSONB NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ
	)`,
	`ALTER TABLE projects ADD COLUMN IF NOT EXISTS trace_len INT NOT NULL DEFAULT 0`,
	`ALTER TABLE projects ADD COLUMN IF NOT EXISTS lease_owner TEXT NOT NULL DEFAULT ''`,
	`ALTER TABLE projects ADD COLUMN IF NOT EXISTS lease_until TIMESTAMPTZ`,
	`CREATE INDEX IF NOT EXISTS idx_projects_status ON projects (status)`,
	`CREATE INDEX IF NOT EXISTS idx_projects_created_at ON projects (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS project_offers (
		project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		mpn        TEXT NOT NULL,
		offers     JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (project_id, mpn)
	)`,
}

// EnsureSchema создаёт таблицы, если их нет.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
