package repo

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound — проекта с таким ID нет.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — проект с таким ID уже создан.
	ErrAlreadyExists = errors.New("already exists")

	// ErrStaleWrite — запись потеряла бы шаги журнала, сохранённые другим прогоном.
	ErrStaleWrite = errors.New("stale project write")
)

// pgUniqueViolation — SQLSTATE нарушения уникальности.
const pgUniqueViolation = "23505"

// translate приводит ошибки pgx к ошибкам пакета, остальные оборачивает с op.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w", op, err)
}
