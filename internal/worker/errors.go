package worker

import "errors"

// Ошибки воркера.
var (
	// ErrBadSubmission — payload подачи не разбирается.
	ErrBadSubmission = errors.New("malformed submission")

	// ErrMissingDependency — в Config не задана обязательная зависимость.
	ErrMissingDependency = errors.New("missing worker dependency")
)
