package flow

import "errors"

// Ошибки движка.
var (
	// ErrInvalidInput — BOM или intake-документ не разбираются. Проект не создаётся.
	ErrInvalidInput = errors.New("invalid pipeline input")

	// ErrPersist — хранилище проектов не приняло запись.
	ErrPersist = errors.New("project persistence failed")

	// ErrProjectBusy — проект уже обрабатывается другим прогоном.
	ErrProjectBusy = errors.New("project is already being processed")

	// ErrProjectTerminal — проект завершён, продолжать нечего.
	ErrProjectTerminal = errors.New("project is in a terminal state")

	// ErrMissingDependency — в Config не задана обязательная зависимость.
	ErrMissingDependency = errors.New("missing engine dependency")

	// ErrRoleMismatch — специалист сообщил не ту роль.
	ErrRoleMismatch = errors.New("evaluator role mismatch")

	// ErrEvaluator — специалист завершился с ошибкой.
	ErrEvaluator = errors.New("specialist evaluation failed")

	// ErrSynthesizer — синтезатор не смог принять решение или нарушил контракт.
	ErrSynthesizer = errors.New("final decision failed")
)
