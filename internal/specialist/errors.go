package specialist

import "errors"

var (
	// ErrKnowledge — ошибка чтения Knowledge Store.
	ErrKnowledge = errors.New("knowledge lookup failed")

	// ErrOffers — ошибка чтения Offer Store.
	ErrOffers = errors.New("offer lookup failed")

	// ErrNarrator — ошибка текстового бэкенда.
	ErrNarrator = errors.New("narration failed")

	// ErrRoleNotFound — роль не зарегистрирована.
	ErrRoleNotFound = errors.New("evaluator not registered")
)
