package knowledge

import "errors"

var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")

	// ErrInvalid — некорректные входные данные.
	ErrInvalid = errors.New("invalid knowledge record")
)
