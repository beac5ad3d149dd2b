package intake

import "errors"

// Ошибки разбора входных документов.
var (
	// ErrInvalidBOM — CSV не читается или не содержит заголовка.
	ErrInvalidBOM = errors.New("invalid BOM")

	// ErrInvalidIntake — intake YAML не разбирается.
	ErrInvalidIntake = errors.New("invalid intake document")
)
