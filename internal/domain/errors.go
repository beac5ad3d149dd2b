package domain

import "errors"

// Ошибки доменной модели.
var (
	// ErrInvalidTransition — недопустимый переход статуса позиции.
	ErrInvalidTransition = errors.New("invalid line item transition")

	// ErrReportInvariant — отчёт нарушает инварианты сумм или счётчиков.
	ErrReportInvariant = errors.New("final decision report invariant violated")

	// ErrMissingVerdict — нет вердикта для поданного MPN.
	ErrMissingVerdict = errors.New("missing verdict for submitted MPN")

	// ErrUnexpectedVerdict — вердикт для MPN, которого нет в батче, или дубль.
	ErrUnexpectedVerdict = errors.New("verdict for MPN outside submitted batch")
)
