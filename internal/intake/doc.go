// Package intake разбирает входные документы проекта.
//
// Включает:
//   - bom.go     — разбор BOM в формате CSV в позиции (domain.LineItem)
//   - context.go — разбор intake YAML в domain.ProjectContext с значениями по умолчанию
//
// Ошибки разбора оборачивают ErrInvalidBOM / ErrInvalidIntake.
// Семантически пустой BOM (только заголовок) ошибкой не является.
package intake
