// Package narrate предоставляет необязательные текстовые бэкенды (LLM)
// для аналитики специалистов и executive summary итогового отчёта.
//
// Правила и вердикты вычисляются детерминированно; Narrator только
// пересказывает уже принятые выводы человеческим языком.
package narrate
