// Package specialist содержит три оценщика конвейера: engineering, sourcing и finance.
//
// Каждый оценщик реализует flow.Evaluator, применяет детерминированные правила
// к позициям батча и знаниям организации, а прозу для поля Analysis
// получает от необязательного narrate.Narrator.
//
// Оценщики не изменяют хранилища и безопасны для параллельного вызова.
package specialist
