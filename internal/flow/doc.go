// Package flow содержит движок конвейера обработки BOM.
//
// Engine проводит проект через фиксированную последовательность этапов:
//
//	intake → enrich → market_intel → parallel_review → final_decision → complete
//
// и поглощающее состояние failed, достижимое с любого этапа.
//
// Включает:
//   - ports.go  — контракты хранилищ и внешних участников (специалисты, синтезатор, аналитика)
//   - engine.go — Engine, Config, Run/Resume, защита от параллельной записи проекта
//   - stages.go — реализация этапов
//   - trace.go  — журнал шагов с записью в хранилище после каждого шага
//
// Движок владеет состоянием позиций BOM и проекта; специалисты и синтезатор
// получают только копии и read-only представления хранилищ.
package flow
