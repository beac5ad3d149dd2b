// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go           — Handler с DI (движок, хранилища, publisher, logger)
//   - routes.go            — регистрация маршрутов
//   - middleware.go        — request_id, recovery, журнал запросов
//   - response.go          — унифицированные JSON-ответы и обработка ошибок
//   - dto.go               — Data Transfer Objects (request/response)
//   - project_handler.go   — подача BOM, проекты, журнал, отчёт
//   - knowledge_handler.go — запрещённые детали, замены, поставщики
package api
