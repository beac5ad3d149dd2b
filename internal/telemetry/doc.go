// Package telemetry — логирование и метрики процессов bomflow.
//
// Логи пишутся через slog (JSON по умолчанию, LOG_FORMAT=text для разработки),
// уровень задаётся LOG_LEVEL. Атрибуты project_id и submission_id связывают
// записи одного прогона.
//
// Metrics собирает Prometheus-метрики конвейера: длительность этапов, исходы
// прогонов, записи журнала, оценки специалистов, вердикты и подачи. Все методы
// Metrics допускают nil-получатель, поэтому метрики необязательны.
package telemetry
