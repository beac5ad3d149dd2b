// Package cli реализует инструмент командной строки bomflow.
//
// Команды делятся на три группы:
//   - run — локальный прогон конвейера с живым выводом журнала;
//   - submit, project — клиент HTTP API (list, show, trace, report);
//   - knowledge — администрирование базы знаний напрямую в SQLite.
//
// Данные выводятся в stdout (таблица или JSON с флагом --json),
// сообщения (Success/Error) — в stderr. Это позволяет использовать pipe:
// bomflow project list --json | jq .
//
// Каждая группа создаётся фабричной функцией, принимающей clientFn/outputFn —
// замыкания для ленивого создания Client и Output после разбора PersistentFlags.
package cli
