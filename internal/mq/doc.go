// Package mq связывает процессы bomflow через RabbitMQ.
//
// Подачи BOM публикуются в bomflow.projects и обрабатываются bomflow-worker.
// Каждая запись журнала проекта дублируется в bomflow.trace с ключом
// trace.<stage>. Сообщения, которые не удалось обработать, уходят в bomflow.dlq.
//
// Типы сообщений:
//   - project.submitted — новая подача (SubmissionPayload)
//   - trace.step        — запись журнала (TraceStepPayload)
package mq
