package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/bomflow/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeProjectSubmitted MessageType = "project.submitted"
	MessageTypeTraceStep        MessageType = "trace.step"
)

// Message — конверт сообщения.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// SubmissionPayload — подача BOM на асинхронную обработку.
type SubmissionPayload struct {
	SubmissionID uuid.UUID `json:"submission_id"`
	Name         string    `json:"name,omitempty"`

	// BOM — содержимое CSV.
	BOM string `json:"bom_csv"`

	// Intake — содержимое intake YAML (может быть пустым).
	Intake string `json:"intake_yaml,omitempty"`

	// Source — откуда пришла подача: api, cli, scheduler.
	Source string `json:"source,omitempty"`
}

// TraceStepPayload — запись журнала проекта.
type TraceStepPayload struct {
	ProjectID uuid.UUID        `json:"project_id"`
	Step      domain.TraceStep `json:"step"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

func newMessage(t MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Publish публикует сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),
			string(routingKey),
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Type:         string(msg.Type),
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishSubmission ставит подачу в очередь projects.submitted.
// Пустой SubmissionID заменяется новым. Возвращает ID подачи.
// Потребитель: bomflow-worker.
func (p *Publisher) PublishSubmission(ctx context.Context, payload SubmissionPayload) (uuid.UUID, error) {
	if payload.SubmissionID == uuid.Nil {
		payload.SubmissionID = uuid.New()
	}
	msg := newMessage(MessageTypeProjectSubmitted, payload)
	if err := p.Publish(ctx, ExchangeProjects, RoutingKeySubmitted, msg); err != nil {
		return uuid.Nil, err
	}
	return payload.SubmissionID, nil
}

// PublishTraceStep публикует запись журнала в bomflow.trace с ключом trace.<stage>.
func (p *Publisher) PublishTraceStep(ctx context.Context, projectID uuid.UUID, step domain.TraceStep) error {
	msg := newMessage(MessageTypeTraceStep, TraceStepPayload{ProjectID: projectID, Step: step})
	return p.Publish(ctx, ExchangeTrace, TraceRoutingKey(string(step.Stage)), msg)
}
