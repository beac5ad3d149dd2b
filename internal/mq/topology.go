package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeProjects Exchange = "bomflow.projects"
	ExchangeTrace    Exchange = "bomflow.trace"
	ExchangeDLQ      Exchange = "bomflow.dlq"
)

// Queues — имена очередей.
const (
	QueueProjectsSubmitted Queue = "projects.submitted"
	QueueTraceEvents       Queue = "trace.events"
	QueueDLQProjects       Queue = "dlq.projects"
)

// Routing keys.
const (
	RoutingKeySubmitted   RoutingKey = "submitted"
	RoutingKeyTraceAll    RoutingKey = "trace.#"
	RoutingKeyDLQProjects RoutingKey = "projects"
)

// TraceRoutingKey возвращает ключ trace-события: trace.<stage>.
func TraceRoutingKey(stage string) RoutingKey {
	if stage == "" {
		stage = "unknown"
	}
	return RoutingKey("trace." + stage)
}

// SetupTopology объявляет обменники, очереди и привязки. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

type exchangeDecl struct {
	name Exchange
	kind string
}

func exchanges() []exchangeDecl {
	return []exchangeDecl{
		{ExchangeProjects, amqp.ExchangeDirect},
		{ExchangeTrace, amqp.ExchangeTopic},
		{ExchangeDLQ, amqp.ExchangeDirect},
	}
}

func declareExchanges(ch *amqp.Channel) error {
	for _, ex := range exchanges() {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}
	return nil
}

type queueDecl struct {
	name Queue
	args amqp.Table
}

func queues() []queueDecl {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQProjects),
	}
	return []queueDecl{
		// projects.submitted — отклонённые подачи уходят в DLQ
		{QueueProjectsSubmitted, dlqArgs},

		// trace.events — журнал для внешних потребителей, ограничен по длине
		{QueueTraceEvents, amqp.Table{"x-max-length": int32(100000)}},

		{QueueDLQProjects, nil},
	}
}

func declareQueues(ch *amqp.Channel) error {
	for _, q := range queues() {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

type binding struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

func bindings() []binding {
	return []binding{
		{QueueProjectsSubmitted, RoutingKeySubmitted, ExchangeProjects},
		{QueueTraceEvents, RoutingKeyTraceAll, ExchangeTrace},
		{QueueDLQProjects, RoutingKeyDLQProjects, ExchangeDLQ},
	}
}

func bindQueues(ch *amqp.Channel) error {
	for _, b := range bindings() {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  bomflow RabbitMQ topology:

    bomflow.projects (direct)
    └── projects.submitted [routing: submitted]
            Consumer: bomflow-worker
            DLQ: dlq.projects

    bomflow.trace (topic)
    └── trace.events [routing: trace.#]
            Consumers: dashboards, audit sinks

    bomflow.dlq (direct)
    └── dlq.projects [routing: projects]
            Manual processing
  `
}
