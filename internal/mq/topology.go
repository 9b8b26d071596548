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
	// ExchangeProjects — topic exchange событий жизненного цикла проектов.
	ExchangeProjects Exchange = "montage.projects"

	// ExchangeDLQ — dead letter exchange для необработанных событий.
	ExchangeDLQ Exchange = "montage.dlq"
)

// Queues — имена очередей.
const (
	// QueueProjectEvents — все события жизненного цикла (потребитель: notifier).
	QueueProjectEvents Queue = "projects.events"

	// QueueDLQEvents — события, которые notifier не смог обработать.
	QueueDLQEvents Queue = "dlq.events"
)

// Routing keys.
const (
	// RoutingKeyAllProjects и RoutingKeyAllSteps — биндинги QueueProjectEvents.
	RoutingKeyAllProjects RoutingKey = "project.*"
	RoutingKeyAllSteps    RoutingKey = "step.*"

	RoutingKeyDLQEvents RoutingKey = "events"
)

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

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeProjects, "topic"},
		{ExchangeDLQ, "direct"},
	}

	for _, ex := range exchanges {
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

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQEvents),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// projects.events — с DLQ (повторно упавшие события уходят туда)
		{QueueProjectEvents, dlqArgs},

		// dlq.events — сама DLQ очередь
		{QueueDLQEvents, nil},
	}

	for _, q := range queues {
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

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueProjectEvents, RoutingKeyAllProjects, ExchangeProjects},
		{QueueProjectEvents, RoutingKeyAllSteps, ExchangeProjects},
		{QueueDLQEvents, RoutingKeyDLQEvents, ExchangeDLQ},
	}

	for _, b := range bindings {
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
  Montage RabbitMQ Topology:

    montage.projects (topic)
    └── projects.events [routing: project.*, step.*]
            Consumer: Notifier
            DLQ: dlq.events

    montage.dlq (direct)
    └── dlq.events [routing: events]
            Manual processing
  `
}
