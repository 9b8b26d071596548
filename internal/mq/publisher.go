package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// EventType — тип события жизненного цикла.
type EventType string

// Типы событий. Значение совпадает с routing key.
const (
	EventProjectStarted   EventType = "project.started"
	EventProjectCompleted EventType = "project.completed"
	EventProjectFailed    EventType = "project.failed"
	EventProjectPaused    EventType = "project.paused"

	EventStepStarted   EventType = "step.started"
	EventStepCompleted EventType = "step.completed"
	EventStepReview    EventType = "step.review"
	EventStepFailed    EventType = "step.failed"
	EventStepSkipped   EventType = "step.skipped"
)

// Publisher публикует события жизненного цикла в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Event — событие жизненного цикла проекта.
type Event struct {
	// ID — уникальный идентификатор события.
	ID string `json:"id"`

	// Type — тип события.
	Type EventType `json:"type"`

	// ProjectID — проект, к которому относится событие.
	ProjectID uuid.UUID `json:"project_id"`

	// ProjectName — имя проекта (для человекочитаемых уведомлений).
	ProjectName string `json:"project_name,omitempty"`

	// Position — позиция шага (0 для событий уровня проекта).
	Position int `json:"position,omitempty"`

	// StepName — имя шага (для step.* событий).
	StepName string `json:"step_name,omitempty"`

	// Error — текст ошибки (для *.failed событий).
	Error string `json:"error,omitempty"`

	// Timestamp — время события.
	Timestamp time.Time `json:"timestamp"`
}

// PublishEvent публикует событие в ExchangeProjects.
// Routing key — тип события, так notifier может фильтровать биндингами.
func (p *Publisher) PublishEvent(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(ExchangeProjects), // exchange
			string(event.Type),       // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // событие переживёт рестарт RabbitMQ
				MessageId:    event.ID,
				Timestamp:    event.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish %s: %w", event.Type, err)
		}

		p.logger.Debug("published event",
			"type", event.Type,
			"project_id", event.ProjectID,
			"event_id", event.ID,
		)

		return nil
	})
}

// PublishProjectEvent публикует событие уровня проекта.
func (p *Publisher) PublishProjectEvent(ctx context.Context, eventType EventType, projectID uuid.UUID, projectName string) error {
	return p.PublishEvent(ctx, &Event{
		Type:        eventType,
		ProjectID:   projectID,
		ProjectName: projectName,
	})
}

// PublishStepEvent публикует событие уровня шага.
func (p *Publisher) PublishStepEvent(ctx context.Context, eventType EventType, projectID uuid.UUID, projectName string, position int, stepName, errMsg string) error {
	return p.PublishEvent(ctx, &Event{
		Type:        eventType,
		ProjectID:   projectID,
		ProjectName: projectName,
		Position:    position,
		StepName:    stepName,
		Error:       errMsg,
	})
}
