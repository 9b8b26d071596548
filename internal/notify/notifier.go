package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/shaiso/Montage/internal/mq"
)

// Notifier превращает события жизненного цикла в webhook-уведомления.
//
// Payload совместим с Discord/Slack-style webhook'ами: POST JSON
// с полем "content". Если URL не задан, уведомления уходят только в лог.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// Config — конфигурация Notifier.
type Config struct {
	// WebhookURL — endpoint для POST уведомлений (пусто = только лог).
	WebhookURL string

	// Timeout — таймаут HTTP запроса (default: 10s).
	Timeout time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт Notifier.
func New(cfg Config) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Notifier{
		webhookURL: cfg.WebhookURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// NewFromEnv создаёт Notifier из переменных окружения.
// WEBHOOK_URL — endpoint уведомлений.
func NewFromEnv(logger *slog.Logger) *Notifier {
	return New(Config{
		WebhookURL: os.Getenv("WEBHOOK_URL"),
		Logger:     logger,
	})
}

// HandleEvent — mq.Handler для очереди событий.
// Ack/nack выполняет consumer по возвращённой ошибке.
func (n *Notifier) HandleEvent(ctx context.Context, d *mq.Delivery) error {
	message := FormatEvent(&d.Event)
	if message == "" {
		// Неизвестный тип события — ack без уведомления.
		n.logger.Debug("skipping event without notification format", "type", d.Event.Type)
		return nil
	}

	n.logger.Info("notification",
		"type", d.Event.Type,
		"project_id", d.Event.ProjectID,
		"message", message,
	)

	if n.webhookURL == "" {
		return nil
	}

	return n.send(ctx, message)
}

// send отправляет одно уведомление на webhook.
func (n *Notifier) send(ctx context.Context, message string) error {
	payload, err := json.Marshal(map[string]string{"content": message})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}

	return nil
}

// FormatEvent форматирует событие в человекочитаемое уведомление.
// Возвращает пустую строку для типов, о которых не уведомляем.
func FormatEvent(event *mq.Event) string {
	name := event.ProjectName
	if name == "" {
		name = event.ProjectID.String()
	}

	switch event.Type {
	case mq.EventProjectStarted:
		return fmt.Sprintf("🎬 Project %q started", name)
	case mq.EventProjectCompleted:
		return fmt.Sprintf("✅ Project %q completed", name)
	case mq.EventProjectFailed:
		return fmt.Sprintf("❌ Project %q failed", name)
	case mq.EventProjectPaused:
		return fmt.Sprintf("⏸️ Project %q paused", name)
	case mq.EventStepReview:
		return fmt.Sprintf("👀 Project %q: step %d (%s) is waiting for review", name, event.Position, event.StepName)
	case mq.EventStepFailed:
		msg := fmt.Sprintf("⚠️ Project %q: step %d (%s) failed", name, event.Position, event.StepName)
		if event.Error != "" {
			msg += ": " + event.Error
		}
		return msg
	case mq.EventStepCompleted, mq.EventStepStarted, mq.EventStepSkipped:
		// Рутинные переходы шагов не шумят в уведомлениях.
		return ""
	default:
		return ""
	}
}
