package domain

import (
	"time"

	"github.com/google/uuid"
)

// Project — экземпляр производства контента по pipeline.
//
// Project создаётся из pipeline: на каждый PipelineNode заводится
// StepRun с тем же position. Статус проекта — агрегат статусов его
// шагов плюс флаги orchestrator'а (paused).
type Project struct {
	// ID — уникальный идентификатор проекта.
	ID uuid.UUID `json:"id"`

	// Name — имя проекта (например, название видео).
	Name string `json:"name"`

	// PipelineSlug — pipeline, по которому выполняется проект.
	PipelineSlug string `json:"pipeline_slug"`

	// Status — текущий агрегатный статус.
	Status ProjectStatus `json:"status"`

	// Paused — выставлен, когда оператор приостановил выполнение.
	// Текущий шаг довыполняется, следующий не запускается.
	Paused bool `json:"paused"`

	// Priority — приоритет в очереди (выше — раньше).
	Priority int `json:"priority"`

	// FeedbackHistory — история фидбека оператора по шагам.
	FeedbackHistory []FeedbackEntry `json:"feedback_history,omitempty"`

	// StartedAt — время первого запуска.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt — время завершения всех шагов.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// CreatedAt — время создания проекта.
	CreatedAt time.Time `json:"created_at"`
}

// FeedbackEntry — одна запись фидбека оператора.
type FeedbackEntry struct {
	// Position — позиция шага, к которому относится фидбек.
	Position int `json:"position"`

	// Text — текст фидбека.
	Text string `json:"text"`

	// CreatedAt — время записи.
	CreatedAt time.Time `json:"created_at"`
}

// Duration возвращает продолжительность выполнения проекта.
// Возвращает 0, если проект не завершён.
func (p *Project) Duration() time.Duration {
	if p.StartedAt == nil || p.CompletedAt == nil {
		return 0
	}
	return p.CompletedAt.Sub(*p.StartedAt)
}

// MarkRunning переводит проект в RUNNING. StartedAt выставляется
// только при первом запуске.
func (p *Project) MarkRunning() {
	p.Status = ProjectStatusRunning
	p.Paused = false
	if p.StartedAt == nil {
		now := time.Now()
		p.StartedAt = &now
	}
}

// MarkCompleted переводит проект в COMPLETED.
func (p *Project) MarkCompleted() {
	now := time.Now()
	p.Status = ProjectStatusCompleted
	p.CompletedAt = &now
}

// MarkFailed переводит проект в FAILED.
func (p *Project) MarkFailed() {
	p.Status = ProjectStatusFailed
}

// MarkReview переводит проект в REVIEW (чекпоинт ждёт одобрения).
func (p *Project) MarkReview() {
	p.Status = ProjectStatusReview
}

// MarkPaused выставляет флаг паузы.
func (p *Project) MarkPaused() {
	p.Status = ProjectStatusPaused
	p.Paused = true
}

// MarkQueued ставит проект в очередь.
func (p *Project) MarkQueued() {
	p.Status = ProjectStatusQueued
}

// AddFeedback добавляет запись фидбека в историю.
func (p *Project) AddFeedback(position int, text string) {
	p.FeedbackHistory = append(p.FeedbackHistory, FeedbackEntry{
		Position:  position,
		Text:      text,
		CreatedAt: time.Now(),
	})
}
