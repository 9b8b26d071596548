package domain

import (
	"time"

	"github.com/google/uuid"
)

// StepRun — долговечная запись выполнения одного шага проекта.
//
// На каждый PipelineNode проекта заводится ровно один StepRun
// (ключ: projectID + position). StepRun никогда не удаляется,
// только переходит между статусами — это журнал, по которому
// orchestrator восстанавливает позицию после рестарта.
type StepRun struct {
	// ProjectID — проект, которому принадлежит запись.
	ProjectID uuid.UUID `json:"project_id"`

	// Position — позиция узла в pipeline (копия PipelineNode.Position).
	Position int `json:"position"`

	// Name — имя шага (копия StepDefinition.Name, для удобства).
	Name string `json:"name"`

	// Executor — имя исполнителя (копия StepDefinition.Executor).
	Executor string `json:"executor"`

	// Status — текущий статус шага.
	Status StepStatus `json:"status"`

	// Result — результат выполнения. Заполняется при COMPLETED/REVIEW.
	Result map[string]any `json:"result,omitempty"`

	// ResultRef — ссылка на результат в object storage, если payload
	// слишком большой для хранения inline.
	ResultRef string `json:"result_ref,omitempty"`

	// Error — текст ошибки при FAILED.
	Error string `json:"error,omitempty"`

	// Feedback — последний фидбек оператора по этому шагу.
	Feedback string `json:"feedback,omitempty"`

	// RetryCount — накопительный счётчик попыток. Никогда не сбрасывается.
	RetryCount int `json:"retry_count"`

	// StartedAt — время начала последней попытки.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FirstAttemptAt — время начала самой первой попытки.
	FirstAttemptAt *time.Time `json:"first_attempt_at,omitempty"`

	// FinishedAt — время завершения последней попытки.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания записи (инстанцирование проекта).
	CreatedAt time.Time `json:"created_at"`
}

// Duration возвращает продолжительность последней попытки.
func (r *StepRun) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// MarkRunning переводит шаг в RUNNING.
// Выставляет StartedAt, FirstAttemptAt (если ещё не было попыток)
// и очищает предыдущую ошибку.
func (r *StepRun) MarkRunning() {
	now := time.Now()
	r.Status = StepStatusRunning
	r.StartedAt = &now
	if r.FirstAttemptAt == nil {
		r.FirstAttemptAt = &now
	}
	r.FinishedAt = nil
	r.Error = ""
}

// MarkCompleted переводит шаг в COMPLETED с результатом.
func (r *StepRun) MarkCompleted(result map[string]any) {
	now := time.Now()
	r.Status = StepStatusCompleted
	r.FinishedAt = &now
	r.Result = result
	r.Error = ""
}

// MarkReview переводит шаг в REVIEW: результат есть, но узел —
// чекпоинт и ждёт одобрения человека.
func (r *StepRun) MarkReview(result map[string]any) {
	now := time.Now()
	r.Status = StepStatusReview
	r.FinishedAt = &now
	r.Result = result
	r.Error = ""
}

// MarkFailed переводит шаг в FAILED и инкрементирует счётчик попыток.
func (r *StepRun) MarkFailed(errMsg string) {
	now := time.Now()
	r.Status = StepStatusFailed
	r.FinishedAt = &now
	r.Error = errMsg
	r.RetryCount++
}

// MarkSkipped переводит шаг в SKIPPED. Результата нет: downstream шаги,
// зависящие от его выходов, не найдут эти ключи.
func (r *StepRun) MarkSkipped() {
	now := time.Now()
	r.Status = StepStatusSkipped
	r.FinishedAt = &now
}

// MarkApproved переводит шаг из REVIEW в COMPLETED (операция approve).
func (r *StepRun) MarkApproved() {
	r.Status = StepStatusCompleted
}

// ResetForRetry возвращает шаг в PENDING для повторного выполнения.
// RetryCount сохраняется: это накопительный счётчик за всю жизнь записи.
func (r *StepRun) ResetForRetry() {
	r.Status = StepStatusPending
	r.StartedAt = nil
	r.FinishedAt = nil
	r.Error = ""
}
