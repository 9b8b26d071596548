package domain

import (
	"time"

	"github.com/google/uuid"
)

// Уровни записей журнала.
const (
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// LogEntry — запись журнала проекта.
//
// Журнал append-only: записи неизменяемы после создания и никогда
// не удаляются. Это аудиторский след всех переходов жизненного цикла.
type LogEntry struct {
	// ID — уникальный идентификатор записи.
	ID uuid.UUID `json:"id"`

	// ProjectID — проект, к которому относится запись.
	ProjectID uuid.UUID `json:"project_id"`

	// Position — позиция шага (0 для событий уровня проекта).
	Position int `json:"position"`

	// Level — уровень: info, warn, error.
	Level string `json:"level"`

	// Source — источник записи (имя шага или "orchestrator").
	Source string `json:"source"`

	// Message — текст сообщения.
	Message string `json:"message"`

	// CreatedAt — время записи.
	CreatedAt time.Time `json:"created_at"`
}

// NewLogEntry создаёт запись журнала.
func NewLogEntry(projectID uuid.UUID, position int, level, source, message string) *LogEntry {
	return &LogEntry{
		ID:        uuid.New(),
		ProjectID: projectID,
		Position:  position,
		Level:     level,
		Source:    source,
		Message:   message,
		CreatedAt: time.Now(),
	}
}
