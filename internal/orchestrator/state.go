package orchestrator

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// ProjectState — in-memory состояние одного активного проекта.
//
// Создаётся при запуске выполнения и удаляется, когда runner
// останавливается (завершение, блокировка, пауза, stop). Это кэш,
// не источник истины: все переходы статусов живут в БД.
type ProjectState struct {
	projectID   uuid.UUID
	projectName string

	// cancel отменяет контекст runner'а (stop, shutdown).
	cancel context.CancelFunc

	mu      sync.RWMutex
	paused  bool
	stopped bool
}

// NewProjectState создаёт состояние проекта.
func NewProjectState(projectID uuid.UUID, projectName string, cancel context.CancelFunc) *ProjectState {
	return &ProjectState{
		projectID:   projectID,
		projectName: projectName,
		cancel:      cancel,
	}
}

// ProjectID возвращает ID проекта.
func (s *ProjectState) ProjectID() uuid.UUID {
	return s.projectID
}

// SetPaused выставляет или снимает флаг паузы.
// Runner проверяет флаг на границе узлов: текущий шаг довыполняется.
func (s *ProjectState) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// IsPaused возвращает флаг паузы.
func (s *ProjectState) IsPaused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// MarkStopped выставляет флаг stop и отменяет контекст runner'а.
// Отмена текущего шага best-effort: внешние вызовы могут не прерваться.
func (s *ProjectState) MarkStopped() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
}

// IsStopped возвращает флаг stop.
func (s *ProjectState) IsStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}
