package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrProjectNotFound — проект не найден в БД.
	ErrProjectNotFound = errors.New("project not found")

	// ErrStepNotFound — шаг не найден по позиции.
	ErrStepNotFound = errors.New("step not found")

	// ErrPipelineNotFound — pipeline проекта не найден.
	ErrPipelineNotFound = errors.New("pipeline not found")

	// ErrAlreadyRunning — проект уже выполняется.
	ErrAlreadyRunning = errors.New("project already running")

	// ErrNotPaused — resume вызван для проекта не на паузе.
	ErrNotPaused = errors.New("project is not paused")

	// ErrInvalidState — операция невозможна в текущем статусе шага.
	ErrInvalidState = errors.New("invalid state for operation")

	// ErrMissingArgument — обязательный аргумент операции не передан.
	ErrMissingArgument = errors.New("missing required argument")

	// ErrOrchestratorStopped — оркестратор остановлен.
	ErrOrchestratorStopped = errors.New("orchestrator stopped")
)
