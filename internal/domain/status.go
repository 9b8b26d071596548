package domain

// ProjectStatus — статус выполнения проекта.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → COMPLETED
//	        ↘ QUEUED → RUNNING
//	RUNNING ⇄ PAUSED
//	RUNNING → REVIEW → RUNNING (после approve)
//	RUNNING → FAILED → RUNNING (после retry/skip)
type ProjectStatus string

const (
	// ProjectStatusPending — проект создан, но ещё не запускался.
	ProjectStatusPending ProjectStatus = "PENDING"

	// ProjectStatusQueued — проект в очереди (лимит одновременных проектов достигнут).
	ProjectStatusQueued ProjectStatus = "QUEUED"

	// ProjectStatusRunning — пайплайн проекта выполняется.
	ProjectStatusRunning ProjectStatus = "RUNNING"

	// ProjectStatusPaused — выполнение приостановлено оператором.
	ProjectStatusPaused ProjectStatus = "PAUSED"

	// ProjectStatusReview — шаг-чекпоинт ждёт одобрения человека.
	ProjectStatusReview ProjectStatus = "REVIEW"

	// ProjectStatusFailed — шаг упал, нужен retry или skip от оператора.
	ProjectStatusFailed ProjectStatus = "FAILED"

	// ProjectStatusCompleted — все шаги завершены.
	ProjectStatusCompleted ProjectStatus = "COMPLETED"
)

// IsTerminal возвращает true, если проект завершён окончательно.
// FAILED не терминальный: оператор может сделать retry или skip.
func (s ProjectStatus) IsTerminal() bool {
	return s == ProjectStatusCompleted
}

// StepStatus — статус выполнения шага внутри проекта.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → COMPLETED
//	                  ↘ REVIEW → COMPLETED (approve)
//	                  ↘ FAILED → PENDING (retry)
//	PENDING|FAILED → SKIPPED (skip)
type StepStatus string

const (
	// StepStatusPending — шаг ждёт своей очереди.
	StepStatusPending StepStatus = "PENDING"

	// StepStatusRunning — шаг выполняется.
	StepStatusRunning StepStatus = "RUNNING"

	// StepStatusCompleted — шаг успешно завершён.
	StepStatusCompleted StepStatus = "COMPLETED"

	// StepStatusReview — шаг завершён, но ждёт одобрения (чекпоинт).
	StepStatusReview StepStatus = "REVIEW"

	// StepStatusFailed — шаг завершился с ошибкой.
	StepStatusFailed StepStatus = "FAILED"

	// StepStatusSkipped — шаг пропущен оператором.
	StepStatusSkipped StepStatus = "SKIPPED"
)

// IsTerminal возвращает true, если шаг больше не будет выполняться
// без явной операции оператора.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusSkipped:
		return true
	default:
		return false
	}
}

// Blocks возвращает true, если шаг блокирует продвижение пайплайна.
// Шаг в REVIEW или FAILED останавливает все последующие шаги,
// пока оператор не выполнит approve, retry или skip.
func (s StepStatus) Blocks() bool {
	return s == StepStatusReview || s == StepStatusFailed
}
