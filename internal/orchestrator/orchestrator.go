package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Montage/internal/domain"
	"github.com/shaiso/Montage/internal/mq"
	"github.com/shaiso/Montage/internal/repo"
	"github.com/shaiso/Montage/internal/steps"
	"github.com/shaiso/Montage/internal/telemetry"
)

// Default configuration values.
const (
	defaultMaxConcurrent    = 1
	defaultStepTimeout      = 10 * time.Minute
	defaultDispatchInterval = 15 * time.Second
)

// ProjectStore — хранилище проектов.
type ProjectStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error)
	Update(ctx context.Context, p *domain.Project) error
	ListByStatus(ctx context.Context, status domain.ProjectStatus) ([]domain.Project, error)
	NextQueued(ctx context.Context) (*domain.Project, error)
	CountRunning(ctx context.Context) (int, error)
}

// StepRunStore — хранилище записей выполнения шагов.
type StepRunStore interface {
	CreateBatch(ctx context.Context, runs []domain.StepRun) error
	GetByPosition(ctx context.Context, projectID uuid.UUID, position int) (*domain.StepRun, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]domain.StepRun, error)
	Update(ctx context.Context, run *domain.StepRun) error
	ListRunning(ctx context.Context) ([]domain.StepRun, error)
}

// PipelineStore — хранилище pipelines и узлов.
type PipelineStore interface {
	GetBySlug(ctx context.Context, slug string) (*domain.Pipeline, error)
	ListNodes(ctx context.Context, pipelineID uuid.UUID) ([]domain.PipelineNode, error)
}

// ConnectionStore — хранилище соединений pipeline.
type ConnectionStore interface {
	ListByPipeline(ctx context.Context, pipelineID uuid.UUID) ([]domain.Connection, error)
}

// LogStore — журнал проектов.
type LogStore interface {
	Append(ctx context.Context, entry *domain.LogEntry) error
}

// EventPublisher — шина событий жизненного цикла.
type EventPublisher interface {
	PublishProjectEvent(ctx context.Context, eventType mq.EventType, projectID uuid.UUID, projectName string) error
	PublishStepEvent(ctx context.Context, eventType mq.EventType, projectID uuid.UUID, projectName string, position int, stepName, errMsg string) error
}

// ArtifactStore — выгрузка крупных результатов в object storage.
type ArtifactStore interface {
	MaybeOffload(ctx context.Context, projectID uuid.UUID, position int, result map[string]any) (map[string]any, string, error)
	Fetch(ctx context.Context, ref string) (map[string]any, error)
}

// Orchestrator управляет выполнением проектов.
//
// Orchestrator — центральный компонент системы, который:
//   - Запускает проекты асинхронно (start возвращается сразу)
//   - Выполняет шаги строго по возрастанию позиции, по одному на проект
//   - Останавливается на чекпоинтах (REVIEW) и ошибках (FAILED)
//   - Применяет операции оператора (pause, approve, retry, skip, ...)
//   - Держит очередь проектов при достижении лимита одновременности
//   - Персистит каждый переход до публикации событий
type Orchestrator struct {
	// Stores
	projects    ProjectStore
	stepRuns    StepRunStore
	pipelines   PipelineStore
	connections ConnectionStore
	logs        LogStore

	// Optional integrations (nil = выключено)
	publisher EventPublisher
	artifacts ArtifactStore

	// Executors
	registry *steps.Registry

	// Active projects — проекты в выполнении (projectID → state)
	active map[uuid.UUID]*ProjectState
	mu     sync.RWMutex

	// Configuration
	maxConcurrent    int
	stepTimeout      time.Duration
	dispatchInterval time.Duration

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Stores
	Projects    ProjectStore
	StepRuns    StepRunStore
	Pipelines   PipelineStore
	Connections ConnectionStore
	Logs        LogStore

	// Optional integrations
	Publisher EventPublisher
	Artifacts ArtifactStore

	// Executors
	Registry *steps.Registry

	// MaxConcurrent — лимит одновременно выполняющихся проектов (default: 1).
	MaxConcurrent int

	// StepTimeout — таймаут шага по умолчанию (default: 10m).
	StepTimeout time.Duration

	// DispatchInterval — интервал проверки очереди (default: 15s).
	DispatchInterval time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}

	stepTimeout := cfg.StepTimeout
	if stepTimeout <= 0 {
		stepTimeout = defaultStepTimeout
	}

	dispatchInterval := cfg.DispatchInterval
	if dispatchInterval <= 0 {
		dispatchInterval = defaultDispatchInterval
	}

	registry := cfg.Registry
	if registry == nil {
		registry = steps.DefaultRegistry()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		projects:         cfg.Projects,
		stepRuns:         cfg.StepRuns,
		pipelines:        cfg.Pipelines,
		connections:      cfg.Connections,
		logs:             cfg.Logs,
		publisher:        cfg.Publisher,
		artifacts:        cfg.Artifacts,
		registry:         registry,
		active:           make(map[uuid.UUID]*ProjectState),
		maxConcurrent:    maxConcurrent,
		stepTimeout:      stepTimeout,
		dispatchInterval: dispatchInterval,
		logger:           logger,
	}
}

// Start запускает Orchestrator.
//
// Выполняет реконсиляцию осиротевших RUNNING записей, затем запускает
// диспетчер очереди.
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	o.cancelFunc = cancel

	o.logger.Info("starting orchestrator",
		"max_concurrent", o.maxConcurrent,
		"step_timeout", o.stepTimeout,
	)

	if err := o.RecoverOrphans(ctx); err != nil {
		o.logger.Error("orphan recovery failed", "error", err)
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.dispatchLoop(ctx)
	}()

	o.logger.Info("orchestrator started")
	return nil
}

// Stop останавливает Orchestrator.
// Активные runners отменяются; текущие шаги прерываются best-effort.
func (o *Orchestrator) Stop() {
	o.stoppedMu.Lock()
	o.stopped = true
	o.stoppedMu.Unlock()

	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}

	o.mu.RLock()
	for _, state := range o.active {
		state.MarkStopped()
	}
	o.mu.RUnlock()

	o.wg.Wait()

	o.logger.Info("orchestrator stopped")
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	return o.stopped
}

// dispatchLoop — цикл диспетчера очереди.
// Подстраховывает событийный dispatchNext: проекты, поставленные в
// очередь пока оркестратор был выключен, подхватываются первым тиком.
func (o *Orchestrator) dispatchLoop(ctx context.Context) {
	ticker := time.NewTicker(o.dispatchInterval)
	defer ticker.Stop()

	o.dispatchNext(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.dispatchNext(ctx)
		}
	}
}

// dispatchNext запускает проекты из очереди, пока есть свободные слоты.
func (o *Orchestrator) dispatchNext(ctx context.Context) {
	if o.IsStopped() {
		return
	}

	for {
		running, err := o.projects.CountRunning(ctx)
		if err != nil {
			o.logger.Error("failed to count running projects", "error", err)
			return
		}
		if running >= o.maxConcurrent {
			return
		}

		project, err := o.projects.NextQueued(ctx)
		if errors.Is(err, repo.ErrNotFound) {
			return
		}
		if err != nil {
			o.logger.Error("failed to fetch next queued project", "error", err)
			return
		}

		telemetry.QueuedProjects.Dec()
		if err := o.launch(ctx, project); err != nil {
			o.logger.Error("failed to launch queued project",
				"project_id", project.ID,
				"error", err,
			)
			return
		}
	}
}

// isActive проверяет, выполняется ли проект.
func (o *Orchestrator) isActive(projectID uuid.UUID) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, exists := o.active[projectID]
	return exists
}

// getActive возвращает состояние активного проекта.
func (o *Orchestrator) getActive(projectID uuid.UUID) *ProjectState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.active[projectID]
}

// addActive добавляет проект в активные.
func (o *Orchestrator) addActive(state *ProjectState) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.active[state.ProjectID()]; exists {
		return ErrAlreadyRunning
	}

	o.active[state.ProjectID()] = state
	return nil
}

// removeActive удаляет проект из активных.
func (o *Orchestrator) removeActive(projectID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, projectID)
}

// ActiveCount возвращает количество активных проектов.
func (o *Orchestrator) ActiveCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.active)
}

// --- Event and audit helpers ---

// publishProject публикует событие уровня проекта (если шина включена).
func (o *Orchestrator) publishProject(ctx context.Context, eventType mq.EventType, project *domain.Project) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishProjectEvent(ctx, eventType, project.ID, project.Name); err != nil {
		o.logger.Warn("failed to publish project event",
			"type", eventType,
			"project_id", project.ID,
			"error", err,
		)
	}
}

// publishStep публикует событие уровня шага (если шина включена).
func (o *Orchestrator) publishStep(ctx context.Context, eventType mq.EventType, project *domain.Project, run *domain.StepRun, errMsg string) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishStepEvent(ctx, eventType, project.ID, project.Name, run.Position, run.Name, errMsg); err != nil {
		o.logger.Warn("failed to publish step event",
			"type", eventType,
			"project_id", project.ID,
			"position", run.Position,
			"error", err,
		)
	}
}

// audit добавляет запись в журнал проекта.
// Журнал вспомогательный: ошибка записи логируется и не прерывает выполнение.
func (o *Orchestrator) audit(ctx context.Context, projectID uuid.UUID, position int, level, source, message string) {
	entry := domain.NewLogEntry(projectID, position, level, source, message)
	if err := o.logs.Append(ctx, entry); err != nil {
		o.logger.Warn("failed to append audit entry",
			"project_id", projectID,
			"error", err,
		)
	}
}
