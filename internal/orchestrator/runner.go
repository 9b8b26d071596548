package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Montage/internal/domain"
	"github.com/shaiso/Montage/internal/mq"
	"github.com/shaiso/Montage/internal/steps"
	"github.com/shaiso/Montage/internal/telemetry"
)

// auditSource — источник записей журнала оркестратора.
const auditSource = "orchestrator"

// launch начинает выполнение проекта: регистрирует состояние,
// переводит проект в RUNNING и запускает runner-горутину.
//
// Контекст runner'а независим от контекста вызывающего: start
// асинхронный, HTTP запрос завершается сразу после запуска.
func (o *Orchestrator) launch(ctx context.Context, project *domain.Project) error {
	runCtx, cancel := context.WithCancel(context.Background())

	state := NewProjectState(project.ID, project.Name, cancel)
	if err := o.addActive(state); err != nil {
		cancel()
		return err
	}

	project.MarkRunning()
	if err := o.projects.Update(ctx, project); err != nil {
		o.removeActive(project.ID)
		cancel()
		return fmt.Errorf("update project: %w", err)
	}

	telemetry.ActiveProjects.Inc()
	o.publishProject(ctx, mq.EventProjectStarted, project)
	o.audit(ctx, project.ID, 0, domain.LogLevelInfo, auditSource, "project execution started")

	o.logger.Info("project started",
		"project_id", project.ID,
		"name", project.Name,
		"pipeline", project.PipelineSlug,
	)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		defer telemetry.ActiveProjects.Dec()
		defer o.removeActive(project.ID)

		o.runProject(runCtx, state)

		// Слот освободился: подтягиваем следующий проект из очереди.
		o.dispatchNext(context.Background())
	}()

	return nil
}

// runProject — основной цикл выполнения проекта.
//
// На каждой итерации выбирается узел с наименьшей позицией, чей шаг
// ещё не терминален. Шаг в REVIEW или FAILED блокирует весь дальнейший
// прогресс до явной операции оператора: runner выходит и возобновляется
// через approve/retry/skip.
func (o *Orchestrator) runProject(ctx context.Context, state *ProjectState) {
	projectID := state.ProjectID()
	logger := telemetry.WithProjectID(o.logger, projectID.String())

	for {
		if ctx.Err() != nil {
			logger.Info("project runner cancelled")
			return
		}

		if state.IsPaused() {
			o.persistPaused(projectID, logger)
			return
		}

		runs, err := o.stepRuns.ListByProject(ctx, projectID)
		if err != nil {
			logger.Error("failed to load step runs", "error", err)
			return
		}

		next := nextRunnable(runs)
		if next == nil {
			o.finalizeCompleted(projectID, logger)
			return
		}

		if next.Status.Blocks() {
			o.persistBlocked(next, logger)
			return
		}

		if !o.executeStep(ctx, state, next) {
			return
		}
	}
}

// nextRunnable возвращает шаг с наименьшей позицией, который ещё
// не терминален. Список отсортирован по позиции хранилищем.
func nextRunnable(runs []domain.StepRun) *domain.StepRun {
	for i := range runs {
		if !runs[i].Status.IsTerminal() {
			return &runs[i]
		}
	}
	return nil
}

// executeStep выполняет один шаг. Возвращает true, если runner может
// продолжать со следующим узлом.
func (o *Orchestrator) executeStep(ctx context.Context, state *ProjectState, run *domain.StepRun) bool {
	projectID := state.ProjectID()
	logger := telemetry.WithPosition(telemetry.WithProjectID(o.logger, projectID.String()), run.Position)

	project, err := o.projects.GetByID(ctx, projectID)
	if err != nil {
		logger.Error("failed to load project", "error", err)
		return false
	}

	node, nodes, err := o.resolveNode(ctx, project, run.Position)
	if err != nil {
		o.failStep(ctx, run, fmt.Sprintf("resolve pipeline node: %v", err), logger)
		return false
	}

	inputs, err := o.collectInputs(ctx, project, node, nodes)
	if err != nil {
		o.failStep(ctx, run, fmt.Sprintf("collect inputs: %v", err), logger)
		return false
	}

	executor, err := o.registry.Get(run.Executor)
	if err != nil {
		o.failStep(ctx, run, fmt.Sprintf("unknown executor %q", run.Executor), logger)
		return false
	}

	// Переход в RUNNING персистится до вызова исполнителя: при падении
	// процесса запись останется RUNNING и будет реконсилирована в FAILED.
	run.MarkRunning()
	if err := o.stepRuns.Update(ctx, run); err != nil {
		logger.Error("failed to persist running status", "error", err)
		return false
	}

	telemetry.StepsStarted.WithLabelValues(run.Executor).Inc()
	o.publishStep(ctx, mq.EventStepStarted, project, run, "")
	o.audit(ctx, projectID, run.Position, domain.LogLevelInfo, run.Name, "step started")
	logger.Info("step started", "step", run.Name, "executor", run.Executor)

	timeout := node.Timeout(o.stepTimeout)
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	started := time.Now()

	resp, execErr := executor.Execute(stepCtx, &steps.Request{
		ProjectID:   projectID,
		ProjectName: project.Name,
		Position:    run.Position,
		StepSlug:    node.StepSlug,
		Config:      node.MergedConfig(),
		Inputs:      inputs,
		Feedback:    run.Feedback,
		Timeout:     timeout,
	})
	cancel()

	telemetry.StepDuration.WithLabelValues(run.Executor).Observe(time.Since(started).Seconds())

	if execErr != nil {
		o.failStep(ctx, run, execErr.Error(), logger)
		return false
	}

	result := resp.Output
	var resultRef string
	if o.artifacts != nil {
		result, resultRef, err = o.artifacts.MaybeOffload(ctx, projectID, run.Position, result)
		if err != nil {
			// Выгрузка вспомогательная: оставляем результат inline.
			logger.Warn("artifact offload failed, keeping result inline", "error", err)
			result = resp.Output
			resultRef = ""
		}
	}

	if node.IsCheckpoint {
		run.MarkReview(result)
		run.ResultRef = resultRef
		if err := o.stepRuns.Update(ctx, run); err != nil {
			logger.Error("failed to persist review status", "error", err)
			return false
		}

		o.publishStep(ctx, mq.EventStepReview, project, run, "")
		o.audit(ctx, projectID, run.Position, domain.LogLevelInfo, run.Name, "step awaiting review")
		logger.Info("step awaiting review", "step", run.Name)

		o.persistBlocked(run, logger)
		return false
	}

	run.MarkCompleted(result)
	run.ResultRef = resultRef
	if err := o.stepRuns.Update(ctx, run); err != nil {
		logger.Error("failed to persist completed status", "error", err)
		return false
	}

	telemetry.StepsCompleted.WithLabelValues(run.Executor).Inc()
	o.publishStep(ctx, mq.EventStepCompleted, project, run, "")
	o.audit(ctx, projectID, run.Position, domain.LogLevelInfo, run.Name, "step completed")
	logger.Info("step completed", "step", run.Name, "duration", run.Duration())

	return true
}

// failStep персистит FAILED для шага и проекта.
// Автоматических retry нет: упавший шаг ждёт явного retry или skip.
func (o *Orchestrator) failStep(ctx context.Context, run *domain.StepRun, errMsg string, logger *slog.Logger) {
	run.MarkFailed(errMsg)
	if err := o.stepRuns.Update(ctx, run); err != nil {
		logger.Error("failed to persist failed status", "error", err)
		return
	}

	// Проект перечитывается: пока шаг выполнялся, оператор мог
	// запросить паузу или приложить фидбек, снимок до запуска устарел.
	project, err := o.projects.GetByID(ctx, run.ProjectID)
	if err != nil {
		logger.Error("failed to load project for failure", "error", err)
		return
	}

	project.MarkFailed()
	if err := o.projects.Update(ctx, project); err != nil {
		logger.Error("failed to persist project failure", "error", err)
	}

	telemetry.StepsFailed.WithLabelValues(run.Executor).Inc()
	telemetry.ProjectsFailed.Inc()
	o.publishStep(ctx, mq.EventStepFailed, project, run, errMsg)
	o.publishProject(ctx, mq.EventProjectFailed, project)
	o.audit(ctx, project.ID, run.Position, domain.LogLevelError, run.Name, "step failed: "+errMsg)

	logger.Error("step failed",
		"step", run.Name,
		"retry_count", run.RetryCount,
		"error", errMsg,
	)
}

// resolveNode загружает узел pipeline по позиции шага.
func (o *Orchestrator) resolveNode(ctx context.Context, project *domain.Project, position int) (*domain.PipelineNode, []domain.PipelineNode, error) {
	pipeline, err := o.pipelines.GetBySlug(ctx, project.PipelineSlug)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline %q: %w", project.PipelineSlug, err)
	}

	nodes, err := o.pipelines.ListNodes(ctx, pipeline.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list nodes: %w", err)
	}

	for i := range nodes {
		if nodes[i].Position == position {
			return &nodes[i], nodes, nil
		}
	}
	return nil, nil, fmt.Errorf("no node at position %d", position)
}

// collectInputs собирает входы узла по соединениям pipeline.
//
// Для каждого входящего соединения берётся результат шага-производителя
// по его позиции. Отсутствующий ключ (производитель пропущен или не
// выдал output) не ошибка: вход остаётся несобранным, исполнитель сам
// решает, может ли он работать без него.
func (o *Orchestrator) collectInputs(ctx context.Context, project *domain.Project, node *domain.PipelineNode, nodes []domain.PipelineNode) (map[string]any, error) {
	conns, err := o.connections.ListByPipeline(ctx, node.PipelineID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}

	positionByNode := make(map[uuid.UUID]int, len(nodes))
	for i := range nodes {
		positionByNode[nodes[i].ID] = nodes[i].Position
	}

	runs, err := o.stepRuns.ListByProject(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("list step runs: %w", err)
	}
	runByPosition := make(map[int]*domain.StepRun, len(runs))
	for i := range runs {
		runByPosition[runs[i].Position] = &runs[i]
	}

	inputs := make(map[string]any)
	for _, conn := range conns {
		if conn.TargetNodeID != node.ID {
			continue
		}

		sourcePos, ok := positionByNode[conn.SourceNodeID]
		if !ok {
			continue
		}
		sourceRun, ok := runByPosition[sourcePos]
		if !ok || sourceRun.Result == nil {
			continue
		}

		result := sourceRun.Result
		if sourceRun.ResultRef != "" && o.artifacts != nil {
			fetched, err := o.artifacts.Fetch(ctx, sourceRun.ResultRef)
			if err != nil {
				return nil, fmt.Errorf("fetch artifact for position %d: %w", sourcePos, err)
			}
			result = fetched
		}

		if value, ok := result[conn.OutputKey]; ok {
			inputs[conn.TargetInputKey] = value
		}
	}

	return inputs, nil
}

// persistBlocked переводит проект в статус блокирующего шага.
func (o *Orchestrator) persistBlocked(run *domain.StepRun, logger *slog.Logger) {
	ctx := context.Background()

	project, err := o.projects.GetByID(ctx, run.ProjectID)
	if err != nil {
		logger.Error("failed to load project for blocking status", "error", err)
		return
	}

	switch run.Status {
	case domain.StepStatusReview:
		project.MarkReview()
	case domain.StepStatusFailed:
		project.MarkFailed()
	default:
		return
	}

	if err := o.projects.Update(ctx, project); err != nil {
		logger.Error("failed to persist blocking status", "error", err)
		return
	}

	logger.Info("project blocked", "status", project.Status, "position", run.Position)
}

// persistPaused переводит проект в PAUSED на границе узлов.
func (o *Orchestrator) persistPaused(projectID uuid.UUID, logger *slog.Logger) {
	ctx := context.Background()

	project, err := o.projects.GetByID(ctx, projectID)
	if err != nil {
		logger.Error("failed to load project for pause", "error", err)
		return
	}

	project.MarkPaused()
	if err := o.projects.Update(ctx, project); err != nil {
		logger.Error("failed to persist paused status", "error", err)
		return
	}

	o.publishProject(ctx, mq.EventProjectPaused, project)
	o.audit(ctx, project.ID, 0, domain.LogLevelInfo, auditSource, "project paused")
	logger.Info("project paused at node boundary")
}

// finalizeCompleted переводит проект в COMPLETED: все шаги терминальны.
func (o *Orchestrator) finalizeCompleted(projectID uuid.UUID, logger *slog.Logger) {
	ctx := context.Background()

	project, err := o.projects.GetByID(ctx, projectID)
	if err != nil {
		logger.Error("failed to load project for completion", "error", err)
		return
	}

	project.MarkCompleted()
	if err := o.projects.Update(ctx, project); err != nil {
		logger.Error("failed to persist completed status", "error", err)
		return
	}

	telemetry.ProjectsCompleted.Inc()
	o.publishProject(ctx, mq.EventProjectCompleted, project)
	o.audit(ctx, project.ID, 0, domain.LogLevelInfo, auditSource, "project completed")
	logger.Info("project completed", "duration", project.Duration())
}
