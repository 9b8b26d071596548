package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Montage/internal/domain"
	"github.com/shaiso/Montage/internal/mq"
	"github.com/shaiso/Montage/internal/repo"
	"github.com/shaiso/Montage/internal/telemetry"
)

// StartProject запускает выполнение проекта.
//
// Вызов асинхронный: возвращается сразу после регистрации, шаги
// выполняются в фоне. При достижении лимита одновременности проект
// ставится в очередь (QUEUED) и запустится, когда освободится слот.
func (o *Orchestrator) StartProject(ctx context.Context, projectID uuid.UUID) error {
	if o.IsStopped() {
		return ErrOrchestratorStopped
	}

	project, err := o.loadProject(ctx, projectID)
	if err != nil {
		return err
	}

	// Авторитетен живой runner, а не персистентный статус: RUNNING
	// в БД без владельца — остаток упавшего процесса.
	if o.isActive(projectID) {
		return ErrAlreadyRunning
	}
	if project.Status.IsTerminal() {
		return fmt.Errorf("%w: project is %s", ErrInvalidState, project.Status)
	}

	if err := o.ensureStepRuns(ctx, project); err != nil {
		return err
	}

	// Застрявшая RUNNING-строка уже занимает слот в CountRunning,
	// поэтому перезапускается напрямую, минуя очередь.
	if project.Status == domain.ProjectStatusRunning {
		return o.launch(ctx, project)
	}

	return o.launchOrQueue(ctx, project)
}

// Pause приостанавливает выполнение проекта.
// Текущий шаг довыполняется, следующий не запускается. No-op, если
// проект уже на паузе.
func (o *Orchestrator) Pause(ctx context.Context, projectID uuid.UUID) error {
	project, err := o.loadProject(ctx, projectID)
	if err != nil {
		return err
	}

	if project.Paused {
		return nil
	}

	if state := o.getActive(projectID); state != nil {
		// Runner жив: флаг сработает на границе узлов, статус PAUSED
		// персистнет сам runner.
		state.SetPaused(true)
		project.Paused = true
	} else {
		project.MarkPaused()
	}

	if err := o.projects.Update(ctx, project); err != nil {
		return fmt.Errorf("update project: %w", err)
	}

	o.audit(ctx, projectID, 0, domain.LogLevelInfo, auditSource, "pause requested")
	o.logger.Info("project pause requested", "project_id", projectID)
	return nil
}

// Resume снимает паузу и продолжает выполнение с текущей позиции.
func (o *Orchestrator) Resume(ctx context.Context, projectID uuid.UUID) error {
	project, err := o.loadProject(ctx, projectID)
	if err != nil {
		return err
	}

	if !project.Paused {
		return ErrNotPaused
	}

	project.Paused = false

	if state := o.getActive(projectID); state != nil {
		// Пауза запрошена, но граница узла ещё не достигнута:
		// достаточно снять флаг, runner продолжит сам.
		state.SetPaused(false)
		if err := o.projects.Update(ctx, project); err != nil {
			return fmt.Errorf("update project: %w", err)
		}
		o.audit(ctx, projectID, 0, domain.LogLevelInfo, auditSource, "project resumed")
		return nil
	}

	if err := o.projects.Update(ctx, project); err != nil {
		return fmt.Errorf("update project: %w", err)
	}

	o.audit(ctx, projectID, 0, domain.LogLevelInfo, auditSource, "project resumed")
	return o.launchOrQueue(ctx, project)
}

// ApproveStep одобряет шаг-чекпоинт и продолжает выполнение.
func (o *Orchestrator) ApproveStep(ctx context.Context, projectID uuid.UUID, position int) error {
	project, run, err := o.loadStep(ctx, projectID, position)
	if err != nil {
		return err
	}

	if run.Status != domain.StepStatusReview {
		return fmt.Errorf("%w: step at position %d is %s, want REVIEW", ErrInvalidState, position, run.Status)
	}

	run.MarkApproved()
	if err := o.stepRuns.Update(ctx, run); err != nil {
		return fmt.Errorf("update step run: %w", err)
	}

	o.audit(ctx, projectID, position, domain.LogLevelInfo, auditSource, "step approved")
	o.logger.Info("step approved", "project_id", projectID, "position", position)

	return o.resumeIfIdle(ctx, project)
}

// SubmitFeedback прикладывает фидбек оператора к шагу в REVIEW.
//
// Статус шага не меняется: фидбек — материал для доработки перед
// повторным запуском или approve, сам по себе он ничего не запускает.
func (o *Orchestrator) SubmitFeedback(ctx context.Context, projectID uuid.UUID, position int, text string) error {
	if text == "" {
		return fmt.Errorf("%w: feedback text", ErrMissingArgument)
	}

	project, run, err := o.loadStep(ctx, projectID, position)
	if err != nil {
		return err
	}

	if run.Status != domain.StepStatusReview {
		return fmt.Errorf("%w: step at position %d is %s, want REVIEW", ErrInvalidState, position, run.Status)
	}

	run.Feedback = text
	if err := o.stepRuns.Update(ctx, run); err != nil {
		return fmt.Errorf("update step run: %w", err)
	}

	project.AddFeedback(position, text)
	if err := o.projects.Update(ctx, project); err != nil {
		return fmt.Errorf("update project: %w", err)
	}

	o.audit(ctx, projectID, position, domain.LogLevelInfo, auditSource, "feedback submitted")
	return nil
}

// SkipStep пропускает шаг в PENDING или FAILED.
//
// Шаг становится терминальным без результата: downstream шаги,
// зависящие от его выходов, не найдут эти ключи.
func (o *Orchestrator) SkipStep(ctx context.Context, projectID uuid.UUID, position int) error {
	project, run, err := o.loadStep(ctx, projectID, position)
	if err != nil {
		return err
	}

	if run.Status != domain.StepStatusPending && run.Status != domain.StepStatusFailed {
		return fmt.Errorf("%w: step at position %d is %s, want PENDING or FAILED", ErrInvalidState, position, run.Status)
	}

	run.MarkSkipped()
	if err := o.stepRuns.Update(ctx, run); err != nil {
		return fmt.Errorf("update step run: %w", err)
	}

	o.publishStep(ctx, mq.EventStepSkipped, project, run, "")
	o.audit(ctx, projectID, position, domain.LogLevelWarn, auditSource, "step skipped by operator")
	o.logger.Info("step skipped", "project_id", projectID, "position", position)

	return o.resumeIfIdle(ctx, project)
}

// RetryStep возвращает упавший шаг в PENDING и перезапускает выполнение.
// Счётчик попыток накопительный и не сбрасывается.
func (o *Orchestrator) RetryStep(ctx context.Context, projectID uuid.UUID, position int) error {
	project, run, err := o.loadStep(ctx, projectID, position)
	if err != nil {
		return err
	}

	if run.Status != domain.StepStatusFailed {
		return fmt.Errorf("%w: step at position %d is %s, want FAILED", ErrInvalidState, position, run.Status)
	}

	run.ResetForRetry()
	if err := o.stepRuns.Update(ctx, run); err != nil {
		return fmt.Errorf("update step run: %w", err)
	}

	o.audit(ctx, projectID, position, domain.LogLevelInfo, auditSource,
		fmt.Sprintf("step retry requested (attempt %d)", run.RetryCount+1))
	o.logger.Info("step retry requested", "project_id", projectID, "position", position)

	return o.resumeIfIdle(ctx, project)
}

// ApproveScene фиксирует одобрение одной сцены внутри результата
// шага в REVIEW. Это под-чекпоинт уровня payload'а, не переход статуса:
// шаг остаётся в REVIEW до node-level approve.
func (o *Orchestrator) ApproveScene(ctx context.Context, projectID uuid.UUID, sceneID, imagePath, clipOption string) error {
	if sceneID == "" {
		return fmt.Errorf("%w: scene id", ErrMissingArgument)
	}

	project, err := o.loadProject(ctx, projectID)
	if err != nil {
		return err
	}

	runs, err := o.stepRuns.ListByProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list step runs: %w", err)
	}

	var run *domain.StepRun
	for i := range runs {
		if runs[i].Status == domain.StepStatusReview {
			run = &runs[i]
			break
		}
	}
	if run == nil {
		return fmt.Errorf("%w: no step awaiting review", ErrInvalidState)
	}

	if run.Result == nil {
		run.Result = make(map[string]any)
	}
	approvals, _ := run.Result["scene_approvals"].(map[string]any)
	if approvals == nil {
		approvals = make(map[string]any)
	}
	decision := map[string]any{
		"approved":    true,
		"approved_at": time.Now().Format(time.RFC3339),
	}
	if imagePath != "" {
		decision["image_path"] = imagePath
	}
	if clipOption != "" {
		decision["clip_option"] = clipOption
	}
	approvals[sceneID] = decision
	run.Result["scene_approvals"] = approvals

	if err := o.stepRuns.Update(ctx, run); err != nil {
		return fmt.Errorf("update step run: %w", err)
	}

	o.audit(ctx, project.ID, run.Position, domain.LogLevelInfo, auditSource, "scene approved: "+sceneID)
	return nil
}

// StopProject жёстко останавливает планирование проекта.
//
// Отмена текущего шага best-effort: большинство внешних вызовов нельзя
// прервать на середине. Оркестратор гарантирует только, что следующий
// узел не запустится.
func (o *Orchestrator) StopProject(ctx context.Context, projectID uuid.UUID) error {
	project, err := o.loadProject(ctx, projectID)
	if err != nil {
		return err
	}

	if state := o.getActive(projectID); state != nil {
		state.MarkStopped()
	}

	if !project.Status.IsTerminal() {
		project.MarkPaused()
		if err := o.projects.Update(ctx, project); err != nil {
			return fmt.Errorf("update project: %w", err)
		}
	}

	o.audit(ctx, projectID, 0, domain.LogLevelWarn, auditSource, "project stopped by operator")
	o.logger.Info("project stopped", "project_id", projectID)
	return nil
}

// StatusSnapshot — read-only снимок состояния проекта.
type StatusSnapshot struct {
	Project *domain.Project  `json:"project"`
	Steps   []domain.StepRun `json:"steps"`

	// CurrentPosition — позиция первого нетерминального шага
	// (0, если все шаги терминальны).
	CurrentPosition int `json:"current_position"`

	// Active — runner проекта жив в этом процессе.
	Active bool `json:"active"`

	// Stopped — проект был остановлен оператором (флаг процесса).
	Stopped bool `json:"stopped"`
}

// Status возвращает снимок состояния проекта. Ничего не мутирует.
func (o *Orchestrator) Status(ctx context.Context, projectID uuid.UUID) (*StatusSnapshot, error) {
	project, err := o.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	runs, err := o.stepRuns.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list step runs: %w", err)
	}

	snapshot := &StatusSnapshot{
		Project: project,
		Steps:   runs,
		Active:  o.isActive(projectID),
	}
	if next := nextRunnable(runs); next != nil {
		snapshot.CurrentPosition = next.Position
	}
	if state := o.getActive(projectID); state != nil {
		snapshot.Stopped = state.IsStopped()
	}

	return snapshot, nil
}

// --- Helpers ---

// loadProject загружает проект, транслируя ошибку хранилища.
func (o *Orchestrator) loadProject(ctx context.Context, projectID uuid.UUID) (*domain.Project, error) {
	project, err := o.projects.GetByID(ctx, projectID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	return project, nil
}

// loadStep загружает проект и запись шага по позиции.
func (o *Orchestrator) loadStep(ctx context.Context, projectID uuid.UUID, position int) (*domain.Project, *domain.StepRun, error) {
	project, err := o.loadProject(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}

	run, err := o.stepRuns.GetByPosition(ctx, projectID, position)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: position %d", ErrStepNotFound, position)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load step run: %w", err)
	}

	return project, run, nil
}

// ensureStepRuns создаёт записи шагов при первом запуске проекта.
// Неактивные узлы сразу помечаются SKIPPED.
func (o *Orchestrator) ensureStepRuns(ctx context.Context, project *domain.Project) error {
	existing, err := o.stepRuns.ListByProject(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("list step runs: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	pipeline, err := o.pipelines.GetBySlug(ctx, project.PipelineSlug)
	if errors.Is(err, repo.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrPipelineNotFound, project.PipelineSlug)
	}
	if err != nil {
		return fmt.Errorf("load pipeline: %w", err)
	}

	nodes, err := o.pipelines.ListNodes(ctx, pipeline.ID)
	if err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}
	if len(nodes) == 0 {
		return fmt.Errorf("%w: pipeline %s has no nodes", ErrInvalidState, project.PipelineSlug)
	}

	now := time.Now()
	runs := make([]domain.StepRun, 0, len(nodes))
	for i := range nodes {
		node := &nodes[i]
		status := domain.StepStatusPending
		if !node.IsActive {
			status = domain.StepStatusSkipped
		}
		runs = append(runs, domain.StepRun{
			ProjectID: project.ID,
			Position:  node.Position,
			Name:      node.Definition.Name,
			Executor:  node.Definition.Executor,
			Status:    status,
			CreatedAt: now,
		})
	}

	if err := o.stepRuns.CreateBatch(ctx, runs); err != nil {
		return fmt.Errorf("create step runs: %w", err)
	}

	o.logger.Info("project instantiated",
		"project_id", project.ID,
		"pipeline", project.PipelineSlug,
		"steps", len(runs),
	)
	return nil
}

// launchOrQueue запускает проект или ставит его в очередь при
// достижении лимита одновременности.
func (o *Orchestrator) launchOrQueue(ctx context.Context, project *domain.Project) error {
	running, err := o.projects.CountRunning(ctx)
	if err != nil {
		return fmt.Errorf("count running projects: %w", err)
	}

	if running >= o.maxConcurrent {
		project.MarkQueued()
		if err := o.projects.Update(ctx, project); err != nil {
			return fmt.Errorf("update project: %w", err)
		}

		telemetry.QueuedProjects.Inc()
		o.audit(ctx, project.ID, 0, domain.LogLevelInfo, auditSource, "project queued")
		o.logger.Info("project queued",
			"project_id", project.ID,
			"priority", project.Priority,
			"running", running,
		)
		return nil
	}

	return o.launch(ctx, project)
}

// resumeIfIdle перезапускает runner проекта после операции оператора,
// если он не активен (runner выходит при блокировке на REVIEW/FAILED).
func (o *Orchestrator) resumeIfIdle(ctx context.Context, project *domain.Project) error {
	if o.isActive(project.ID) {
		return nil
	}
	if project.Paused {
		return nil
	}
	return o.launchOrQueue(ctx, project)
}
