package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Montage/internal/domain"
	"github.com/shaiso/Montage/internal/repo"
	"github.com/shaiso/Montage/internal/steps"
)

// --- In-memory fakes ---

type fakeProjects struct {
	mu       sync.Mutex
	projects map[uuid.UUID]domain.Project
}

func newFakeProjects() *fakeProjects {
	return &fakeProjects{projects: make(map[uuid.UUID]domain.Project)}
}

func (f *fakeProjects) put(p domain.Project) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[p.ID] = p
}

func (f *fakeProjects) GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := p
	return &copied, nil
}

func (f *fakeProjects) Update(ctx context.Context, p *domain.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[p.ID]; !ok {
		return repo.ErrNotFound
	}
	f.projects[p.ID] = *p
	return nil
}

func (f *fakeProjects) ListByStatus(ctx context.Context, status domain.ProjectStatus) ([]domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var projects []domain.Project
	for _, p := range f.projects {
		if p.Status == status {
			projects = append(projects, p)
		}
	}
	return projects, nil
}

func (f *fakeProjects) NextQueued(ctx context.Context) (*domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *domain.Project
	for id := range f.projects {
		p := f.projects[id]
		if p.Status != domain.ProjectStatusQueued {
			continue
		}
		if best == nil || p.Priority > best.Priority ||
			(p.Priority == best.Priority && p.CreatedAt.Before(best.CreatedAt)) {
			copied := p
			best = &copied
		}
	}
	if best == nil {
		return nil, repo.ErrNotFound
	}
	return best, nil
}

func (f *fakeProjects) CountRunning(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, p := range f.projects {
		if p.Status == domain.ProjectStatusRunning {
			count++
		}
	}
	return count, nil
}

type stepKey struct {
	projectID uuid.UUID
	position  int
}

type fakeStepRuns struct {
	mu   sync.Mutex
	runs map[stepKey]domain.StepRun
}

func newFakeStepRuns() *fakeStepRuns {
	return &fakeStepRuns{runs: make(map[stepKey]domain.StepRun)}
}

func (f *fakeStepRuns) CreateBatch(ctx context.Context, runs []domain.StepRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, run := range runs {
		f.runs[stepKey{run.ProjectID, run.Position}] = run
	}
	return nil
}

func (f *fakeStepRuns) GetByPosition(ctx context.Context, projectID uuid.UUID, position int) (*domain.StepRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[stepKey{projectID, position}]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := run
	return &copied, nil
}

func (f *fakeStepRuns) ListByProject(ctx context.Context, projectID uuid.UUID) ([]domain.StepRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var runs []domain.StepRun
	for key, run := range f.runs {
		if key.projectID == projectID {
			runs = append(runs, run)
		}
	}
	// Хранилище отдаёт шаги по возрастанию позиции.
	for i := 0; i < len(runs); i++ {
		for j := i + 1; j < len(runs); j++ {
			if runs[j].Position < runs[i].Position {
				runs[i], runs[j] = runs[j], runs[i]
			}
		}
	}
	return runs, nil
}

func (f *fakeStepRuns) Update(ctx context.Context, run *domain.StepRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := stepKey{run.ProjectID, run.Position}
	if _, ok := f.runs[key]; !ok {
		return repo.ErrNotFound
	}
	f.runs[key] = *run
	return nil
}

func (f *fakeStepRuns) ListRunning(ctx context.Context) ([]domain.StepRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var runs []domain.StepRun
	for _, run := range f.runs {
		if run.Status == domain.StepStatusRunning {
			runs = append(runs, run)
		}
	}
	return runs, nil
}

type fakePipelines struct {
	pipeline domain.Pipeline
	nodes    []domain.PipelineNode
}

func (f *fakePipelines) GetBySlug(ctx context.Context, slug string) (*domain.Pipeline, error) {
	if slug != f.pipeline.Slug {
		return nil, repo.ErrNotFound
	}
	copied := f.pipeline
	return &copied, nil
}

func (f *fakePipelines) ListNodes(ctx context.Context, pipelineID uuid.UUID) ([]domain.PipelineNode, error) {
	return append([]domain.PipelineNode(nil), f.nodes...), nil
}

type fakeConnections struct {
	conns []domain.Connection
}

func (f *fakeConnections) ListByPipeline(ctx context.Context, pipelineID uuid.UUID) ([]domain.Connection, error) {
	return append([]domain.Connection(nil), f.conns...), nil
}

type fakeLogs struct {
	mu      sync.Mutex
	entries []domain.LogEntry
}

func (f *fakeLogs) Append(ctx context.Context, entry *domain.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *entry)
	return nil
}

// scriptedExecutor выполняет заранее заданный сценарий по позициям.
type scriptedExecutor struct {
	name string

	mu sync.Mutex
	// failures — сколько раз упасть на каждой позиции до успеха.
	failures map[int]int
	// outputs — выход для каждой позиции.
	outputs map[int]map[string]any
	// inputsSeen — входы, с которыми вызывался каждый шаг.
	inputsSeen map[int]map[string]any
	// block — если не nil, Execute ждёт сигнала на этих позициях.
	block map[int]chan struct{}
}

func newScriptedExecutor(name string) *scriptedExecutor {
	return &scriptedExecutor{
		name:       name,
		failures:   make(map[int]int),
		outputs:    make(map[int]map[string]any),
		inputsSeen: make(map[int]map[string]any),
		block:      make(map[int]chan struct{}),
	}
}

func (e *scriptedExecutor) Name() string { return e.name }

func (e *scriptedExecutor) Execute(ctx context.Context, req *steps.Request) (*steps.Response, error) {
	e.mu.Lock()
	e.inputsSeen[req.Position] = req.Inputs
	release := e.block[req.Position]
	shouldFail := e.failures[req.Position] > 0
	if shouldFail {
		e.failures[req.Position]--
	}
	output := e.outputs[req.Position]
	e.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if shouldFail {
		return nil, fmt.Errorf("scripted failure at position %d", req.Position)
	}

	return steps.NewResponse(output), nil
}

func (e *scriptedExecutor) seenInputs(position int) map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inputsSeen[position]
}

// --- Test fixture ---

type fixture struct {
	orch      *Orchestrator
	projects  *fakeProjects
	stepRuns  *fakeStepRuns
	pipelines *fakePipelines
	executor  *scriptedExecutor
	logs      *fakeLogs
}

func testNode(position int, slug string, checkpoint bool, outputs []string, inputs []string) domain.PipelineNode {
	def := &domain.StepDefinition{
		Slug:     slug,
		Name:     slug,
		Executor: "scripted",
	}
	for _, key := range outputs {
		def.Outputs = append(def.Outputs, domain.OutputDescriptor{Key: key})
	}
	for _, key := range inputs {
		def.Inputs = append(def.Inputs, domain.InputDescriptor{Key: key, Required: true})
	}
	return domain.PipelineNode{
		ID:           uuid.New(),
		Position:     position,
		StepSlug:     slug,
		IsCheckpoint: checkpoint,
		IsActive:     true,
		Definition:   def,
	}
}

func newFixture(t *testing.T, nodes []domain.PipelineNode, maxConcurrent int) *fixture {
	t.Helper()

	pipeline := domain.Pipeline{
		ID:        uuid.New(),
		Slug:      "test-pipeline",
		Name:      "Test Pipeline",
		Version:   1,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	for i := range nodes {
		nodes[i].PipelineID = pipeline.ID
	}

	// Соединения: простая цепочка по wiring-правилам (ближайший
	// предшествующий производитель каждого ключа).
	var conns []domain.Connection
	for i := range nodes {
		for _, input := range nodes[i].Definition.Inputs {
			best := -1
			for j := range nodes {
				if nodes[j].Position >= nodes[i].Position {
					continue
				}
				for _, out := range nodes[j].Definition.Outputs {
					if out.Key == input.Key && (best < 0 || nodes[j].Position > nodes[best].Position) {
						best = j
					}
				}
			}
			if best >= 0 {
				conns = append(conns, domain.Connection{
					ID:             uuid.New(),
					PipelineID:     pipeline.ID,
					SourceNodeID:   nodes[best].ID,
					OutputKey:      input.Key,
					TargetNodeID:   nodes[i].ID,
					TargetInputKey: input.Key,
				})
			}
		}
	}

	executor := newScriptedExecutor("scripted")
	registry := steps.NewRegistry()
	registry.Register(executor)

	projects := newFakeProjects()
	stepRuns := newFakeStepRuns()
	pipelines := &fakePipelines{pipeline: pipeline, nodes: nodes}
	logs := &fakeLogs{}

	orch := New(Config{
		Projects:      projects,
		StepRuns:      stepRuns,
		Pipelines:     pipelines,
		Connections:   &fakeConnections{conns: conns},
		Logs:          logs,
		Registry:      registry,
		MaxConcurrent: maxConcurrent,
		StepTimeout:   5 * time.Second,
	})

	return &fixture{
		orch:      orch,
		projects:  projects,
		stepRuns:  stepRuns,
		pipelines: pipelines,
		executor:  executor,
		logs:      logs,
	}
}

func (f *fixture) newProject(name string, priority int) *domain.Project {
	p := domain.Project{
		ID:           uuid.New(),
		Name:         name,
		PipelineSlug: "test-pipeline",
		Status:       domain.ProjectStatusPending,
		Priority:     priority,
		CreatedAt:    time.Now(),
	}
	f.projects.put(p)
	return &p
}

// waitForStatus ждёт, пока проект не перейдёт в ожидаемый статус.
func (f *fixture) waitForStatus(t *testing.T, projectID uuid.UUID, want domain.ProjectStatus) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		p, err := f.projects.GetByID(context.Background(), projectID)
		if err == nil && p.Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	p, _ := f.projects.GetByID(context.Background(), projectID)
	t.Fatalf("project never reached %s, stuck at %s", want, p.Status)
}

func (f *fixture) stepStatus(t *testing.T, projectID uuid.UUID, position int) domain.StepStatus {
	t.Helper()
	run, err := f.stepRuns.GetByPosition(context.Background(), projectID, position)
	if err != nil {
		t.Fatalf("step at position %d: %v", position, err)
	}
	return run.Status
}

// --- Tests ---

func TestEndToEndWithCheckpoint(t *testing.T) {
	// A@1 производит transcript; B@2 потребляет; C@3 — чекпоинт.
	fx := newFixture(t, []domain.PipelineNode{
		testNode(1, "fetch-transcript", false, []string{"transcript"}, nil),
		testNode(2, "summarize", false, []string{"summary"}, []string{"transcript"}),
		testNode(3, "review-cut", true, nil, []string{"transcript"}),
	}, 1)
	fx.executor.outputs[1] = map[string]any{"transcript": "raw interview text"}
	fx.executor.outputs[2] = map[string]any{"summary": "short version"}

	project := fx.newProject("documentary", 0)
	if err := fx.orch.StartProject(context.Background(), project.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	fx.waitForStatus(t, project.ID, domain.ProjectStatusReview)

	if got := fx.stepStatus(t, project.ID, 1); got != domain.StepStatusCompleted {
		t.Errorf("step 1 = %s, want COMPLETED", got)
	}
	if got := fx.stepStatus(t, project.ID, 2); got != domain.StepStatusCompleted {
		t.Errorf("step 2 = %s, want COMPLETED", got)
	}
	if got := fx.stepStatus(t, project.ID, 3); got != domain.StepStatusReview {
		t.Errorf("step 3 = %s, want REVIEW", got)
	}

	// Входы собраны по соединениям: оба потребителя получили transcript от A.
	if inputs := fx.executor.seenInputs(2); inputs["transcript"] != "raw interview text" {
		t.Errorf("step 2 inputs = %v, want transcript from step 1", inputs)
	}
	if inputs := fx.executor.seenInputs(3); inputs["transcript"] != "raw interview text" {
		t.Errorf("step 3 inputs = %v, want transcript from step 1", inputs)
	}

	if err := fx.orch.ApproveStep(context.Background(), project.ID, 3); err != nil {
		t.Fatalf("approve: %v", err)
	}

	fx.waitForStatus(t, project.ID, domain.ProjectStatusCompleted)
}

func TestStartUnknownProject(t *testing.T) {
	fx := newFixture(t, []domain.PipelineNode{
		testNode(1, "solo", false, nil, nil),
	}, 1)

	err := fx.orch.StartProject(context.Background(), uuid.New())
	if !errors.Is(err, ErrProjectNotFound) {
		t.Errorf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestApproveRequiresReview(t *testing.T) {
	fx := newFixture(t, []domain.PipelineNode{
		testNode(1, "solo", false, nil, nil),
	}, 1)
	project := fx.newProject("p", 0)

	// Инстанцируем шаги, не запуская выполнение.
	loaded, _ := fx.projects.GetByID(context.Background(), project.ID)
	if err := fx.orch.ensureStepRuns(context.Background(), loaded); err != nil {
		t.Fatalf("ensure step runs: %v", err)
	}

	err := fx.orch.ApproveStep(context.Background(), project.ID, 1)
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
	if got := fx.stepStatus(t, project.ID, 1); got != domain.StepStatusPending {
		t.Errorf("step status changed to %s after rejected approve", got)
	}
}

func TestFeedbackRequiresText(t *testing.T) {
	fx := newFixture(t, []domain.PipelineNode{
		testNode(1, "review-script", true, nil, nil),
	}, 1)
	project := fx.newProject("p", 0)

	if err := fx.orch.StartProject(context.Background(), project.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	fx.waitForStatus(t, project.ID, domain.ProjectStatusReview)

	err := fx.orch.SubmitFeedback(context.Background(), project.ID, 1, "")
	if !errors.Is(err, ErrMissingArgument) {
		t.Errorf("expected ErrMissingArgument, got %v", err)
	}

	// Валидный фидбек прикладывается без смены статуса.
	if err := fx.orch.SubmitFeedback(context.Background(), project.ID, 1, "tighten the intro"); err != nil {
		t.Fatalf("feedback: %v", err)
	}
	run, _ := fx.stepRuns.GetByPosition(context.Background(), project.ID, 1)
	if run.Status != domain.StepStatusReview {
		t.Errorf("feedback changed status to %s", run.Status)
	}
	if run.Feedback != "tighten the intro" {
		t.Errorf("feedback not persisted: %q", run.Feedback)
	}

	loaded, _ := fx.projects.GetByID(context.Background(), project.ID)
	if len(loaded.FeedbackHistory) != 1 {
		t.Errorf("feedback history = %d entries, want 1", len(loaded.FeedbackHistory))
	}
}

func TestFailureBlocksUntilRetry(t *testing.T) {
	fx := newFixture(t, []domain.PipelineNode{
		testNode(1, "flaky", false, []string{"data"}, nil),
		testNode(2, "consumer", false, nil, []string{"data"}),
	}, 1)
	fx.executor.failures[1] = 1
	fx.executor.outputs[1] = map[string]any{"data": "ok"}

	project := fx.newProject("p", 0)
	if err := fx.orch.StartProject(context.Background(), project.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	fx.waitForStatus(t, project.ID, domain.ProjectStatusFailed)

	run, _ := fx.stepRuns.GetByPosition(context.Background(), project.ID, 1)
	if run.Status != domain.StepStatusFailed {
		t.Fatalf("step 1 = %s, want FAILED", run.Status)
	}
	if run.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", run.RetryCount)
	}
	if run.Error == "" {
		t.Error("error message not persisted")
	}
	// Автоматических retry нет: шаг 2 не запускался.
	if got := fx.stepStatus(t, project.ID, 2); got != domain.StepStatusPending {
		t.Errorf("step 2 = %s, want PENDING", got)
	}

	if err := fx.orch.RetryStep(context.Background(), project.ID, 1); err != nil {
		t.Fatalf("retry: %v", err)
	}

	fx.waitForStatus(t, project.ID, domain.ProjectStatusCompleted)

	// Счётчик попыток накопительный: успех его не сбрасывает.
	run, _ = fx.stepRuns.GetByPosition(context.Background(), project.ID, 1)
	if run.RetryCount != 1 {
		t.Errorf("retry count after success = %d, want 1", run.RetryCount)
	}
}

func TestRetryRequiresFailed(t *testing.T) {
	fx := newFixture(t, []domain.PipelineNode{
		testNode(1, "solo", false, nil, nil),
	}, 1)
	project := fx.newProject("p", 0)

	if err := fx.orch.StartProject(context.Background(), project.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	fx.waitForStatus(t, project.ID, domain.ProjectStatusCompleted)

	err := fx.orch.RetryStep(context.Background(), project.ID, 1)
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestSkipLeavesDownstreamInputUnresolved(t *testing.T) {
	fx := newFixture(t, []domain.PipelineNode{
		testNode(1, "broken-producer", false, []string{"data"}, nil),
		testNode(2, "consumer", false, nil, []string{"data"}),
	}, 1)
	fx.executor.failures[1] = 99

	project := fx.newProject("p", 0)
	if err := fx.orch.StartProject(context.Background(), project.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	fx.waitForStatus(t, project.ID, domain.ProjectStatusFailed)

	if err := fx.orch.SkipStep(context.Background(), project.ID, 1); err != nil {
		t.Fatalf("skip: %v", err)
	}

	fx.waitForStatus(t, project.ID, domain.ProjectStatusCompleted)

	if got := fx.stepStatus(t, project.ID, 1); got != domain.StepStatusSkipped {
		t.Errorf("step 1 = %s, want SKIPPED", got)
	}
	// Потребитель выполнился, но ключ пропущенного производителя не собран.
	if inputs := fx.executor.seenInputs(2); inputs["data"] != nil {
		t.Errorf("step 2 received input from skipped producer: %v", inputs)
	}
}

func TestCrashRecovery(t *testing.T) {
	fx := newFixture(t, []domain.PipelineNode{
		testNode(1, "interrupted", false, []string{"data"}, nil),
	}, 1)
	fx.executor.outputs[1] = map[string]any{"data": "ok"}

	project := fx.newProject("p", 0)

	// Имитация падения: запись осталась RUNNING без живого исполнителя.
	now := time.Now()
	fx.stepRuns.CreateBatch(context.Background(), []domain.StepRun{{
		ProjectID: project.ID,
		Position:  1,
		Name:      "interrupted",
		Executor:  "scripted",
		Status:    domain.StepStatusRunning,
		StartedAt: &now,
		CreatedAt: now,
	}})
	project.Status = domain.ProjectStatusRunning
	fx.projects.put(*project)

	if err := fx.orch.RecoverOrphans(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}

	run, _ := fx.stepRuns.GetByPosition(context.Background(), project.ID, 1)
	if run.Status != domain.StepStatusFailed {
		t.Fatalf("orphaned step = %s, want FAILED", run.Status)
	}
	loaded, _ := fx.projects.GetByID(context.Background(), project.ID)
	if loaded.Status != domain.ProjectStatusFailed {
		t.Errorf("project = %s, want FAILED", loaded.Status)
	}

	// Явный retry выводит проект из FAILED.
	if err := fx.orch.RetryStep(context.Background(), project.ID, 1); err != nil {
		t.Fatalf("retry after recovery: %v", err)
	}
	fx.waitForStatus(t, project.ID, domain.ProjectStatusCompleted)
}

func TestCrashRecoveryBetweenSteps(t *testing.T) {
	// Падение между узлами: шаг 1 завершён, шаг 2 не начат, проект
	// остался RUNNING. RUNNING-шага нет, но строка проекта без
	// реконсиляции навсегда занимала бы слот одновременности.
	fx := newFixture(t, []domain.PipelineNode{
		testNode(1, "done", false, []string{"data"}, nil),
		testNode(2, "pending", false, nil, []string{"data"}),
	}, 1)
	fx.executor.outputs[2] = map[string]any{}

	project := fx.newProject("p", 0)
	now := time.Now()
	fx.stepRuns.CreateBatch(context.Background(), []domain.StepRun{
		{
			ProjectID:  project.ID,
			Position:   1,
			Name:       "done",
			Executor:   "scripted",
			Status:     domain.StepStatusCompleted,
			Result:     map[string]any{"data": "ok"},
			StartedAt:  &now,
			FinishedAt: &now,
			CreatedAt:  now,
		},
		{
			ProjectID: project.ID,
			Position:  2,
			Name:      "pending",
			Executor:  "scripted",
			Status:    domain.StepStatusPending,
			CreatedAt: now,
		},
	})
	project.Status = domain.ProjectStatusRunning
	fx.projects.put(*project)

	if err := fx.orch.RecoverOrphans(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}

	// Выполненной работы не потеряно — проект возобновим, не FAILED.
	loaded, _ := fx.projects.GetByID(context.Background(), project.ID)
	if loaded.Status != domain.ProjectStatusPaused {
		t.Fatalf("project after recovery = %s, want PAUSED", loaded.Status)
	}
	if !loaded.Paused {
		t.Error("pause flag not set by recovery")
	}
	if count, _ := fx.projects.CountRunning(context.Background()); count != 0 {
		t.Errorf("stranded project still counted as running: %d", count)
	}

	if err := fx.orch.Resume(context.Background(), project.ID); err != nil {
		t.Fatalf("resume after recovery: %v", err)
	}
	fx.waitForStatus(t, project.ID, domain.ProjectStatusCompleted)

	if got := fx.stepStatus(t, project.ID, 1); got != domain.StepStatusCompleted {
		t.Errorf("completed step re-ran: %s", got)
	}
}

func TestStartAdoptsStaleRunningRow(t *testing.T) {
	// RUNNING в БД без живого runner'а не повод для ErrAlreadyRunning:
	// start перезапускает проект с первого нетерминального шага.
	fx := newFixture(t, []domain.PipelineNode{
		testNode(1, "solo", false, nil, nil),
	}, 1)

	project := fx.newProject("p", 0)
	fx.stepRuns.CreateBatch(context.Background(), []domain.StepRun{{
		ProjectID: project.ID,
		Position:  1,
		Name:      "solo",
		Executor:  "scripted",
		Status:    domain.StepStatusPending,
		CreatedAt: time.Now(),
	}})
	project.Status = domain.ProjectStatusRunning
	fx.projects.put(*project)

	if err := fx.orch.StartProject(context.Background(), project.ID); err != nil {
		t.Fatalf("start on stale RUNNING row: %v", err)
	}
	fx.waitForStatus(t, project.ID, domain.ProjectStatusCompleted)
}

func TestPauseKeptWhenStepFails(t *testing.T) {
	// Пауза, запрошенная во время выполнения, переживает падение шага:
	// путь ошибки перечитывает проект и не затирает флаг устаревшим
	// снимком, снятым до запуска исполнителя.
	fx := newFixture(t, []domain.PipelineNode{
		testNode(1, "doomed", false, nil, nil),
	}, 1)
	fx.executor.failures[1] = 1

	release := make(chan struct{})
	fx.executor.block[1] = release

	project := fx.newProject("p", 0)
	if err := fx.orch.StartProject(context.Background(), project.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for fx.stepStatus(t, project.ID, 1) != domain.StepStatusRunning {
		if time.Now().After(deadline) {
			t.Fatal("step 1 never started")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := fx.orch.Pause(context.Background(), project.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	close(release)

	fx.waitForStatus(t, project.ID, domain.ProjectStatusFailed)

	loaded, _ := fx.projects.GetByID(context.Background(), project.ID)
	if !loaded.Paused {
		t.Error("pause flag lost on the failure path")
	}
	if err := fx.orch.Resume(context.Background(), project.ID); errors.Is(err, ErrNotPaused) {
		t.Errorf("resume rejected after mid-step pause: %v", err)
	}
}

func TestPauseHonoredAtNodeBoundary(t *testing.T) {
	fx := newFixture(t, []domain.PipelineNode{
		testNode(1, "slow", false, []string{"data"}, nil),
		testNode(2, "next", false, nil, []string{"data"}),
	}, 1)
	fx.executor.outputs[1] = map[string]any{"data": "ok"}

	release := make(chan struct{})
	fx.executor.block[1] = release

	project := fx.newProject("p", 0)
	if err := fx.orch.StartProject(context.Background(), project.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Шаг 1 в полёте; пауза не прерывает его, но блокирует шаг 2.
	deadline := time.Now().Add(5 * time.Second)
	for fx.stepStatus(t, project.ID, 1) != domain.StepStatusRunning {
		if time.Now().After(deadline) {
			t.Fatal("step 1 never started")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := fx.orch.Pause(context.Background(), project.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	close(release)

	fx.waitForStatus(t, project.ID, domain.ProjectStatusPaused)

	if got := fx.stepStatus(t, project.ID, 1); got != domain.StepStatusCompleted {
		t.Errorf("in-flight step = %s, want COMPLETED (pause does not preempt)", got)
	}
	if got := fx.stepStatus(t, project.ID, 2); got != domain.StepStatusPending {
		t.Errorf("step 2 = %s, want PENDING while paused", got)
	}

	// Повторная пауза — no-op.
	if err := fx.orch.Pause(context.Background(), project.ID); err != nil {
		t.Errorf("second pause: %v", err)
	}

	if err := fx.orch.Resume(context.Background(), project.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	fx.waitForStatus(t, project.ID, domain.ProjectStatusCompleted)
}

func TestResumeRequiresPaused(t *testing.T) {
	fx := newFixture(t, []domain.PipelineNode{
		testNode(1, "solo", false, nil, nil),
	}, 1)
	project := fx.newProject("p", 0)

	err := fx.orch.Resume(context.Background(), project.ID)
	if !errors.Is(err, ErrNotPaused) {
		t.Errorf("expected ErrNotPaused, got %v", err)
	}
}

func TestConcurrencyLimitQueuesSecondProject(t *testing.T) {
	fx := newFixture(t, []domain.PipelineNode{
		testNode(1, "solo", false, nil, nil),
	}, 1)

	release := make(chan struct{})
	fx.executor.block[1] = release

	first := fx.newProject("first", 0)
	second := fx.newProject("second", 0)

	if err := fx.orch.StartProject(context.Background(), first.ID); err != nil {
		t.Fatalf("start first: %v", err)
	}
	fx.waitForStatus(t, first.ID, domain.ProjectStatusRunning)

	if err := fx.orch.StartProject(context.Background(), second.ID); err != nil {
		t.Fatalf("start second: %v", err)
	}
	fx.waitForStatus(t, second.ID, domain.ProjectStatusQueued)

	// Освобождение слота запускает проект из очереди.
	close(release)
	fx.waitForStatus(t, first.ID, domain.ProjectStatusCompleted)
	fx.waitForStatus(t, second.ID, domain.ProjectStatusCompleted)
}

func TestStartAlreadyRunning(t *testing.T) {
	fx := newFixture(t, []domain.PipelineNode{
		testNode(1, "solo", false, nil, nil),
	}, 1)

	release := make(chan struct{})
	fx.executor.block[1] = release
	defer close(release)

	project := fx.newProject("p", 0)
	if err := fx.orch.StartProject(context.Background(), project.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	fx.waitForStatus(t, project.ID, domain.ProjectStatusRunning)

	err := fx.orch.StartProject(context.Background(), project.ID)
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestApproveSceneRecordsDecision(t *testing.T) {
	fx := newFixture(t, []domain.PipelineNode{
		testNode(1, "scene-review", true, nil, nil),
	}, 1)
	fx.executor.outputs[1] = map[string]any{"scenes": []any{"s1", "s2"}}

	project := fx.newProject("p", 0)
	if err := fx.orch.StartProject(context.Background(), project.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	fx.waitForStatus(t, project.ID, domain.ProjectStatusReview)

	if err := fx.orch.ApproveScene(context.Background(), project.ID, "", "", ""); !errors.Is(err, ErrMissingArgument) {
		t.Errorf("expected ErrMissingArgument for empty scene id, got %v", err)
	}

	if err := fx.orch.ApproveScene(context.Background(), project.ID, "s1", "/renders/s1.png", "wide"); err != nil {
		t.Fatalf("approve scene: %v", err)
	}

	run, _ := fx.stepRuns.GetByPosition(context.Background(), project.ID, 1)
	if run.Status != domain.StepStatusReview {
		t.Errorf("scene approval changed node status to %s", run.Status)
	}
	approvals, ok := run.Result["scene_approvals"].(map[string]any)
	if !ok {
		t.Fatalf("scene_approvals not recorded: %v", run.Result)
	}
	if _, ok := approvals["s1"]; !ok {
		t.Errorf("decision for s1 missing: %v", approvals)
	}
}

func TestStatusSnapshot(t *testing.T) {
	fx := newFixture(t, []domain.PipelineNode{
		testNode(1, "a", false, []string{"data"}, nil),
		testNode(2, "b", true, nil, []string{"data"}),
	}, 1)
	fx.executor.outputs[1] = map[string]any{"data": "ok"}

	project := fx.newProject("p", 0)
	if err := fx.orch.StartProject(context.Background(), project.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	fx.waitForStatus(t, project.ID, domain.ProjectStatusReview)

	snapshot, err := fx.orch.Status(context.Background(), project.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if snapshot.Project.Status != domain.ProjectStatusReview {
		t.Errorf("snapshot status = %s, want REVIEW", snapshot.Project.Status)
	}
	if len(snapshot.Steps) != 2 {
		t.Errorf("snapshot steps = %d, want 2", len(snapshot.Steps))
	}
	if snapshot.CurrentPosition != 2 {
		t.Errorf("current position = %d, want 2", snapshot.CurrentPosition)
	}
}

func TestInactiveNodesSkippedAtInstantiation(t *testing.T) {
	nodes := []domain.PipelineNode{
		testNode(1, "a", false, []string{"data"}, nil),
		testNode(2, "disabled", false, nil, []string{"data"}),
		testNode(3, "c", false, nil, nil),
	}
	nodes[1].IsActive = false

	fx := newFixture(t, nodes, 1)
	fx.executor.outputs[1] = map[string]any{"data": "ok"}

	project := fx.newProject("p", 0)
	if err := fx.orch.StartProject(context.Background(), project.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	fx.waitForStatus(t, project.ID, domain.ProjectStatusCompleted)

	if got := fx.stepStatus(t, project.ID, 2); got != domain.StepStatusSkipped {
		t.Errorf("inactive node = %s, want SKIPPED", got)
	}
	if got := fx.stepStatus(t, project.ID, 3); got != domain.StepStatusCompleted {
		t.Errorf("step 3 = %s, want COMPLETED", got)
	}
}
