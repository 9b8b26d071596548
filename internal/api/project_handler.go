package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shaiso/Montage/internal/domain"
	"github.com/shaiso/Montage/internal/repo"
)

// CreateProject создаёт новый проект.
// POST /api/v1/projects
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}
	if req.PipelineSlug == "" {
		BadRequest(w, "pipeline_slug is required")
		return
	}

	// Проверяем, что pipeline существует
	pipeline, err := h.pipelineRepo.GetBySlug(r.Context(), req.PipelineSlug)
	if HandleRepoError(w, h.logger, err, "pipeline not found") {
		return
	}
	if !pipeline.IsActive {
		InvalidState(w, "pipeline is not active")
		return
	}

	project := &domain.Project{
		ID:           uuid.New(),
		Name:         req.Name,
		PipelineSlug: pipeline.Slug,
		Status:       domain.ProjectStatusPending,
		Priority:     req.Priority,
	}

	if err := h.projectRepo.Create(r.Context(), project); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Created(w, ProjectFromDomain(*project))
}

// ListProjects возвращает список проектов с фильтрацией.
// GET /api/v1/projects?status=...&pipeline=...&limit=...&offset=...
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	filter := repo.ProjectFilter{
		PipelineSlug: r.URL.Query().Get("pipeline"),
		Limit:        queryInt(r, "limit", 50),
		Offset:       queryInt(r, "offset", 0),
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = domain.ProjectStatus(status)
	}

	projects, err := h.projectRepo.List(r.Context(), filter)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ProjectResponse, len(projects))
	for i, p := range projects {
		result[i] = ProjectFromDomain(p)
	}

	List(w, result, len(result))
}

// GetProject возвращает проект по ID.
// GET /api/v1/projects/{id}
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}

	project, err := h.projectRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "project not found") {
		return
	}

	Success(w, ProjectFromDomain(*project))
}

// StartProject запускает выполнение проекта.
// Запуск асинхронный: ответ возвращается сразу после постановки.
// POST /api/v1/projects/{id}/start
func (h *Handler) StartProject(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}

	if err := h.orch.StartProject(r.Context(), id); HandleOrchestratorError(w, h.logger, err) {
		return
	}

	project, err := h.projectRepo.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "project not found") {
		return
	}

	Accepted(w, ProjectFromDomain(*project))
}

// PauseProject приостанавливает проект на границе текущего узла.
// POST /api/v1/projects/{id}/pause
func (h *Handler) PauseProject(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}

	if err := h.orch.Pause(r.Context(), id); HandleOrchestratorError(w, h.logger, err) {
		return
	}

	NoContent(w)
}

// ResumeProject снимает паузу и продолжает выполнение.
// POST /api/v1/projects/{id}/resume
func (h *Handler) ResumeProject(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}

	if err := h.orch.Resume(r.Context(), id); HandleOrchestratorError(w, h.logger, err) {
		return
	}

	NoContent(w)
}

// StopProject останавливает планирование проекта.
// POST /api/v1/projects/{id}/stop
func (h *Handler) StopProject(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}

	if err := h.orch.StopProject(r.Context(), id); HandleOrchestratorError(w, h.logger, err) {
		return
	}

	NoContent(w)
}

// GetProjectStatus возвращает снимок состояния проекта со всеми шагами.
// GET /api/v1/projects/{id}/status
func (h *Handler) GetProjectStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}

	snapshot, err := h.orch.Status(r.Context(), id)
	if HandleOrchestratorError(w, h.logger, err) {
		return
	}

	resp := StatusResponse{
		Project:         ProjectFromDomain(*snapshot.Project),
		Steps:           make([]StepRunResponse, len(snapshot.Steps)),
		CurrentPosition: snapshot.CurrentPosition,
		Active:          snapshot.Active,
		Stopped:         snapshot.Stopped,
	}
	for i, run := range snapshot.Steps {
		resp.Steps[i] = StepRunFromDomain(run)
	}

	Success(w, resp)
}

// ListProjectSteps возвращает записи шагов проекта по возрастанию позиции.
// GET /api/v1/projects/{id}/steps
func (h *Handler) ListProjectSteps(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}

	if _, err := h.projectRepo.GetByID(r.Context(), id); HandleRepoError(w, h.logger, err, "project not found") {
		return
	}

	runs, err := h.stepRunRepo.ListByProject(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]StepRunResponse, len(runs))
	for i, run := range runs {
		result[i] = StepRunFromDomain(run)
	}

	List(w, result, len(result))
}

// ListProjectLogs возвращает журнал проекта (свежие записи первыми).
// GET /api/v1/projects/{id}/logs?limit=...
func (h *Handler) ListProjectLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}

	// Проверяем, что проект существует
	if _, err := h.projectRepo.GetByID(r.Context(), id); HandleRepoError(w, h.logger, err, "project not found") {
		return
	}

	entries, err := h.logRepo.ListByProject(r.Context(), id, queryInt(r, "limit", 100))
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	List(w, entries, len(entries))
}

// ApproveStep одобряет шаг на чекпоинте.
// POST /api/v1/projects/{id}/steps/{position}/approve
func (h *Handler) ApproveStep(w http.ResponseWriter, r *http.Request) {
	id, position, ok := stepRef(w, r)
	if !ok {
		return
	}

	if err := h.orch.ApproveStep(r.Context(), id, position); HandleOrchestratorError(w, h.logger, err) {
		return
	}

	NoContent(w)
}

// SubmitFeedback прикладывает фидбек оператора к шагу в REVIEW.
// POST /api/v1/projects/{id}/steps/{position}/feedback
func (h *Handler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	id, position, ok := stepRef(w, r)
	if !ok {
		return
	}

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if err := h.orch.SubmitFeedback(r.Context(), id, position, req.Text); HandleOrchestratorError(w, h.logger, err) {
		return
	}

	NoContent(w)
}

// SkipStep помечает шаг пропущенным.
// POST /api/v1/projects/{id}/steps/{position}/skip
func (h *Handler) SkipStep(w http.ResponseWriter, r *http.Request) {
	id, position, ok := stepRef(w, r)
	if !ok {
		return
	}

	if err := h.orch.SkipStep(r.Context(), id, position); HandleOrchestratorError(w, h.logger, err) {
		return
	}

	NoContent(w)
}

// RetryStep возвращает упавший шаг в выполнение.
// POST /api/v1/projects/{id}/steps/{position}/retry
func (h *Handler) RetryStep(w http.ResponseWriter, r *http.Request) {
	id, position, ok := stepRef(w, r)
	if !ok {
		return
	}

	if err := h.orch.RetryStep(r.Context(), id, position); HandleOrchestratorError(w, h.logger, err) {
		return
	}

	NoContent(w)
}

// ApproveScene фиксирует одобрение сцены внутри шага в REVIEW.
// POST /api/v1/projects/{id}/scenes/approve
func (h *Handler) ApproveScene(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}

	var req ApproveSceneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if err := h.orch.ApproveScene(r.Context(), id, req.SceneID, req.ImagePath, req.ClipOption); HandleOrchestratorError(w, h.logger, err) {
		return
	}

	NoContent(w)
}

// --- Helpers ---

// projectID парсит {id} из пути. Пишет 400 при невалидном UUID.
func projectID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid project id")
		return uuid.Nil, false
	}
	return id, true
}

// stepRef парсит {id} и {position} из пути.
func stepRef(w http.ResponseWriter, r *http.Request) (uuid.UUID, int, bool) {
	id, ok := projectID(w, r)
	if !ok {
		return uuid.Nil, 0, false
	}
	position, err := strconv.Atoi(r.PathValue("position"))
	if err != nil || position < 1 {
		BadRequest(w, "invalid step position")
		return uuid.Nil, 0, false
	}
	return id, position, true
}

// queryInt парсит числовой query параметр с дефолтным значением.
func queryInt(r *http.Request, key string, defaultVal int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
