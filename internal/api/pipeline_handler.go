package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shaiso/Montage/internal/domain"
	"github.com/shaiso/Montage/internal/wiring"
)

// ListPipelines возвращает список pipelines.
// GET /api/v1/pipelines
func (h *Handler) ListPipelines(w http.ResponseWriter, r *http.Request) {
	pipelines, err := h.pipelineRepo.List(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]PipelineResponse, len(pipelines))
	for i, p := range pipelines {
		result[i] = PipelineFromDomain(p, nil)
	}

	List(w, result, len(result))
}

// CreatePipeline создаёт pipeline вместе с узлами и проводит его.
// POST /api/v1/pipelines
func (h *Handler) CreatePipeline(w http.ResponseWriter, r *http.Request) {
	var req CreatePipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Slug == "" {
		BadRequest(w, "slug is required")
		return
	}
	if len(req.Nodes) == 0 {
		BadRequest(w, "pipeline needs at least one node")
		return
	}

	name := req.Name
	if name == "" {
		name = req.Slug
	}

	pipeline := &domain.Pipeline{
		ID:       uuid.New(),
		Slug:     req.Slug,
		Name:     name,
		Version:  1,
		IsActive: true,
	}

	// Валидируем узлы до записи: все step_slug должны быть в каталоге,
	// позиции — уникальны и положительны.
	seen := make(map[int]bool, len(req.Nodes))
	nodes := make([]domain.PipelineNode, 0, len(req.Nodes))
	for _, n := range req.Nodes {
		if n.Position < 1 {
			BadRequest(w, "node position must be >= 1")
			return
		}
		if seen[n.Position] {
			BadRequest(w, "duplicate node position")
			return
		}
		seen[n.Position] = true

		def, err := h.catalogRepo.GetBySlug(r.Context(), n.StepSlug)
		if HandleRepoError(w, h.logger, err, "step definition not found: "+n.StepSlug) {
			return
		}

		active := true
		if n.IsActive != nil {
			active = *n.IsActive
		}
		nodes = append(nodes, domain.PipelineNode{
			ID:           uuid.New(),
			PipelineID:   pipeline.ID,
			Position:     n.Position,
			StepSlug:     def.Slug,
			IsCheckpoint: n.IsCheckpoint,
			IsActive:     active,
			Config:       n.Config,
			TimeoutSec:   n.TimeoutSec,
			Definition:   def,
		})
	}

	if err := h.pipelineRepo.Create(r.Context(), pipeline); HandleRepoError(w, h.logger, err, "") {
		return
	}
	for i := range nodes {
		if err := h.pipelineRepo.CreateNode(r.Context(), &nodes[i]); HandleRepoError(w, h.logger, err, "") {
			return
		}
	}

	// Автопроводка при создании: подключаем всё, что подключается.
	if _, _, err := h.wiring.Rewire(r.Context(), pipeline.ID, nodes); err != nil {
		h.logger.Error("initial wiring failed", "pipeline", pipeline.Slug, "error", err)
	}

	Created(w, PipelineFromDomain(*pipeline, nodes))
}

// GetPipeline возвращает pipeline с узлами.
// GET /api/v1/pipelines/{slug}
func (h *Handler) GetPipeline(w http.ResponseWriter, r *http.Request) {
	pipeline, err := h.pipelineRepo.GetBySlug(r.Context(), r.PathValue("slug"))
	if HandleRepoError(w, h.logger, err, "pipeline not found") {
		return
	}

	nodes, err := h.pipelineRepo.ListNodes(r.Context(), pipeline.ID)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	Success(w, PipelineFromDomain(*pipeline, nodes))
}

// ListConnections возвращает текущую проводку pipeline.
// GET /api/v1/pipelines/{slug}/connections
func (h *Handler) ListConnections(w http.ResponseWriter, r *http.Request) {
	pipeline, err := h.pipelineRepo.GetBySlug(r.Context(), r.PathValue("slug"))
	if HandleRepoError(w, h.logger, err, "pipeline not found") {
		return
	}

	conns, err := h.connRepo.ListByPipeline(r.Context(), pipeline.ID)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	List(w, conns, len(conns))
}

// WirePipeline пересчитывает и заменяет соединения pipeline.
// POST /api/v1/pipelines/{slug}/wire
func (h *Handler) WirePipeline(w http.ResponseWriter, r *http.Request) {
	pipeline, err := h.pipelineRepo.GetBySlug(r.Context(), r.PathValue("slug"))
	if HandleRepoError(w, h.logger, err, "pipeline not found") {
		return
	}

	nodes, err := h.pipelineRepo.ListNodes(r.Context(), pipeline.ID)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	plan, outcomes, err := h.wiring.Rewire(r.Context(), pipeline.ID, nodes)
	if errors.Is(err, wiring.ErrNoNodes) {
		InvalidState(w, "pipeline has no nodes")
		return
	}
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	// Структура изменилась — версия растёт.
	if err := h.pipelineRepo.BumpVersion(r.Context(), pipeline.ID); err != nil {
		h.logger.Warn("failed to bump pipeline version", "pipeline", pipeline.Slug, "error", err)
	}

	Success(w, WireFromPlan(plan, outcomes))
}
