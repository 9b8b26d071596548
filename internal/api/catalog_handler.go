package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/Montage/internal/domain"
)

// ListCatalog возвращает все определения шагов.
// GET /api/v1/catalog
func (h *Handler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	defs, err := h.catalogRepo.List(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	List(w, defs, len(defs))
}

// GetStepDefinition возвращает определение шага по slug.
// GET /api/v1/catalog/{slug}
func (h *Handler) GetStepDefinition(w http.ResponseWriter, r *http.Request) {
	def, err := h.catalogRepo.GetBySlug(r.Context(), r.PathValue("slug"))
	if HandleRepoError(w, h.logger, err, "step definition not found") {
		return
	}

	Success(w, def)
}

// CreateStepDefinition регистрирует новое определение шага.
// POST /api/v1/catalog
func (h *Handler) CreateStepDefinition(w http.ResponseWriter, r *http.Request) {
	var req CreateStepDefinitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	def := &domain.StepDefinition{
		Slug:          req.Slug,
		Name:          req.Name,
		Category:      req.Category,
		Executor:      req.Executor,
		Description:   req.Description,
		Inputs:        req.Inputs,
		Outputs:       req.Outputs,
		DefaultConfig: req.DefaultConfig,
	}

	if err := def.Validate(); err != nil {
		BadRequest(w, err.Error())
		return
	}

	if err := h.catalogRepo.Create(r.Context(), def); HandleRepoError(w, h.logger, err, "") {
		return
	}

	Created(w, def)
}
