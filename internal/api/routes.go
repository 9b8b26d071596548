package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Catalog
	mux.Handle("GET /api/v1/catalog", chain(http.HandlerFunc(h.ListCatalog)))
	mux.Handle("POST /api/v1/catalog", chain(http.HandlerFunc(h.CreateStepDefinition)))
	mux.Handle("GET /api/v1/catalog/{slug}", chain(http.HandlerFunc(h.GetStepDefinition)))

	// Pipelines
	mux.Handle("GET /api/v1/pipelines", chain(http.HandlerFunc(h.ListPipelines)))
	mux.Handle("POST /api/v1/pipelines", chain(http.HandlerFunc(h.CreatePipeline)))
	mux.Handle("GET /api/v1/pipelines/{slug}", chain(http.HandlerFunc(h.GetPipeline)))
	mux.Handle("GET /api/v1/pipelines/{slug}/connections", chain(http.HandlerFunc(h.ListConnections)))
	mux.Handle("POST /api/v1/pipelines/{slug}/wire", chain(http.HandlerFunc(h.WirePipeline)))

	// Projects
	mux.Handle("GET /api/v1/projects", chain(http.HandlerFunc(h.ListProjects)))
	mux.Handle("POST /api/v1/projects", chain(http.HandlerFunc(h.CreateProject)))
	mux.Handle("GET /api/v1/projects/{id}", chain(http.HandlerFunc(h.GetProject)))
	mux.Handle("GET /api/v1/projects/{id}/status", chain(http.HandlerFunc(h.GetProjectStatus)))
	mux.Handle("GET /api/v1/projects/{id}/steps", chain(http.HandlerFunc(h.ListProjectSteps)))
	mux.Handle("GET /api/v1/projects/{id}/logs", chain(http.HandlerFunc(h.ListProjectLogs)))

	// Project lifecycle
	mux.Handle("POST /api/v1/projects/{id}/start", chain(http.HandlerFunc(h.StartProject)))
	mux.Handle("POST /api/v1/projects/{id}/pause", chain(http.HandlerFunc(h.PauseProject)))
	mux.Handle("POST /api/v1/projects/{id}/resume", chain(http.HandlerFunc(h.ResumeProject)))
	mux.Handle("POST /api/v1/projects/{id}/stop", chain(http.HandlerFunc(h.StopProject)))

	// Step operations
	mux.Handle("POST /api/v1/projects/{id}/steps/{position}/approve", chain(http.HandlerFunc(h.ApproveStep)))
	mux.Handle("POST /api/v1/projects/{id}/steps/{position}/feedback", chain(http.HandlerFunc(h.SubmitFeedback)))
	mux.Handle("POST /api/v1/projects/{id}/steps/{position}/skip", chain(http.HandlerFunc(h.SkipStep)))
	mux.Handle("POST /api/v1/projects/{id}/steps/{position}/retry", chain(http.HandlerFunc(h.RetryStep)))

	// Scene approvals
	mux.Handle("POST /api/v1/projects/{id}/scenes/approve", chain(http.HandlerFunc(h.ApproveScene)))
}
