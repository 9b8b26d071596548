package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Montage/internal/domain"
	"github.com/shaiso/Montage/internal/wiring"
)

// Catalog DTOs

// CreateStepDefinitionRequest — запрос на регистрацию шага в каталоге.
type CreateStepDefinitionRequest struct {
	Slug          string                   `json:"slug"`
	Name          string                   `json:"name"`
	Category      string                   `json:"category"`
	Executor      string                   `json:"executor"`
	Description   string                   `json:"description,omitempty"`
	Inputs        []domain.InputDescriptor  `json:"inputs,omitempty"`
	Outputs       []domain.OutputDescriptor `json:"outputs,omitempty"`
	DefaultConfig map[string]any           `json:"default_config,omitempty"`
}

// Pipeline DTOs

// CreatePipelineRequest — запрос на создание pipeline с узлами.
type CreatePipelineRequest struct {
	Slug  string              `json:"slug"`
	Name  string              `json:"name"`
	Nodes []CreateNodeRequest `json:"nodes"`
}

// CreateNodeRequest — один узел в запросе создания pipeline.
type CreateNodeRequest struct {
	Position     int            `json:"position"`
	StepSlug     string         `json:"step_slug"`
	IsCheckpoint bool           `json:"is_checkpoint"`
	IsActive     *bool          `json:"is_active,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
	TimeoutSec   int            `json:"timeout_sec,omitempty"`
}

// PipelineResponse — ответ с pipeline.
type PipelineResponse struct {
	ID        uuid.UUID             `json:"id"`
	Slug      string                `json:"slug"`
	Name      string                `json:"name"`
	Version   int                   `json:"version"`
	IsActive  bool                  `json:"is_active"`
	Nodes     []domain.PipelineNode `json:"nodes,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

// PipelineFromDomain конвертирует domain.Pipeline в PipelineResponse.
func PipelineFromDomain(p domain.Pipeline, nodes []domain.PipelineNode) PipelineResponse {
	return PipelineResponse{
		ID:        p.ID,
		Slug:      p.Slug,
		Name:      p.Name,
		Version:   p.Version,
		IsActive:  p.IsActive,
		Nodes:     nodes,
		CreatedAt: p.CreatedAt,
	}
}

// WireResponse — результат автопроводки pipeline.
type WireResponse struct {
	Connections []domain.Connection `json:"connections"`
	Warnings    []string            `json:"warnings,omitempty"`
	Failed      int                 `json:"failed,omitempty"`
}

// WireFromPlan конвертирует план проводки в WireResponse.
func WireFromPlan(plan *wiring.Plan, outcomes []wiring.CommitOutcome) WireResponse {
	resp := WireResponse{Connections: plan.Connections}
	for _, w := range plan.Warnings {
		resp.Warnings = append(resp.Warnings, w.String())
	}
	for _, o := range outcomes {
		if o.Err != nil {
			resp.Failed++
		}
	}
	return resp
}

// Project DTOs

// CreateProjectRequest — запрос на создание проекта.
type CreateProjectRequest struct {
	Name         string `json:"name"`
	PipelineSlug string `json:"pipeline_slug"`
	Priority     int    `json:"priority,omitempty"`
}

// ProjectResponse — ответ с проектом.
type ProjectResponse struct {
	ID              uuid.UUID              `json:"id"`
	Name            string                 `json:"name"`
	PipelineSlug    string                 `json:"pipeline_slug"`
	Status          string                 `json:"status"`
	Paused          bool                   `json:"paused"`
	Priority        int                    `json:"priority"`
	FeedbackHistory []domain.FeedbackEntry `json:"feedback_history,omitempty"`
	StartedAt       *time.Time             `json:"started_at,omitempty"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

// ProjectFromDomain конвертирует domain.Project в ProjectResponse.
func ProjectFromDomain(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:              p.ID,
		Name:            p.Name,
		PipelineSlug:    p.PipelineSlug,
		Status:          string(p.Status),
		Paused:          p.Paused,
		Priority:        p.Priority,
		FeedbackHistory: p.FeedbackHistory,
		StartedAt:       p.StartedAt,
		CompletedAt:     p.CompletedAt,
		CreatedAt:       p.CreatedAt,
	}
}

// StepRunResponse — ответ с записью выполнения шага.
type StepRunResponse struct {
	ProjectID  uuid.UUID      `json:"project_id"`
	Position   int            `json:"position"`
	Name       string         `json:"name"`
	Executor   string         `json:"executor"`
	Status     string         `json:"status"`
	Result     map[string]any `json:"result,omitempty"`
	ResultRef  string         `json:"result_ref,omitempty"`
	Error      string         `json:"error,omitempty"`
	Feedback   string         `json:"feedback,omitempty"`
	RetryCount int            `json:"retry_count"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// StepRunFromDomain конвертирует domain.StepRun в StepRunResponse.
func StepRunFromDomain(r domain.StepRun) StepRunResponse {
	return StepRunResponse{
		ProjectID:  r.ProjectID,
		Position:   r.Position,
		Name:       r.Name,
		Executor:   r.Executor,
		Status:     string(r.Status),
		Result:     r.Result,
		ResultRef:  r.ResultRef,
		Error:      r.Error,
		Feedback:   r.Feedback,
		RetryCount: r.RetryCount,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

// StatusResponse — снимок состояния проекта с шагами.
type StatusResponse struct {
	Project         ProjectResponse   `json:"project"`
	Steps           []StepRunResponse `json:"steps"`
	CurrentPosition int               `json:"current_position"`
	Active          bool              `json:"active"`
	Stopped         bool              `json:"stopped"`
}

// FeedbackRequest — запрос с текстом фидбека.
type FeedbackRequest struct {
	Text string `json:"text"`
}

// ApproveSceneRequest — запрос на одобрение сцены.
type ApproveSceneRequest struct {
	SceneID    string `json:"scene_id"`
	ImagePath  string `json:"image_path,omitempty"`
	ClipOption string `json:"clip_option,omitempty"`
}
