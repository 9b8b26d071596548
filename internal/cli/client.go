package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// StepDefinitionResponse — определение шага из каталога.
type StepDefinitionResponse struct {
	Slug        string           `json:"slug"`
	Name        string           `json:"name"`
	Category    string           `json:"category"`
	Executor    string           `json:"executor"`
	Description string           `json:"description,omitempty"`
	Inputs      []map[string]any `json:"inputs,omitempty"`
	Outputs     []map[string]any `json:"outputs,omitempty"`
}

// NodeResponse — узел pipeline из API.
type NodeResponse struct {
	ID           string `json:"id"`
	Position     int    `json:"position"`
	StepSlug     string `json:"step_slug"`
	IsCheckpoint bool   `json:"is_checkpoint"`
	IsActive     bool   `json:"is_active"`
}

// PipelineResponse — pipeline из API.
type PipelineResponse struct {
	ID        string         `json:"id"`
	Slug      string         `json:"slug"`
	Name      string         `json:"name"`
	Version   int            `json:"version"`
	IsActive  bool           `json:"is_active"`
	Nodes     []NodeResponse `json:"nodes,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// ConnectionResponse — соединение из API.
type ConnectionResponse struct {
	ID             string `json:"id"`
	SourceNodeID   string `json:"source_node_id"`
	OutputKey      string `json:"output_key"`
	TargetNodeID   string `json:"target_node_id"`
	TargetInputKey string `json:"target_input_key"`
}

// WireResponse — результат автопроводки из API.
type WireResponse struct {
	Connections []ConnectionResponse `json:"connections"`
	Warnings    []string             `json:"warnings,omitempty"`
	Failed      int                  `json:"failed,omitempty"`
}

// ProjectResponse — проект из API.
type ProjectResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	PipelineSlug string `json:"pipeline_slug"`
	Status       string `json:"status"`
	Paused       bool   `json:"paused"`
	Priority     int    `json:"priority"`
	StartedAt    string `json:"started_at,omitempty"`
	CompletedAt  string `json:"completed_at,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// StepRunResponse — запись выполнения шага из API.
type StepRunResponse struct {
	Position   int    `json:"position"`
	Name       string `json:"name"`
	Executor   string `json:"executor"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	Feedback   string `json:"feedback,omitempty"`
	RetryCount int    `json:"retry_count"`
	StartedAt  string `json:"started_at,omitempty"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// StatusResponse — снимок состояния проекта из API.
type StatusResponse struct {
	Project         ProjectResponse   `json:"project"`
	Steps           []StepRunResponse `json:"steps"`
	CurrentPosition int               `json:"current_position"`
	Active          bool              `json:"active"`
}

// LogEntryResponse — запись журнала из API.
type LogEntryResponse struct {
	Position  int    `json:"position"`
	Level     string `json:"level"`
	Source    string `json:"source"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// --- Request types ---

// CreateProjectRequest — создание проекта.
type CreateProjectRequest struct {
	Name         string `json:"name"`
	PipelineSlug string `json:"pipeline_slug"`
	Priority     int    `json:"priority,omitempty"`
}

// FeedbackRequest — фидбек к шагу.
type FeedbackRequest struct {
	Text string `json:"text"`
}

// ApproveSceneRequest — одобрение сцены.
type ApproveSceneRequest struct {
	SceneID    string `json:"scene_id"`
	ImagePath  string `json:"image_path,omitempty"`
	ClipOption string `json:"clip_option,omitempty"`
}

// ListProjectsOpts — параметры фильтрации проектов.
type ListProjectsOpts struct {
	Status   string
	Pipeline string
	Limit    int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Montage API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Catalog ---

// ListCatalog возвращает все определения шагов.
func (c *Client) ListCatalog() ([]StepDefinitionResponse, error) {
	var defs []StepDefinitionResponse
	err := c.list("/api/v1/catalog", nil, &defs)
	return defs, err
}

// --- Pipelines ---

// ListPipelines возвращает все pipelines.
func (c *Client) ListPipelines() ([]PipelineResponse, error) {
	var pipelines []PipelineResponse
	err := c.list("/api/v1/pipelines", nil, &pipelines)
	return pipelines, err
}

// GetPipeline возвращает pipeline с узлами.
func (c *Client) GetPipeline(slug string) (*PipelineResponse, error) {
	var pipeline PipelineResponse
	err := c.get("/api/v1/pipelines/"+slug, &pipeline)
	return &pipeline, err
}

// ListConnections возвращает проводку pipeline.
func (c *Client) ListConnections(slug string) ([]ConnectionResponse, error) {
	var conns []ConnectionResponse
	err := c.list("/api/v1/pipelines/"+slug+"/connections", nil, &conns)
	return conns, err
}

// WirePipeline пересчитывает соединения pipeline.
func (c *Client) WirePipeline(slug string) (*WireResponse, error) {
	var wire WireResponse
	err := c.post("/api/v1/pipelines/"+slug+"/wire", nil, &wire)
	return &wire, err
}

// --- Projects ---

// CreateProject создаёт новый проект.
func (c *Client) CreateProject(req CreateProjectRequest) (*ProjectResponse, error) {
	var project ProjectResponse
	err := c.post("/api/v1/projects", req, &project)
	return &project, err
}

// ListProjects возвращает проекты с фильтрацией.
func (c *Client) ListProjects(opts ListProjectsOpts) ([]ProjectResponse, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Pipeline != "" {
		params.Set("pipeline", opts.Pipeline)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	var projects []ProjectResponse
	err := c.list("/api/v1/projects", params, &projects)
	return projects, err
}

// GetProject возвращает проект по ID.
func (c *Client) GetProject(id string) (*ProjectResponse, error) {
	var project ProjectResponse
	err := c.get("/api/v1/projects/"+id, &project)
	return &project, err
}

// StartProject запускает проект.
func (c *Client) StartProject(id string) (*ProjectResponse, error) {
	var project ProjectResponse
	err := c.post("/api/v1/projects/"+id+"/start", nil, &project)
	return &project, err
}

// PauseProject приостанавливает проект.
func (c *Client) PauseProject(id string) error {
	return c.post("/api/v1/projects/"+id+"/pause", nil, nil)
}

// ResumeProject снимает паузу.
func (c *Client) ResumeProject(id string) error {
	return c.post("/api/v1/projects/"+id+"/resume", nil, nil)
}

// StopProject останавливает проект.
func (c *Client) StopProject(id string) error {
	return c.post("/api/v1/projects/"+id+"/stop", nil, nil)
}

// GetStatus возвращает снимок состояния проекта.
func (c *Client) GetStatus(id string) (*StatusResponse, error) {
	var status StatusResponse
	err := c.get("/api/v1/projects/"+id+"/status", &status)
	return &status, err
}

// ListLogs возвращает журнал проекта.
func (c *Client) ListLogs(id string, limit int) ([]LogEntryResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	var entries []LogEntryResponse
	err := c.list("/api/v1/projects/"+id+"/logs", params, &entries)
	return entries, err
}

// ApproveStep одобряет шаг на чекпоинте.
func (c *Client) ApproveStep(id string, position int) error {
	return c.post(stepPath(id, position, "approve"), nil, nil)
}

// SubmitFeedback прикладывает фидбек к шагу.
func (c *Client) SubmitFeedback(id string, position int, text string) error {
	return c.post(stepPath(id, position, "feedback"), FeedbackRequest{Text: text}, nil)
}

// SkipStep пропускает шаг.
func (c *Client) SkipStep(id string, position int) error {
	return c.post(stepPath(id, position, "skip"), nil, nil)
}

// RetryStep перезапускает упавший шаг.
func (c *Client) RetryStep(id string, position int) error {
	return c.post(stepPath(id, position, "retry"), nil, nil)
}

// ApproveScene одобряет сцену внутри шага в REVIEW.
func (c *Client) ApproveScene(id string, req ApproveSceneRequest) error {
	return c.post("/api/v1/projects/"+id+"/scenes/approve", req, nil)
}

func stepPath(id string, position int, op string) string {
	return fmt.Sprintf("/api/v1/projects/%s/steps/%d/%s", id, position, op)
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
