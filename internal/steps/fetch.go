package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// ExecutorFetch — имя исполнителя загрузки исходного материала.
	ExecutorFetch = "fetch"

	defaultFetchTimeout = 60 * time.Second
	maxFetchBody        = 25 * 1024 * 1024 // 25 MB
)

// Ключи конфигурации fetch шага.
const (
	configFetchURL       = "url"
	configFetchURLInput  = "url_input"
	configFetchOutputKey = "output_key"
	configFetchHeaders   = "headers"
)

// FetchExecutor — загрузка исходного материала по HTTP.
//
// URL берётся из конфигурации ("url") или из входа шага ("url_input"
// указывает, какой input key содержит URL). Типичное применение —
// первый шаг пайплайна: забрать транскрипт, статью или описание,
// от которого отталкивается остальное производство.
//
// Output: {"<output_key>": <parsed JSON or string>, "status_code": <int>}
type FetchExecutor struct {
	client *http.Client
}

// NewFetchExecutor создаёт FetchExecutor.
func NewFetchExecutor() *FetchExecutor {
	return &FetchExecutor{
		client: &http.Client{Timeout: defaultFetchTimeout},
	}
}

// Name возвращает имя исполнителя.
func (e *FetchExecutor) Name() string {
	return ExecutorFetch
}

// Execute выполняет загрузку.
func (e *FetchExecutor) Execute(ctx context.Context, req *Request) (*Response, error) {
	outputKey := GetConfigString(req.Config, configFetchOutputKey)
	if outputKey == "" {
		return nil, fmt.Errorf("%w: %s: output_key is required", ErrInvalidConfig, ExecutorFetch)
	}

	url := GetConfigString(req.Config, configFetchURL)
	if url == "" {
		if inputKey := GetConfigString(req.Config, configFetchURLInput); inputKey != "" {
			url = InputString(req.Inputs, inputKey)
		}
	}
	if url == "" {
		return nil, fmt.Errorf("%w: %s: no url in config or inputs", ErrInvalidConfig, ExecutorFetch)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	if headers, ok := req.Config[configFetchHeaders].(map[string]any); ok {
		for key, value := range headers {
			if s, ok := value.(string); ok {
				httpReq.Header.Set(key, s)
			}
		}
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("fetch request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return nil, fmt.Errorf("read fetch response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch returned %d for %s", resp.StatusCode, url)
	}

	var content any
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(bodyBytes, &content); err != nil {
			content = string(bodyBytes)
		}
	} else {
		content = string(bodyBytes)
	}

	return NewResponse(map[string]any{
		outputKey:     content,
		"status_code": resp.StatusCode,
	}), nil
}
