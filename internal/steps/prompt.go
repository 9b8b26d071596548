package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	// ExecutorPrompt — имя исполнителя генерации текста.
	ExecutorPrompt = "prompt"

	defaultPromptTimeout = 120 * time.Second
	maxCompletionBody    = 10 * 1024 * 1024 // 10 MB
)

// Ключи конфигурации prompt шага.
const (
	configPromptTemplate = "prompt_template"
	configSystemPrompt   = "system_prompt"
	configModel          = "model"
	configTemperature    = "temperature"
	configMaxTokens      = "max_tokens"
	configOutputKey      = "output_key"
)

// PromptExecutor — генерация текста через chat-completions API.
//
// Шаблон промпта подставляет входы шага плейсхолдерами {{key}}.
// Фидбек оператора, если он есть, добавляется отдельной инструкцией:
// так повторный запуск после feedback даёт исправленный результат.
//
// Конфигурация:
//
//	{
//	    "prompt_template": "Write a video script based on: {{transcript}}",
//	    "system_prompt": "You are a documentary script writer.",
//	    "model": "gpt-4o",
//	    "temperature": 0.7,
//	    "max_tokens": 4000,
//	    "output_key": "script"
//	}
//
// Output: {"<output_key>": "<generated text>"}
type PromptExecutor struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewPromptExecutor создаёт PromptExecutor с настройками из окружения
// (LLM_API_URL, LLM_API_KEY).
func NewPromptExecutor() *PromptExecutor {
	baseURL := os.Getenv("LLM_API_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &PromptExecutor{
		client:  &http.Client{Timeout: defaultPromptTimeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  os.Getenv("LLM_API_KEY"),
	}
}

// Name возвращает имя исполнителя.
func (e *PromptExecutor) Name() string {
	return ExecutorPrompt
}

// Execute выполняет генерацию текста.
func (e *PromptExecutor) Execute(ctx context.Context, req *Request) (*Response, error) {
	template := GetConfigString(req.Config, configPromptTemplate)
	if template == "" {
		return nil, fmt.Errorf("%w: %s: prompt_template is required", ErrInvalidConfig, ExecutorPrompt)
	}

	outputKey := GetConfigString(req.Config, configOutputKey)
	if outputKey == "" {
		return nil, fmt.Errorf("%w: %s: output_key is required", ErrInvalidConfig, ExecutorPrompt)
	}

	prompt := renderTemplate(template, req.Inputs)
	if req.Feedback != "" {
		prompt += "\n\nRevision notes from the reviewer, apply them:\n" + req.Feedback
	}

	text, err := e.complete(ctx, req, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
		}
		return nil, err
	}

	return NewResponse(map[string]any{outputKey: text}), nil
}

// complete выполняет один запрос к chat-completions API.
func (e *PromptExecutor) complete(ctx context.Context, req *Request, prompt string) (string, error) {
	model := GetConfigString(req.Config, configModel)
	if model == "" {
		model = "gpt-4o"
	}

	messages := []map[string]string{}
	if system := GetConfigString(req.Config, configSystemPrompt); system != "" {
		messages = append(messages, map[string]string{"role": "system", "content": system})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt})

	payload := map[string]any{
		"model":    model,
		"messages": messages,
	}
	if temp := GetConfigFloat(req.Config, configTemperature); temp > 0 {
		payload["temperature"] = temp
	}
	if maxTokens := GetConfigInt(req.Config, configMaxTokens); maxTokens > 0 {
		payload["max_tokens"] = maxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxCompletionBody))
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion API returned %d: %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion API returned no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}

// renderTemplate подставляет значения входов вместо {{key}}.
func renderTemplate(template string, inputs map[string]any) string {
	result := template
	for key, value := range inputs {
		placeholder := "{{" + key + "}}"
		if !strings.Contains(result, placeholder) {
			continue
		}
		result = strings.ReplaceAll(result, placeholder, stringify(value))
	}
	return result
}

// stringify приводит значение входа к строке для подстановки.
func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
