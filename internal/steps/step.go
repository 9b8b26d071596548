package steps

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Ошибки исполнителей.
var (
	// ErrExecutorNotFound — исполнитель не найден в реестре.
	ErrExecutorNotFound = errors.New("executor not found")

	// ErrInvalidConfig — невалидная конфигурация шага.
	ErrInvalidConfig = errors.New("invalid step config")

	// ErrMissingInput — обязательный вход не собран.
	ErrMissingInput = errors.New("missing required input")

	// ErrStepCancelled — выполнение шага отменено.
	ErrStepCancelled = errors.New("step execution cancelled")
)

// Executor — интерфейс исполнителя шага.
//
// Каждый исполнитель (prompt, fetch, manual) реализует этот интерфейс.
type Executor interface {
	// Name возвращает имя исполнителя, по которому его находят в реестре.
	Name() string

	// Execute выполняет шаг и возвращает результат.
	// Исполнитель должен проверять ctx.Done() для graceful shutdown.
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// Request — входные данные для выполнения шага.
type Request struct {
	// ProjectID — проект, в рамках которого выполняется шаг.
	ProjectID uuid.UUID

	// ProjectName — имя проекта (доступно исполнителю как контекст).
	ProjectName string

	// Position — позиция шага в пайплайне.
	Position int

	// StepSlug — slug определения шага.
	StepSlug string

	// Config — слитая конфигурация узла (defaults + overrides).
	Config map[string]any

	// Inputs — входы, собранные по соединениям pipeline.
	// Ключ — input key из декларации шага.
	Inputs map[string]any

	// Feedback — фидбек оператора для повторного выполнения (если был).
	Feedback string

	// Timeout — таймаут выполнения. Если 0, используется по умолчанию.
	Timeout time.Duration
}

// Response — результат выполнения шага.
type Response struct {
	// Output — выходные данные шага по ключам из декларации.
	Output map[string]any
}

// NewResponse создаёт Response с выходами.
func NewResponse(output map[string]any) *Response {
	if output == nil {
		output = make(map[string]any)
	}
	return &Response{Output: output}
}

// GetConfigString извлекает строковое значение из конфига.
func GetConfigString(config map[string]any, key string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetConfigInt извлекает числовое значение из конфига.
func GetConfigInt(config map[string]any, key string) int {
	if v, ok := config[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

// GetConfigFloat извлекает число с плавающей точкой из конфига.
func GetConfigFloat(config map[string]any, key string) float64 {
	if v, ok := config[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return 0
}

// GetConfigBool извлекает булево значение из конфига.
func GetConfigBool(config map[string]any, key string, defaultVal bool) bool {
	if v, ok := config[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// InputString извлекает строковый вход. Не-строковые значения
// сериализуются не здесь: исполнитель сам решает, как их использовать.
func InputString(inputs map[string]any, key string) string {
	if v, ok := inputs[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
