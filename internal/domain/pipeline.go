package domain

import (
	"time"

	"github.com/google/uuid"
)

// Pipeline — именованный упорядоченный шаблон шагов.
//
// Pipeline — это "рецепт" производства: какие шаги из каталога выполняются
// и в каком порядке. Один pipeline разделяется многими проектами.
type Pipeline struct {
	// ID — уникальный идентификатор pipeline.
	ID uuid.UUID `json:"id"`

	// Slug — уникальное имя pipeline (например, "documentary", "shorts").
	// Проект ссылается на pipeline по slug.
	Slug string `json:"slug"`

	// Name — человекочитаемое имя.
	Name string `json:"name"`

	// Version — номер версии, инкрементируется при изменении структуры.
	Version int `json:"version"`

	// IsActive — неактивные pipelines не используются для новых проектов.
	IsActive bool `json:"is_active"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`
}

// PipelineNode — размещение шага каталога внутри pipeline.
//
// Узел принадлежит ровно одному pipeline и никогда не разделяется.
// Position задаёт тотальный порядок выполнения: уникален в рамках
// pipeline, и orchestrator выполняет узлы строго по возрастанию position.
type PipelineNode struct {
	// ID — уникальный идентификатор узла.
	ID uuid.UUID `json:"id"`

	// PipelineID — pipeline, которому принадлежит узел.
	PipelineID uuid.UUID `json:"pipeline_id"`

	// Position — позиция в пайплайне. Уникальна в рамках pipeline.
	Position int `json:"position"`

	// StepSlug — ссылка на StepDefinition в каталоге.
	StepSlug string `json:"step_slug"`

	// IsCheckpoint — узел требует одобрения человека перед продолжением.
	IsCheckpoint bool `json:"is_checkpoint"`

	// IsActive — неактивные узлы автоматически пропускаются при запуске.
	IsActive bool `json:"is_active"`

	// Config — переопределения конфигурации для этого размещения.
	// Мержится поверх StepDefinition.DefaultConfig.
	Config map[string]any `json:"config,omitempty"`

	// TimeoutSec — таймаут выполнения узла в секундах (0 = по умолчанию).
	TimeoutSec int `json:"timeout_sec,omitempty"`

	// Definition — определение шага, подгружается из каталога при чтении.
	// Не хранится в строке узла.
	Definition *StepDefinition `json:"definition,omitempty"`
}

// Timeout возвращает таймаут узла или defaultTimeout, если не задан.
func (n *PipelineNode) Timeout(defaultTimeout time.Duration) time.Duration {
	if n.TimeoutSec <= 0 {
		return defaultTimeout
	}
	return time.Duration(n.TimeoutSec) * time.Second
}

// MergedConfig возвращает конфигурацию узла: default config определения
// с наложенными переопределениями узла.
func (n *PipelineNode) MergedConfig() map[string]any {
	merged := make(map[string]any)
	if n.Definition != nil {
		for k, v := range n.Definition.DefaultConfig {
			merged[k] = v
		}
	}
	for k, v := range n.Config {
		merged[k] = v
	}
	return merged
}

// Connection — направленное ребро между узлами pipeline.
//
// Утверждает, что output sourceNode с ключом OutputKey питает вход
// TargetInputKey узла targetNode. Инварианты (поддерживаются wiring engine):
//   - position(source) < position(target) — рёбра только вперёд;
//   - на пару (target, targetInputKey) существует максимум одно ребро.
type Connection struct {
	// ID — уникальный идентификатор соединения.
	ID uuid.UUID `json:"id"`

	// PipelineID — pipeline, которому принадлежит соединение.
	PipelineID uuid.UUID `json:"pipeline_id"`

	// SourceNodeID — узел-производитель.
	SourceNodeID uuid.UUID `json:"source_node_id"`

	// OutputKey — ключ выхода узла-производителя.
	OutputKey string `json:"output_key"`

	// TargetNodeID — узел-потребитель.
	TargetNodeID uuid.UUID `json:"target_node_id"`

	// TargetInputKey — ключ входа узла-потребителя.
	TargetInputKey string `json:"target_input_key"`
}
