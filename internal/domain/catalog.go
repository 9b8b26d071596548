package domain

import (
	"encoding/json"
	"fmt"
)

// Источники входных данных шага.
const (
	// InputSourceStep — вход приходит из output'а другого шага (участвует в wiring).
	InputSourceStep = "step"

	// InputSourceProject — вход приходит из данных проекта (формы, настроек).
	// Такие входы исключаются из автоматической проводки.
	InputSourceProject = "project"
)

// StepDefinition — определение шага в каталоге.
//
// Каталог — справочник переиспользуемых шагов производства контента
// (research, script, voiceover, scene prompts, render, ...).
// Каждое определение декларирует свою схему входов и выходов:
// именно по этим ключам wiring engine строит соединения.
type StepDefinition struct {
	// Slug — уникальный идентификатор шага (например, "script-writer").
	Slug string `json:"slug"`

	// Name — человекочитаемое имя шага.
	Name string `json:"name"`

	// Category — категория: "research", "script", "audio", "visual", "post".
	Category string `json:"category"`

	// Executor — имя исполнителя в реестре (steps.Registry).
	Executor string `json:"executor"`

	// Description — описание назначения шага.
	Description string `json:"description,omitempty"`

	// Inputs — декларация входов. Порядок сохраняется.
	Inputs []InputDescriptor `json:"inputs"`

	// Outputs — декларация выходов. Порядок сохраняется.
	Outputs []OutputDescriptor `json:"outputs"`

	// DefaultConfig — конфигурация по умолчанию, мержится с overrides узла.
	DefaultConfig map[string]any `json:"default_config,omitempty"`
}

// InputDescriptor — декларация одного входа шага.
type InputDescriptor struct {
	// Key — имя входа (например, "transcript", "script").
	Key string `json:"key"`

	// Required — обязателен ли вход для выполнения шага.
	Required bool `json:"required,omitempty"`

	// Source — источник данных: "step" (по умолчанию) или "project".
	Source string `json:"source,omitempty"`
}

// Wirable возвращает true, если вход участвует в автоматической проводке.
func (d InputDescriptor) Wirable() bool {
	return d.Source != InputSourceProject
}

// OutputDescriptor — декларация одного выхода шага.
type OutputDescriptor struct {
	// Key — имя выхода.
	Key string `json:"key"`
}

// ParseInputSchema парсит JSON схему входов.
//
// Схемы хранятся в БД как JSON текст. Невалидная схема — это ошибка
// загрузки каталога, а не пустой список: молча проглоченная схема
// ломает wiring без какого-либо сигнала.
func ParseInputSchema(raw []byte) ([]InputDescriptor, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var inputs []InputDescriptor
	if err := json.Unmarshal(raw, &inputs); err != nil {
		return nil, fmt.Errorf("parse input schema: %w", err)
	}

	for i, in := range inputs {
		if in.Key == "" {
			return nil, fmt.Errorf("input schema: descriptor %d has empty key", i)
		}
		switch in.Source {
		case "", InputSourceStep, InputSourceProject:
		default:
			return nil, fmt.Errorf("input schema: input %q has unknown source %q", in.Key, in.Source)
		}
	}

	return inputs, nil
}

// ParseOutputSchema парсит JSON схему выходов.
func ParseOutputSchema(raw []byte) ([]OutputDescriptor, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var outputs []OutputDescriptor
	if err := json.Unmarshal(raw, &outputs); err != nil {
		return nil, fmt.Errorf("parse output schema: %w", err)
	}

	for i, out := range outputs {
		if out.Key == "" {
			return nil, fmt.Errorf("output schema: descriptor %d has empty key", i)
		}
	}

	return outputs, nil
}

// Validate проверяет определение шага после загрузки из каталога.
func (d *StepDefinition) Validate() error {
	if d.Slug == "" {
		return fmt.Errorf("step definition has empty slug")
	}
	if d.Executor == "" {
		return fmt.Errorf("step definition %q has empty executor", d.Slug)
	}

	seen := make(map[string]bool, len(d.Inputs))
	for _, in := range d.Inputs {
		if seen[in.Key] {
			return fmt.Errorf("step definition %q: duplicate input key %q", d.Slug, in.Key)
		}
		seen[in.Key] = true
	}

	return nil
}
