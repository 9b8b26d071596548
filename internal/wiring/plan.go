package wiring

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shaiso/Montage/internal/domain"
)

// Plan — результат построения проводки для одного pipeline.
type Plan struct {
	// Connections — вычисленный набор соединений.
	Connections []domain.Connection

	// Warnings — обязательные входы, для которых не нашлось
	// предшествующего производителя. Это предупреждение этапа
	// авторинга, не ошибка: шаг сам решит на этапе выполнения,
	// может ли он работать без этого входа.
	Warnings []Warning
}

// Warning — непроведённый обязательный вход.
type Warning struct {
	// NodeID — узел с непроведённым входом.
	NodeID uuid.UUID

	// Position — позиция узла.
	Position int

	// StepSlug — шаг узла.
	StepSlug string

	// InputKey — ключ входа, для которого нет производителя.
	InputKey string
}

func (w Warning) String() string {
	return fmt.Sprintf("node %d (%s): no upstream producer for required input %q",
		w.Position, w.StepSlug, w.InputKey)
}

// BuildPlan вычисляет набор соединений для pipeline.
//
// Алгоритм:
//  1. Индекс производителей: output key → узлы, которые его производят.
//  2. Для каждого узла и каждого его wirable входа — выбрать среди
//     производителей ключа с меньшей позицией того, чья позиция
//     наибольшая (ближайший предшествующий). Позиции уникальны,
//     поэтому ничья невозможна.
//  3. Дедупликация по (source, target, key): несколько входов с
//     одинаковым ключом схлопываются в одно ребро.
//
// Входы с source="project" не участвуют: их данные приходят не из шагов.
// Узлы без предшествующего производителя для required входа попадают
// в Warnings и не прерывают построение остальных соединений.
func BuildPlan(pipelineID uuid.UUID, nodes []domain.PipelineNode) (*Plan, error) {
	if len(nodes) == 0 {
		return nil, ErrNoNodes
	}

	seen := make(map[int]bool, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		if n.Definition == nil {
			return nil, fmt.Errorf("%w: node %d (%s)", ErrMissingDefinition, n.Position, n.StepSlug)
		}
		if seen[n.Position] {
			return nil, fmt.Errorf("%w: %d", ErrDuplicatePosition, n.Position)
		}
		seen[n.Position] = true
	}

	// Индекс производителей: output key → индексы узлов.
	producers := make(map[string][]int)
	for i := range nodes {
		for _, out := range nodes[i].Definition.Outputs {
			producers[out.Key] = append(producers[out.Key], i)
		}
	}

	plan := &Plan{}
	emitted := make(map[string]bool) // "sourceID|targetID|key"

	for i := range nodes {
		target := &nodes[i]

		for _, input := range target.Definition.Inputs {
			if !input.Wirable() {
				continue
			}

			// Ближайший предшествующий производитель ключа.
			best := -1
			for _, pi := range producers[input.Key] {
				p := &nodes[pi]
				if p.ID == target.ID || p.Position >= target.Position {
					continue
				}
				if best < 0 || p.Position > nodes[best].Position {
					best = pi
				}
			}

			if best < 0 {
				if input.Required {
					plan.Warnings = append(plan.Warnings, Warning{
						NodeID:   target.ID,
						Position: target.Position,
						StepSlug: target.StepSlug,
						InputKey: input.Key,
					})
				}
				continue
			}

			source := &nodes[best]
			dedupKey := source.ID.String() + "|" + target.ID.String() + "|" + input.Key
			if emitted[dedupKey] {
				continue
			}
			emitted[dedupKey] = true

			plan.Connections = append(plan.Connections, domain.Connection{
				ID:             uuid.New(),
				PipelineID:     pipelineID,
				SourceNodeID:   source.ID,
				OutputKey:      input.Key,
				TargetNodeID:   target.ID,
				TargetInputKey: input.Key,
			})
		}
	}

	// Стабильный порядок для идемпотентности и читаемых диффов.
	positionOf := make(map[uuid.UUID]int, len(nodes))
	for i := range nodes {
		positionOf[nodes[i].ID] = nodes[i].Position
	}
	sort.Slice(plan.Connections, func(a, b int) bool {
		ca, cb := plan.Connections[a], plan.Connections[b]
		if positionOf[ca.TargetNodeID] != positionOf[cb.TargetNodeID] {
			return positionOf[ca.TargetNodeID] < positionOf[cb.TargetNodeID]
		}
		if positionOf[ca.SourceNodeID] != positionOf[cb.SourceNodeID] {
			return positionOf[ca.SourceNodeID] < positionOf[cb.SourceNodeID]
		}
		return ca.OutputKey < cb.OutputKey
	})

	return plan, nil
}
