package wiring

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shaiso/Montage/internal/domain"
)

// ConnectionStore — хранилище соединений pipeline.
type ConnectionStore interface {
	// DeleteByPipeline удаляет все соединения pipeline.
	DeleteByPipeline(ctx context.Context, pipelineID uuid.UUID) (int, error)

	// Create сохраняет одно соединение.
	Create(ctx context.Context, conn *domain.Connection) error
}

// CommitOutcome — результат вставки одного соединения.
//
// Commit не атомарный: упавшая вставка логируется и не прерывает
// остальные. Вызывающий видит пофайловый результат и сам решает,
// что делать с частично проведённым pipeline.
type CommitOutcome struct {
	Connection domain.Connection
	Err        error
}

// Engine выполняет полный цикл проводки: план + замена в хранилище.
type Engine struct {
	store  ConnectionStore
	logger *slog.Logger
}

// NewEngine создаёт Engine.
func NewEngine(store ConnectionStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger}
}

// Rewire пересчитывает и заменяет соединения pipeline.
//
// Проводка идемпотентна и неинкрементальна: существующий набор
// удаляется целиком, затем вставляется вычисленный. Повторный запуск
// на неизменённом списке узлов даёт идентичный набор рёбер.
func (e *Engine) Rewire(ctx context.Context, pipelineID uuid.UUID, nodes []domain.PipelineNode) (*Plan, []CommitOutcome, error) {
	plan, err := BuildPlan(pipelineID, nodes)
	if err != nil {
		return nil, nil, fmt.Errorf("build wiring plan: %w", err)
	}

	for _, w := range plan.Warnings {
		e.logger.Warn("unresolved required input",
			"pipeline_id", pipelineID,
			"position", w.Position,
			"step", w.StepSlug,
			"input", w.InputKey,
		)
	}

	deleted, err := e.store.DeleteByPipeline(ctx, pipelineID)
	if err != nil {
		return plan, nil, fmt.Errorf("delete existing connections: %w", err)
	}

	outcomes := make([]CommitOutcome, 0, len(plan.Connections))
	created := 0

	for _, conn := range plan.Connections {
		err := e.store.Create(ctx, &conn)
		outcomes = append(outcomes, CommitOutcome{Connection: conn, Err: err})

		if err != nil {
			// Best-effort: одна упавшая вставка не отменяет остальные.
			e.logger.Error("failed to persist connection",
				"pipeline_id", pipelineID,
				"output_key", conn.OutputKey,
				"error", err,
			)
			continue
		}
		created++
	}

	e.logger.Info("pipeline rewired",
		"pipeline_id", pipelineID,
		"deleted", deleted,
		"created", created,
		"warnings", len(plan.Warnings),
	)

	return plan, outcomes, nil
}
