package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Montage/internal/domain"
)

// ConnectionRepo — репозиторий соединений между узлами pipeline.
type ConnectionRepo struct {
	pool *pgxpool.Pool
}

// NewConnectionRepo создаёт новый ConnectionRepo.
func NewConnectionRepo(pool *pgxpool.Pool) *ConnectionRepo {
	return &ConnectionRepo{pool: pool}
}

// Create сохраняет одно соединение.
func (r *ConnectionRepo) Create(ctx context.Context, conn *domain.Connection) error {
	query := `
		INSERT INTO connections (id, pipeline_id, source_node_id, output_key, target_node_id, target_input_key)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		conn.ID,
		conn.PipelineID,
		conn.SourceNodeID,
		conn.OutputKey,
		conn.TargetNodeID,
		conn.TargetInputKey,
	)
	if err != nil {
		return fmt.Errorf("insert connection: %w", err)
	}
	return nil
}

// DeleteByPipeline удаляет все соединения pipeline.
// Возвращает число удалённых строк.
func (r *ConnectionRepo) DeleteByPipeline(ctx context.Context, pipelineID uuid.UUID) (int, error) {
	query := `DELETE FROM connections WHERE pipeline_id = $1`
	result, err := r.pool.Exec(ctx, query, pipelineID)
	if err != nil {
		return 0, fmt.Errorf("delete connections: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// ListByPipeline возвращает соединения pipeline.
func (r *ConnectionRepo) ListByPipeline(ctx context.Context, pipelineID uuid.UUID) ([]domain.Connection, error) {
	query := `
		SELECT c.id, c.pipeline_id, c.source_node_id, c.output_key, c.target_node_id, c.target_input_key
		FROM connections c
		JOIN pipeline_nodes t ON t.id = c.target_node_id
		WHERE c.pipeline_id = $1
		ORDER BY t.position ASC, c.target_input_key ASC
	`
	rows, err := r.pool.Query(ctx, query, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	var conns []domain.Connection
	for rows.Next() {
		var c domain.Connection
		if err := rows.Scan(
			&c.ID,
			&c.PipelineID,
			&c.SourceNodeID,
			&c.OutputKey,
			&c.TargetNodeID,
			&c.TargetInputKey,
		); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

// ListIncoming возвращает входящие соединения одного узла.
func (r *ConnectionRepo) ListIncoming(ctx context.Context, targetNodeID uuid.UUID) ([]domain.Connection, error) {
	query := `
		SELECT id, pipeline_id, source_node_id, output_key, target_node_id, target_input_key
		FROM connections
		WHERE target_node_id = $1
		ORDER BY target_input_key ASC
	`
	rows, err := r.pool.Query(ctx, query, targetNodeID)
	if err != nil {
		return nil, fmt.Errorf("list incoming connections: %w", err)
	}
	defer rows.Close()

	var conns []domain.Connection
	for rows.Next() {
		var c domain.Connection
		if err := rows.Scan(
			&c.ID,
			&c.PipelineID,
			&c.SourceNodeID,
			&c.OutputKey,
			&c.TargetNodeID,
			&c.TargetInputKey,
		); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}
