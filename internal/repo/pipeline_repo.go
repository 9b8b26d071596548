package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Montage/internal/domain"
)

// PipelineRepo — репозиторий pipelines и их узлов.
type PipelineRepo struct {
	pool *pgxpool.Pool
}

// NewPipelineRepo создаёт новый PipelineRepo.
func NewPipelineRepo(pool *pgxpool.Pool) *PipelineRepo {
	return &PipelineRepo{pool: pool}
}

// Create создаёт новый pipeline.
func (r *PipelineRepo) Create(ctx context.Context, p *domain.Pipeline) error {
	query := `
		INSERT INTO pipelines (id, slug, name, version, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		p.ID,
		p.Slug,
		p.Name,
		p.Version,
		p.IsActive,
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert pipeline: %w", err)
	}
	return nil
}

// GetBySlug возвращает pipeline по slug.
func (r *PipelineRepo) GetBySlug(ctx context.Context, slug string) (*domain.Pipeline, error) {
	query := `
		SELECT id, slug, name, version, is_active, created_at
		FROM pipelines
		WHERE slug = $1
	`
	return r.scanPipeline(r.pool.QueryRow(ctx, query, slug))
}

// GetByID возвращает pipeline по ID.
func (r *PipelineRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Pipeline, error) {
	query := `
		SELECT id, slug, name, version, is_active, created_at
		FROM pipelines
		WHERE id = $1
	`
	return r.scanPipeline(r.pool.QueryRow(ctx, query, id))
}

// List возвращает все pipelines.
func (r *PipelineRepo) List(ctx context.Context) ([]domain.Pipeline, error) {
	query := `
		SELECT id, slug, name, version, is_active, created_at
		FROM pipelines
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	defer rows.Close()

	var pipelines []domain.Pipeline
	for rows.Next() {
		p, err := r.scanPipeline(rows)
		if err != nil {
			return nil, err
		}
		pipelines = append(pipelines, *p)
	}
	return pipelines, rows.Err()
}

// BumpVersion инкрементирует версию pipeline (вызывается при изменении структуры).
func (r *PipelineRepo) BumpVersion(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE pipelines SET version = version + 1 WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("bump pipeline version: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateNode добавляет узел в pipeline.
func (r *PipelineRepo) CreateNode(ctx context.Context, n *domain.PipelineNode) error {
	configJSON, err := json.Marshal(n.Config)
	if err != nil {
		return fmt.Errorf("marshal node config: %w", err)
	}

	query := `
		INSERT INTO pipeline_nodes (id, pipeline_id, position, step_slug, is_checkpoint, is_active, config, timeout_sec)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		n.ID,
		n.PipelineID,
		n.Position,
		n.StepSlug,
		n.IsCheckpoint,
		n.IsActive,
		configJSON,
		n.TimeoutSec,
	)
	if err != nil {
		return fmt.Errorf("insert pipeline node: %w", err)
	}
	return nil
}

// ListNodes возвращает узлы pipeline по возрастанию позиции,
// с подгруженными определениями шагов из каталога.
func (r *PipelineRepo) ListNodes(ctx context.Context, pipelineID uuid.UUID) ([]domain.PipelineNode, error) {
	query := `
		SELECT n.id, n.pipeline_id, n.position, n.step_slug, n.is_checkpoint, n.is_active,
		       n.config, n.timeout_sec,
		       d.slug, d.name, d.category, d.executor, d.description, d.inputs, d.outputs, d.default_config
		FROM pipeline_nodes n
		JOIN step_definitions d ON d.slug = n.step_slug
		WHERE n.pipeline_id = $1
		ORDER BY n.position ASC
	`
	rows, err := r.pool.Query(ctx, query, pipelineID)
	if err != nil {
		return nil, fmt.Errorf("list pipeline nodes: %w", err)
	}
	defer rows.Close()

	var nodes []domain.PipelineNode
	for rows.Next() {
		node, err := r.scanNodeWithDefinition(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}
	return nodes, rows.Err()
}

// --- Helpers ---

// scanPipeline сканирует одну строку в Pipeline.
func (r *PipelineRepo) scanPipeline(row pgx.Row) (*domain.Pipeline, error) {
	var p domain.Pipeline
	err := row.Scan(
		&p.ID,
		&p.Slug,
		&p.Name,
		&p.Version,
		&p.IsActive,
		&p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan pipeline: %w", err)
	}
	return &p, nil
}

// scanNodeWithDefinition сканирует строку JOIN-а узла с его определением.
func (r *PipelineRepo) scanNodeWithDefinition(rows pgx.Rows) (*domain.PipelineNode, error) {
	var node domain.PipelineNode
	var def domain.StepDefinition
	var nodeConfigJSON []byte
	var description *string
	var inputsJSON, outputsJSON, defConfigJSON []byte

	err := rows.Scan(
		&node.ID,
		&node.PipelineID,
		&node.Position,
		&node.StepSlug,
		&node.IsCheckpoint,
		&node.IsActive,
		&nodeConfigJSON,
		&node.TimeoutSec,
		&def.Slug,
		&def.Name,
		&def.Category,
		&def.Executor,
		&description,
		&inputsJSON,
		&outputsJSON,
		&defConfigJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("scan pipeline node: %w", err)
	}

	if len(nodeConfigJSON) > 0 {
		if err := json.Unmarshal(nodeConfigJSON, &node.Config); err != nil {
			return nil, fmt.Errorf("unmarshal node config: %w", err)
		}
	}

	if description != nil {
		def.Description = *description
	}
	def.Inputs, err = domain.ParseInputSchema(inputsJSON)
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", def.Slug, err)
	}
	def.Outputs, err = domain.ParseOutputSchema(outputsJSON)
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", def.Slug, err)
	}
	if len(defConfigJSON) > 0 {
		if err := json.Unmarshal(defConfigJSON, &def.DefaultConfig); err != nil {
			return nil, fmt.Errorf("step %q: unmarshal default config: %w", def.Slug, err)
		}
	}

	node.Definition = &def
	return &node, nil
}
