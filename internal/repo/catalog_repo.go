package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Montage/internal/domain"
)

// CatalogRepo — репозиторий каталога определений шагов.
//
// Схемы входов/выходов хранятся как JSONB и валидируются при чтении:
// невалидная схема в каталоге — ошибка загрузки, не пустой список.
type CatalogRepo struct {
	pool *pgxpool.Pool
}

// NewCatalogRepo создаёт новый CatalogRepo.
func NewCatalogRepo(pool *pgxpool.Pool) *CatalogRepo {
	return &CatalogRepo{pool: pool}
}

// Create добавляет определение шага в каталог.
func (r *CatalogRepo) Create(ctx context.Context, def *domain.StepDefinition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("validate step definition: %w", err)
	}

	inputsJSON, err := json.Marshal(def.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}
	outputsJSON, err := json.Marshal(def.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}
	configJSON, err := json.Marshal(def.DefaultConfig)
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}

	query := `
		INSERT INTO step_definitions (slug, name, category, executor, description, inputs, outputs, default_config)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		def.Slug,
		def.Name,
		def.Category,
		def.Executor,
		nullString(def.Description),
		inputsJSON,
		outputsJSON,
		configJSON,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert step definition: %w", err)
	}
	return nil
}

// GetBySlug возвращает определение шага по slug.
func (r *CatalogRepo) GetBySlug(ctx context.Context, slug string) (*domain.StepDefinition, error) {
	query := `
		SELECT slug, name, category, executor, description, inputs, outputs, default_config
		FROM step_definitions
		WHERE slug = $1
	`
	return r.scanDefinition(r.pool.QueryRow(ctx, query, slug))
}

// List возвращает все определения шагов каталога.
func (r *CatalogRepo) List(ctx context.Context) ([]domain.StepDefinition, error) {
	query := `
		SELECT slug, name, category, executor, description, inputs, outputs, default_config
		FROM step_definitions
		ORDER BY category, slug
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list step definitions: %w", err)
	}
	defer rows.Close()

	var defs []domain.StepDefinition
	for rows.Next() {
		def, err := r.scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, *def)
	}
	return defs, rows.Err()
}

// scanDefinition сканирует строку в StepDefinition и валидирует схемы.
func (r *CatalogRepo) scanDefinition(row pgx.Row) (*domain.StepDefinition, error) {
	var def domain.StepDefinition
	var description *string
	var inputsJSON, outputsJSON, configJSON []byte

	err := row.Scan(
		&def.Slug,
		&def.Name,
		&def.Category,
		&def.Executor,
		&description,
		&inputsJSON,
		&outputsJSON,
		&configJSON,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan step definition: %w", err)
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

	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &def.DefaultConfig); err != nil {
			return nil, fmt.Errorf("step %q: unmarshal default config: %w", def.Slug, err)
		}
	}

	return &def, nil
}
