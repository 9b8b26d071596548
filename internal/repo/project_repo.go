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

// ProjectRepo — репозиторий проектов.
type ProjectRepo struct {
	pool *pgxpool.Pool
}

// NewProjectRepo создаёт новый ProjectRepo.
func NewProjectRepo(pool *pgxpool.Pool) *ProjectRepo {
	return &ProjectRepo{pool: pool}
}

// Create создаёт новый проект.
func (r *ProjectRepo) Create(ctx context.Context, p *domain.Project) error {
	feedbackJSON, err := json.Marshal(p.FeedbackHistory)
	if err != nil {
		return fmt.Errorf("marshal feedback history: %w", err)
	}

	query := `
		INSERT INTO projects (id, name, pipeline_slug, status, paused, priority, feedback_history, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		p.ID,
		p.Name,
		p.PipelineSlug,
		p.Status,
		p.Paused,
		p.Priority,
		feedbackJSON,
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// GetByID возвращает проект по ID.
func (r *ProjectRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	query := `
		SELECT id, name, pipeline_slug, status, paused, priority, feedback_history,
		       started_at, completed_at, created_at
		FROM projects
		WHERE id = $1
	`
	return r.scanProject(r.pool.QueryRow(ctx, query, id))
}

// List возвращает список проектов с фильтрацией.
func (r *ProjectRepo) List(ctx context.Context, filter ProjectFilter) ([]domain.Project, error) {
	query := `
		SELECT id, name, pipeline_slug, status, paused, priority, feedback_history,
		       started_at, completed_at, created_at
		FROM projects
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR pipeline_slug = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(string(filter.Status)),
		nullString(filter.PipelineSlug),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	return r.collectProjects(rows)
}

// Update обновляет изменяемые поля проекта.
func (r *ProjectRepo) Update(ctx context.Context, p *domain.Project) error {
	feedbackJSON, err := json.Marshal(p.FeedbackHistory)
	if err != nil {
		return fmt.Errorf("marshal feedback history: %w", err)
	}

	query := `
		UPDATE projects
		SET status = $2, paused = $3, priority = $4, feedback_history = $5,
		    started_at = $6, completed_at = $7
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		p.ID,
		p.Status,
		p.Paused,
		p.Priority,
		feedbackJSON,
		p.StartedAt,
		p.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByStatus возвращает проекты в заданном статусе.
func (r *ProjectRepo) ListByStatus(ctx context.Context, status domain.ProjectStatus) ([]domain.Project, error) {
	query := `
		SELECT id, name, pipeline_slug, status, paused, priority, feedback_history,
		       started_at, completed_at, created_at
		FROM projects
		WHERE status = $1
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("list projects by status: %w", err)
	}
	defer rows.Close()

	return r.collectProjects(rows)
}

// NextQueued возвращает следующий проект очереди: наибольший приоритет,
// при равенстве — раньше созданный. ErrNotFound, если очередь пуста.
func (r *ProjectRepo) NextQueued(ctx context.Context) (*domain.Project, error) {
	query := `
		SELECT id, name, pipeline_slug, status, paused, priority, feedback_history,
		       started_at, completed_at, created_at
		FROM projects
		WHERE status = 'QUEUED'
		ORDER BY priority DESC, created_at ASC
		LIMIT 1
	`
	return r.scanProject(r.pool.QueryRow(ctx, query))
}

// CountRunning возвращает число проектов в статусе RUNNING.
func (r *ProjectRepo) CountRunning(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM projects WHERE status = 'RUNNING'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count running projects: %w", err)
	}
	return count, nil
}

// --- Helpers ---

// ProjectFilter — параметры фильтрации проектов.
type ProjectFilter struct {
	Status       domain.ProjectStatus
	PipelineSlug string
	Limit        int
	Offset       int
}

func (r *ProjectRepo) collectProjects(rows pgx.Rows) ([]domain.Project, error) {
	var projects []domain.Project
	for rows.Next() {
		p, err := r.scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// scanProject сканирует одну строку в Project.
func (r *ProjectRepo) scanProject(row pgx.Row) (*domain.Project, error) {
	var p domain.Project
	var feedbackJSON []byte

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.PipelineSlug,
		&p.Status,
		&p.Paused,
		&p.Priority,
		&feedbackJSON,
		&p.StartedAt,
		&p.CompletedAt,
		&p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan project: %w", err)
	}

	if len(feedbackJSON) > 0 {
		if err := json.Unmarshal(feedbackJSON, &p.FeedbackHistory); err != nil {
			return nil, fmt.Errorf("unmarshal feedback history: %w", err)
		}
	}

	return &p, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
