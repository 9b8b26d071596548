package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Montage/internal/domain"
)

// LogRepo — репозиторий журнала проектов. Только append и чтение.
type LogRepo struct {
	pool *pgxpool.Pool
}

// NewLogRepo создаёт новый LogRepo.
func NewLogRepo(pool *pgxpool.Pool) *LogRepo {
	return &LogRepo{pool: pool}
}

// Append добавляет запись в журнал.
func (r *LogRepo) Append(ctx context.Context, entry *domain.LogEntry) error {
	query := `
		INSERT INTO project_logs (id, project_id, position, level, source, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.ProjectID,
		entry.Position,
		entry.Level,
		entry.Source,
		entry.Message,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	return nil
}

// ListByProject возвращает записи журнала проекта, новые первыми.
func (r *LogRepo) ListByProject(ctx context.Context, projectID uuid.UUID, limit int) ([]domain.LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, project_id, position, level, source, message, created_at
		FROM project_logs
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list log entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LogEntry
	for rows.Next() {
		var e domain.LogEntry
		if err := rows.Scan(
			&e.ID,
			&e.ProjectID,
			&e.Position,
			&e.Level,
			&e.Source,
			&e.Message,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
