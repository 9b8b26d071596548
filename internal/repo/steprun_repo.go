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

// StepRunRepo — репозиторий записей выполнения шагов.
//
// Ключ записи — (project_id, position). Записи создаются пачкой при
// инстанцировании проекта и дальше только обновляются.
type StepRunRepo struct {
	pool *pgxpool.Pool
}

// NewStepRunRepo создаёт новый StepRunRepo.
func NewStepRunRepo(pool *pgxpool.Pool) *StepRunRepo {
	return &StepRunRepo{pool: pool}
}

// CreateBatch создаёт записи шагов одной транзакцией.
// Инстанцирование проекта атомарно: либо все шаги, либо ни одного.
func (r *StepRunRepo) CreateBatch(ctx context.Context, runs []domain.StepRun) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO step_runs (project_id, position, name, executor, status, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for i := range runs {
		run := &runs[i]
		_, err := tx.Exec(ctx, query,
			run.ProjectID,
			run.Position,
			run.Name,
			run.Executor,
			run.Status,
			run.RetryCount,
			run.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert step run %d: %w", run.Position, err)
		}
	}

	return tx.Commit(ctx)
}

// GetByPosition возвращает запись шага по проекту и позиции.
func (r *StepRunRepo) GetByPosition(ctx context.Context, projectID uuid.UUID, position int) (*domain.StepRun, error) {
	query := `
		SELECT project_id, position, name, executor, status, result, result_ref,
		       error, feedback, retry_count, started_at, first_attempt_at, finished_at, created_at
		FROM step_runs
		WHERE project_id = $1 AND position = $2
	`
	return r.scanStepRun(r.pool.QueryRow(ctx, query, projectID, position))
}

// ListByProject возвращает записи шагов проекта по возрастанию позиции.
func (r *StepRunRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]domain.StepRun, error) {
	query := `
		SELECT project_id, position, name, executor, status, result, result_ref,
		       error, feedback, retry_count, started_at, first_attempt_at, finished_at, created_at
		FROM step_runs
		WHERE project_id = $1
		ORDER BY position ASC
	`
	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list step runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.StepRun
	for rows.Next() {
		run, err := r.scanStepRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Update обновляет запись шага.
func (r *StepRunRepo) Update(ctx context.Context, run *domain.StepRun) error {
	resultJSON, err := json.Marshal(run.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	query := `
		UPDATE step_runs
		SET status = $3, result = $4, result_ref = $5, error = $6, feedback = $7,
		    retry_count = $8, started_at = $9, first_attempt_at = $10, finished_at = $11
		WHERE project_id = $1 AND position = $2
	`
	result, err := r.pool.Exec(ctx, query,
		run.ProjectID,
		run.Position,
		run.Status,
		resultJSON,
		nullString(run.ResultRef),
		nullString(run.Error),
		nullString(run.Feedback),
		run.RetryCount,
		run.StartedAt,
		run.FirstAttemptAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update step run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRunning возвращает все записи в статусе RUNNING (для восстановления
// после рестарта: живых исполнителей у таких записей уже нет).
func (r *StepRunRepo) ListRunning(ctx context.Context) ([]domain.StepRun, error) {
	query := `
		SELECT project_id, position, name, executor, status, result, result_ref,
		       error, feedback, retry_count, started_at, first_attempt_at, finished_at, created_at
		FROM step_runs
		WHERE status = 'RUNNING'
		ORDER BY project_id, position
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list running step runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.StepRun
	for rows.Next() {
		run, err := r.scanStepRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// scanStepRun сканирует одну строку в StepRun.
func (r *StepRunRepo) scanStepRun(row pgx.Row) (*domain.StepRun, error) {
	var run domain.StepRun
	var resultJSON []byte
	var resultRef, runError, feedback *string

	err := row.Scan(
		&run.ProjectID,
		&run.Position,
		&run.Name,
		&run.Executor,
		&run.Status,
		&resultJSON,
		&resultRef,
		&runError,
		&feedback,
		&run.RetryCount,
		&run.StartedAt,
		&run.FirstAttemptAt,
		&run.FinishedAt,
		&run.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan step run: %w", err)
	}

	if len(resultJSON) > 0 {
		if err := json.Unmarshal(resultJSON, &run.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	if resultRef != nil {
		run.ResultRef = *resultRef
	}
	if runError != nil {
		run.Error = *runError
	}
	if feedback != nil {
		run.Feedback = *feedback
	}

	return &run, nil
}
