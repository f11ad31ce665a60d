package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kiranshivaraju/imagetagger/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Runs ---

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.Run) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, folder, provider, model, batch_size, workers, authors, state,
		                   total, processed, ok_count, error_count, skipped, dropped, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		run.ID, run.Folder, run.Provider, run.Model, run.BatchSize, run.Workers, run.Authors,
		run.State, run.Total, run.Processed, run.OKCount, run.ErrorCount, run.Skipped,
		run.Dropped, run.StartedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	var r models.Run
	err := s.pool.QueryRow(ctx,
		`SELECT id, folder, provider, model, batch_size, workers, authors, state,
		        total, processed, ok_count, error_count, skipped, dropped, started_at, finished_at
		 FROM runs WHERE id = $1`, id).
		Scan(&r.ID, &r.Folder, &r.Provider, &r.Model, &r.BatchSize, &r.Workers, &r.Authors,
			&r.State, &r.Total, &r.Processed, &r.OKCount, &r.ErrorCount, &r.Skipped,
			&r.Dropped, &r.StartedAt, &r.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]*models.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, folder, provider, model, batch_size, workers, authors, state,
		        total, processed, ok_count, error_count, skipped, dropped, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		var r models.Run
		if err := rows.Scan(&r.ID, &r.Folder, &r.Provider, &r.Model, &r.BatchSize, &r.Workers,
			&r.Authors, &r.State, &r.Total, &r.Processed, &r.OKCount, &r.ErrorCount,
			&r.Skipped, &r.Dropped, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

func (s *PostgresStore) UpdateRunProgress(ctx context.Context, run *models.Run) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE runs SET state = $2, processed = $3, ok_count = $4, error_count = $5,
		        skipped = $6, dropped = $7
		 WHERE id = $1`,
		run.ID, run.State, run.Processed, run.OKCount, run.ErrorCount, run.Skipped, run.Dropped)
	if err != nil {
		return fmt.Errorf("update run progress: %w", err)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, run *models.Run) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE runs SET state = $2, processed = $3, ok_count = $4, error_count = $5,
		        skipped = $6, dropped = $7, finished_at = $8
		 WHERE id = $1`,
		run.ID, run.State, run.Processed, run.OKCount, run.ErrorCount, run.Skipped,
		run.Dropped, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// --- Image results ---

func (s *PostgresStore) CreateImageResult(ctx context.Context, result *models.ImageResult) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO image_results (id, run_id, path, status, title, tags, authors, error_message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		result.ID, result.RunID, result.Path, result.Status, result.Title, result.Tags,
		result.Authors, result.ErrorMessage, result.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create image result: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListImageResults(ctx context.Context, runID uuid.UUID) ([]*models.ImageResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, path, status, title, tags, authors, error_message, created_at
		 FROM image_results WHERE run_id = $1 ORDER BY created_at ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list image results: %w", err)
	}
	defer rows.Close()

	var results []*models.ImageResult
	for rows.Next() {
		var r models.ImageResult
		if err := rows.Scan(&r.ID, &r.RunID, &r.Path, &r.Status, &r.Title, &r.Tags,
			&r.Authors, &r.ErrorMessage, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan image result: %w", err)
		}
		results = append(results, &r)
	}
	return results, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
