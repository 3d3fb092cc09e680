package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"fondos/internal/domain"
	"fondos/internal/port"
)

type importRunRepo struct {
	db *sqlx.DB
}

// NewImportRunRepo creates a new PostgreSQL-backed ImportRunRepository.
func NewImportRunRepo(db *sqlx.DB) port.ImportRunRepository {
	return &importRunRepo{db: db}
}

func (r *importRunRepo) Create(ctx context.Context, run *domain.ImportRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = domain.RunStatusRunning
	}

	query := `INSERT INTO import_runs (id, record_type, source, status, started_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query, run.ID, run.RecordType, run.Source, run.Status, run.StartedAt)
	if err != nil {
		return fmt.Errorf("importRunRepo.Create: %w", err)
	}
	return nil
}

func (r *importRunRepo) Finish(ctx context.Context, run *domain.ImportRun) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}

	query := `UPDATE import_runs SET
			status = :status,
			rows_read = :rows_read,
			inserted = :inserted,
			updated = :updated,
			skipped_missing_id = :skipped_missing_id,
			skipped_duplicate_id = :skipped_duplicate_id,
			failed_persist = :failed_persist,
			error_message = :error_message,
			finished_at = :finished_at
		WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, run)
	if err != nil {
		return fmt.Errorf("importRunRepo.Finish: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("importRunRepo.Finish rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *importRunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ImportRun, error) {
	var run domain.ImportRun
	err := r.db.GetContext(ctx, &run,
		`SELECT id, record_type, source, status, rows_read, inserted, updated,
			skipped_missing_id, skipped_duplicate_id, failed_persist, error_message,
			started_at, finished_at
		 FROM import_runs WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("importRunRepo.GetByID: %w", err)
	}
	return &run, nil
}
