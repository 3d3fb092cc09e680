package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"fondos/internal/domain"
	"fondos/internal/port"
)

type advanceRepo struct {
	db *sqlx.DB
}

// NewAdvanceRepo creates a new PostgreSQL-backed AdvanceRepository.
func NewAdvanceRepo(db *sqlx.DB) port.AdvanceRepository {
	return &advanceRepo{db: db}
}

func (r *advanceRepo) UpsertBatch(ctx context.Context, advances []domain.Advance) (int, error) {
	if len(advances) == 0 {
		return 0, nil
	}
	query := `
		INSERT INTO avances (record_type, record_key, column_key, kind, etapa_id, fecha, monto)
		VALUES (:record_type, :record_key, :column_key, :kind, :etapa_id, :fecha, :monto)
		ON CONFLICT (record_type, record_key, column_key) DO UPDATE SET
			kind = EXCLUDED.kind,
			etapa_id = EXCLUDED.etapa_id,
			fecha = EXCLUDED.fecha,
			monto = EXCLUDED.monto,
			updated_at = NOW()`

	result, err := r.db.NamedExecContext(ctx, query, advances)
	if err != nil {
		return 0, fmt.Errorf("advanceRepo.UpsertBatch: %w%s", err, pgDetail(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("advanceRepo.UpsertBatch rows affected: %w", err)
	}
	return int(n), nil
}

func (r *advanceRepo) DeleteForRecordType(ctx context.Context, recordType domain.RecordType) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM avances WHERE record_type = $1`, recordType)
	if err != nil {
		return 0, fmt.Errorf("advanceRepo.DeleteForRecordType: %w%s", err, pgDetail(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("advanceRepo.DeleteForRecordType rows affected: %w", err)
	}
	return n, nil
}
