package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"fondos/internal/domain"
	"fondos/internal/port"
)

// recordColumns are written by every upsert, in statement order.
var recordColumns = []string{
	"seq", "codigo", "nombre", "periodo",
	"monto_fondoempleo", "monto_contrapartida", "monto_total",
	"beneficiarios", "estado",
	"eje_id", "linea_id", "region_id", "etapa_id", "modalidad_id", "institucion_id",
}

type recordRepo struct {
	db *sqlx.DB
}

// NewRecordRepo creates a new PostgreSQL-backed RecordRepository.
func NewRecordRepo(db *sqlx.DB) port.RecordRepository {
	return &recordRepo{db: db}
}

// upsertRecordsQuery builds a multi-row upsert keyed on conflictCol. The
// RETURNING clause tells fresh inserts (xmax = 0) from updated rows.
func upsertRecordsQuery(table, conflictCol string) string {
	placeholders := make([]string, len(recordColumns))
	updates := make([]string, 0, len(recordColumns))
	for i, col := range recordColumns {
		placeholders[i] = ":" + col
		if col != conflictCol {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}
	updates = append(updates, "updated_at = NOW()")

	return fmt.Sprintf(`INSERT INTO %s (%s)
		VALUES (%s)
		ON CONFLICT (%s) DO UPDATE SET
			%s
		RETURNING (xmax = 0) AS inserted`,
		table, strings.Join(recordColumns, ", "),
		strings.Join(placeholders, ", "),
		conflictCol,
		strings.Join(updates, ",\n\t\t\t"))
}

func (r *recordRepo) UpsertBatch(ctx context.Context, recordType domain.RecordType, records []domain.Record, key domain.ConflictKey) (domain.UpsertResult, error) {
	var res domain.UpsertResult
	if len(records) == 0 {
		return res, nil
	}
	table, err := recordType.Table()
	if err != nil {
		return res, err
	}
	conflictCol, err := key.Column()
	if err != nil {
		return res, err
	}

	rows, err := r.db.NamedQueryContext(ctx, upsertRecordsQuery(table, conflictCol), records)
	if err != nil {
		return res, fmt.Errorf("recordRepo.UpsertBatch(%s): %w%s", table, err, pgDetail(err))
	}
	defer rows.Close()

	for rows.Next() {
		var inserted bool
		if err := rows.Scan(&inserted); err != nil {
			return domain.UpsertResult{}, fmt.Errorf("recordRepo.UpsertBatch(%s) scan: %w", table, err)
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}
	if err := rows.Err(); err != nil {
		return domain.UpsertResult{}, fmt.Errorf("recordRepo.UpsertBatch(%s): %w%s", table, err, pgDetail(err))
	}
	return res, nil
}

func (r *recordRepo) DeleteAll(ctx context.Context, recordType domain.RecordType) (int64, error) {
	table, err := recordType.Table()
	if err != nil {
		return 0, err
	}
	result, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, table))
	if err != nil {
		return 0, fmt.Errorf("recordRepo.DeleteAll(%s): %w%s", table, err, pgDetail(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("recordRepo.DeleteAll(%s) rows affected: %w", table, err)
	}
	return n, nil
}
