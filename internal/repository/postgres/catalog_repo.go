package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"fondos/internal/domain"
	"fondos/internal/port"
)

type catalogRepo struct {
	db *sqlx.DB
}

// NewCatalogRepo creates a new PostgreSQL-backed CatalogRepository.
func NewCatalogRepo(db *sqlx.DB) port.CatalogRepository {
	return &catalogRepo{db: db}
}

func (r *catalogRepo) ListEntries(ctx context.Context, dim domain.Dimension) ([]domain.CatalogEntry, error) {
	table, err := dim.Table()
	if err != nil {
		return nil, err
	}
	var entries []domain.CatalogEntry
	// Table names come from domain.DimensionTables, never from input.
	query := fmt.Sprintf(`SELECT id, descripcion, numero FROM %s ORDER BY id`, table)
	if err := r.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, fmt.Errorf("catalogRepo.ListEntries(%s): %w", table, err)
	}
	return entries, nil
}

func (r *catalogRepo) InsertEntry(ctx context.Context, dim domain.Dimension, entry *domain.CatalogEntry) error {
	table, err := dim.Table()
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, descripcion, numero) VALUES (:id, :descripcion, :numero)`, table)
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("catalogRepo.InsertEntry(%s, %d): %w%s", table, entry.ID, domain.ErrDuplicateEntry, pgDetail(err))
		}
		return fmt.Errorf("catalogRepo.InsertEntry(%s, %d): %w%s", table, entry.ID, err, pgDetail(err))
	}
	return nil
}
