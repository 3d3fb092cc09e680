package port

import (
	"context"

	"github.com/google/uuid"

	"fondos/internal/domain"
)

// CatalogRepository defines the contract for catalog dimension tables.
type CatalogRepository interface {
	// ListEntries returns every entry of dim ordered by id.
	ListEntries(ctx context.Context, dim domain.Dimension) ([]domain.CatalogEntry, error)
	// InsertEntry persists a new entry with a caller-assigned id.
	InsertEntry(ctx context.Context, dim domain.Dimension, entry *domain.CatalogEntry) error
}

// RecordRepository defines the contract for canonical record tables.
type RecordRepository interface {
	// UpsertBatch writes records in a single statement keyed on key.
	UpsertBatch(ctx context.Context, recordType domain.RecordType, records []domain.Record, key domain.ConflictKey) (domain.UpsertResult, error)
	DeleteAll(ctx context.Context, recordType domain.RecordType) (int64, error)
}

// AdvanceRepository defines the contract for the advance/schedule table.
type AdvanceRepository interface {
	UpsertBatch(ctx context.Context, advances []domain.Advance) (int, error)
	DeleteForRecordType(ctx context.Context, recordType domain.RecordType) (int64, error)
}

// ImportRunRepository records pipeline executions.
type ImportRunRepository interface {
	Create(ctx context.Context, run *domain.ImportRun) error
	Finish(ctx context.Context, run *domain.ImportRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ImportRun, error)
}
