package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// CatalogEntry is one row of a catalog dimension table.
type CatalogEntry struct {
	ID           int64  `db:"id" json:"id"`
	Description  string `db:"descripcion" json:"descripcion"`
	SourceNumber *int   `db:"numero" json:"numero,omitempty"`
}

// Record is the canonical, fully resolved form of one funded project or
// scholarship row.
type Record struct {
	SourceID      int64   `db:"seq" json:"seq"`
	Code          string  `db:"codigo" json:"codigo"`
	Name          string  `db:"nombre" json:"nombre"`
	Period        int     `db:"periodo" json:"periodo"`
	FundAmount    float64 `db:"monto_fondoempleo" json:"monto_fondoempleo"`
	Counterpart   float64 `db:"monto_contrapartida" json:"monto_contrapartida"`
	Total         float64 `db:"monto_total" json:"monto_total"`
	Beneficiaries int64   `db:"beneficiarios" json:"beneficiarios"`
	Status        string  `db:"estado" json:"estado"`
	AxisID        *int64  `db:"eje_id" json:"eje_id"`
	LineID        *int64  `db:"linea_id" json:"linea_id"`
	RegionID      *int64  `db:"region_id" json:"region_id"`
	StageID       *int64  `db:"etapa_id" json:"etapa_id"`
	ModalityID    *int64  `db:"modalidad_id" json:"modalidad_id"`
	InstitutionID *int64  `db:"institucion_id" json:"institucion_id"`
}

// SetForeignKey stores id as the record's reference into dim.
func (r *Record) SetForeignKey(dim Dimension, id *int64) {
	switch dim {
	case DimensionAxis:
		r.AxisID = id
	case DimensionLine:
		r.LineID = id
	case DimensionRegion:
		r.RegionID = id
	case DimensionStage:
		r.StageID = id
	case DimensionModality:
		r.ModalityID = id
	case DimensionInstitution:
		r.InstitutionID = id
	}
}

// Key returns the value the record is upserted on for the given conflict key.
func (r *Record) Key(k ConflictKey) string {
	if k == ConflictOnCode {
		return r.Code
	}
	return strconv.FormatInt(r.SourceID, 10)
}

// Advance is a dated milestone or monthly amount belonging to exactly one Record.
type Advance struct {
	RecordType RecordType  `db:"record_type" json:"record_type"`
	RecordKey  string      `db:"record_key" json:"record_key"`
	ColumnKey  string      `db:"column_key" json:"column_key"`
	Kind       AdvanceKind `db:"kind" json:"kind"`
	StageID    *int64      `db:"etapa_id" json:"etapa_id"`
	Date       string      `db:"fecha" json:"fecha"`
	Amount     *float64    `db:"monto" json:"monto"`
}

// UpsertResult splits the rows touched by one upsert statement.
type UpsertResult struct {
	Inserted int
	Updated  int
}

// Issue is a row-level data-quality finding. Row is the 1-based spreadsheet row.
type Issue struct {
	Row     int       `json:"row"`
	Column  string    `json:"column"`
	Value   string    `json:"value"`
	Kind    IssueKind `json:"kind"`
	Message string    `json:"message"`
}

// ImportSummary holds the counters reported at the end of a run.
type ImportSummary struct {
	RunID            uuid.UUID         `json:"run_id"`
	RecordType       RecordType        `json:"record_type"`
	Source           string            `json:"source"`
	Sheet            string            `json:"sheet"`
	RowsRead         int               `json:"rows_read"`
	Inserted         int               `json:"inserted"`
	Updated          int               `json:"updated"`
	SkippedMissingID int               `json:"skipped_missing_id"`
	SkippedDuplicate int               `json:"skipped_duplicate_id"`
	FailedPersist    int               `json:"failed_persist"`
	UnresolvedFKs    int               `json:"unresolved_fks"`
	UnknownIDs       int               `json:"unknown_fk_ids"`
	ZeroAmounts      int               `json:"zero_amounts"`
	AdvancesWritten  int               `json:"advances_written"`
	AdvancesFailed   int               `json:"advances_failed"`
	CatalogCreated   map[Dimension]int `json:"catalog_created"`
	ExpectedCount    int               `json:"expected_count"`
	Issues           []Issue           `json:"-"`
	StartedAt        time.Time         `json:"started_at"`
	FinishedAt       time.Time         `json:"finished_at"`
}

// Persisted is the number of records the store accepted.
func (s *ImportSummary) Persisted() int {
	return s.Inserted + s.Updated
}

// Balanced reports whether every row read is accounted for.
func (s *ImportSummary) Balanced() bool {
	return s.RowsRead == s.Persisted()+s.SkippedMissingID+s.SkippedDuplicate+s.FailedPersist
}

// MatchesExpected reports whether the persisted count equals ExpectedCount.
// It is always true when no expectation was given.
func (s *ImportSummary) MatchesExpected() bool {
	return s.ExpectedCount <= 0 || s.Persisted() == s.ExpectedCount
}

// ImportRun is the persisted log entry of one pipeline execution.
type ImportRun struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	RecordType       RecordType `db:"record_type" json:"record_type"`
	Source           string     `db:"source" json:"source"`
	Status           RunStatus  `db:"status" json:"status"`
	RowsRead         int        `db:"rows_read" json:"rows_read"`
	Inserted         int        `db:"inserted" json:"inserted"`
	Updated          int        `db:"updated" json:"updated"`
	SkippedMissingID int        `db:"skipped_missing_id" json:"skipped_missing_id"`
	SkippedDuplicate int        `db:"skipped_duplicate_id" json:"skipped_duplicate_id"`
	FailedPersist    int        `db:"failed_persist" json:"failed_persist"`
	ErrorMessage     string     `db:"error_message" json:"error_message"`
	StartedAt        time.Time  `db:"started_at" json:"started_at"`
	FinishedAt       *time.Time `db:"finished_at" json:"finished_at"`
}
