package domain

import "fmt"

// Dimension identifies a catalog (lookup) table that records point into.
type Dimension string

const (
	DimensionAxis        Dimension = "axis"
	DimensionLine        Dimension = "line"
	DimensionRegion      Dimension = "region"
	DimensionStage       Dimension = "stage"
	DimensionModality    Dimension = "modality"
	DimensionInstitution Dimension = "institution"
)

// Dimensions lists every catalog dimension in preload order.
var Dimensions = []Dimension{
	DimensionAxis,
	DimensionLine,
	DimensionRegion,
	DimensionStage,
	DimensionModality,
	DimensionInstitution,
}

// DimensionTables maps each dimension to its catalog table.
var DimensionTables = map[Dimension]string{
	DimensionAxis:        "ejes",
	DimensionLine:        "lineas",
	DimensionRegion:      "regiones",
	DimensionStage:       "etapas",
	DimensionModality:    "modalidades",
	DimensionInstitution: "instituciones",
}

// Table returns the catalog table for d.
func (d Dimension) Table() (string, error) {
	t, ok := DimensionTables[d]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDimension, string(d))
	}
	return t, nil
}

// ParseDimension converts a config value into a Dimension.
func ParseDimension(s string) (Dimension, error) {
	d := Dimension(s)
	if _, ok := DimensionTables[d]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDimension, s)
	}
	return d, nil
}

// RecordType identifies the kind of canonical record a workbook holds.
type RecordType string

const (
	RecordTypeProject     RecordType = "project"
	RecordTypeScholarship RecordType = "scholarship"
)

// RecordTables maps each record type to its table.
var RecordTables = map[RecordType]string{
	RecordTypeProject:     "proyectos",
	RecordTypeScholarship: "becas",
}

// Table returns the record table for t.
func (t RecordType) Table() (string, error) {
	tbl, ok := RecordTables[t]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRecordType, string(t))
	}
	return tbl, nil
}

// ConflictKey selects the column an upsert is keyed on.
type ConflictKey string

const (
	ConflictOnCode     ConflictKey = "code"
	ConflictOnSourceID ConflictKey = "seq"
)

// Column returns the database column backing the conflict key.
func (k ConflictKey) Column() (string, error) {
	switch k {
	case ConflictOnCode:
		return "codigo", nil
	case ConflictOnSourceID:
		return "seq", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownConflictKey, string(k))
	}
}

// AdvanceKind distinguishes milestone dates from month-column amounts.
type AdvanceKind string

const (
	AdvanceKindMilestone AdvanceKind = "milestone"
	AdvanceKindMonth     AdvanceKind = "month"
)

// IssueKind classifies row-level data-quality problems.
type IssueKind string

const (
	IssueMissingID     IssueKind = "missing_id"
	IssueDuplicateID   IssueKind = "duplicate_id"
	IssueUnresolvedFK  IssueKind = "unresolved_fk"
	IssueUnknownID     IssueKind = "unknown_fk_id"
	IssueZeroAmount    IssueKind = "zero_amount"
	IssueCatalogWrite  IssueKind = "catalog_write"
	IssuePersistFailed IssueKind = "persist_failed"
)

// RunStatus tracks an import run through its lifecycle.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)
