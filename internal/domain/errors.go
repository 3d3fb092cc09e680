package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInputNotFound      = errors.New("input workbook not found")
	ErrSheetNotFound      = errors.New("required sheet not found")
	ErrMissingCredentials = errors.New("store credentials are not configured")
	ErrMissingIDColumn    = errors.New("stable identifier column not found in headers")
	ErrUnknownDimension   = errors.New("unknown catalog dimension")
	ErrUnknownRecordType  = errors.New("unknown record type")
	ErrUnknownConflictKey = errors.New("unknown conflict key")
	ErrCatalogNotLoaded   = errors.New("catalog dimension not preloaded")
	ErrEmptyWorkbook      = errors.New("workbook has no readable sheets")
	ErrNotFound           = errors.New("resource not found")
	ErrDuplicateEntry     = errors.New("catalog entry already exists")
	ErrInvalidS3URI       = errors.New("invalid s3 uri")
)

// BatchError reports a persistence batch that failed. Start and End are
// zero-based, End exclusive, relative to the slice that was being written.
type BatchError struct {
	Table string
	Start int
	End   int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %s[%d:%d]: %v", e.Table, e.Start, e.End, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
