package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"fondos/internal/catalog"
	"fondos/internal/config"
	"fondos/internal/csvexport"
	"fondos/internal/domain"
	"fondos/internal/mapper"
	"fondos/internal/port"
	"fondos/internal/workbook"
)

// ImportRequest is the input for one pipeline run.
type ImportRequest struct {
	// Source is a local path or an s3://bucket/key URI.
	Source        string
	RecordType    domain.RecordType
	Sheet         string
	ConflictKey   domain.ConflictKey
	Period        int
	BatchSize     int
	ProgressEvery int
	Reset         bool
	ExpectedCount int
	IssuesCSV     string
	NotifyTo      []string
}

// ImportService defines the spreadsheet import contract.
type ImportService interface {
	// Run imports one workbook. Setup failures abort before anything is
	// written; batch failures are counted and the run carries on.
	Run(ctx context.Context, req ImportRequest) (*domain.ImportSummary, error)
	GetRun(ctx context.Context, id uuid.UUID) (*domain.ImportRun, error)
}

type importService struct {
	catalogs port.CatalogRepository
	records  port.RecordRepository
	advances port.AdvanceRepository
	runs     port.ImportRunRepository
	storage  port.ObjectStorage
	email    port.EmailSender
	policies map[domain.Dimension]catalog.Policy
	s3Cfg    *config.S3Config
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewImportService creates a new ImportService implementation. storage and
// email may be nil, which disables s3 sources, report uploads and
// notifications.
func NewImportService(
	catalogs port.CatalogRepository,
	records port.RecordRepository,
	advances port.AdvanceRepository,
	runs port.ImportRunRepository,
	storage port.ObjectStorage,
	email port.EmailSender,
	policies map[domain.Dimension]catalog.Policy,
	s3Cfg *config.S3Config,
	log logrus.FieldLogger,
) ImportService {
	return &importService{
		catalogs: catalogs,
		records:  records,
		advances: advances,
		runs:     runs,
		storage:  storage,
		email:    email,
		policies: policies,
		s3Cfg:    s3Cfg,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type pendingRecord struct {
	rec *domain.Record
	row workbook.Row
}

// importJob carries the state of a single Run.
type importJob struct {
	s        *importService
	req      ImportRequest
	log      logrus.FieldLogger
	wb       *workbook.Workbook
	sheet    *workbook.Sheet
	table    *workbook.Table
	resolver *catalog.Resolver
	mapper   *mapper.Mapper
	summary  *domain.ImportSummary
	issues   []domain.Issue
}

func (s *importService) GetRun(ctx context.Context, id uuid.UUID) (*domain.ImportRun, error) {
	return s.runs.GetByID(ctx, id)
}

func (s *importService) Run(ctx context.Context, req ImportRequest) (*domain.ImportSummary, error) {
	started := s.now()
	schema, err := mapper.SchemaFor(req.RecordType)
	if err != nil {
		return nil, err
	}
	if _, err := req.ConflictKey.Column(); err != nil {
		return nil, err
	}
	log := s.log.WithFields(logrus.Fields{"record_type": req.RecordType, "source": req.Source})

	wb, err := s.loadWorkbook(ctx, req.Source)
	if err != nil {
		return nil, err
	}
	sheet, err := primarySheet(wb, req.Sheet, schema)
	if err != nil {
		return nil, err
	}

	period := req.Period
	if period <= 0 {
		period = started.Year()
	}
	resolver := catalog.NewResolver(s.catalogs, s.policies, log)
	m := mapper.NewMapper(schema, resolver, req.ConflictKey, period, log)
	table := sheet.Table(schema.AllColumns(), mapper.FieldSeq)
	if err := m.Bind(table); err != nil {
		return nil, err
	}

	job := &importJob{
		s:        s,
		req:      req,
		log:      log,
		wb:       wb,
		sheet:    sheet,
		table:    table,
		resolver: resolver,
		mapper:   m,
		summary: &domain.ImportSummary{
			RunID:          uuid.New(),
			RecordType:     req.RecordType,
			Source:         req.Source,
			Sheet:          sheet.Name,
			ExpectedCount:  req.ExpectedCount,
			CatalogCreated: make(map[domain.Dimension]int),
			StartedAt:      started,
		},
	}

	run := &domain.ImportRun{
		ID:         job.summary.RunID,
		RecordType: req.RecordType,
		Source:     req.Source,
		Status:     domain.RunStatusRunning,
		StartedAt:  started,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("recording import run: %w", err)
	}

	if err := job.execute(ctx); err != nil {
		job.summarize()
		s.finishRun(ctx, run, job.summary, err, log)
		log.WithError(err).Error("import aborted")
		return nil, err
	}

	summary := job.summarize()
	s.finishRun(ctx, run, summary, nil, log)
	job.writeReport(ctx)
	job.notify(ctx)
	logSummary(log, summary)
	return summary, nil
}

func primarySheet(wb *workbook.Workbook, name string, schema mapper.Schema) (*workbook.Sheet, error) {
	if name != "" {
		if sheet, ok := wb.FindSheet(name); ok {
			return sheet, nil
		}
		return nil, fmt.Errorf("%w: %q", domain.ErrSheetNotFound, name)
	}
	if sheet, ok := wb.FindSheet(schema.SheetAliases...); ok {
		return sheet, nil
	}
	if len(wb.Sheets) == 1 {
		return wb.Sheets[0], nil
	}
	return nil, fmt.Errorf("%w: none of %s", domain.ErrSheetNotFound, strings.Join(schema.SheetAliases, ", "))
}

func (j *importJob) execute(ctx context.Context) error {
	if err := j.resolver.PreloadAll(ctx); err != nil {
		return fmt.Errorf("preloading catalogs: %w", err)
	}
	if err := j.seedCatalogs(ctx); err != nil {
		return err
	}
	if j.req.Reset {
		if err := j.reset(ctx); err != nil {
			return err
		}
	}

	pending, err := j.mapRows(ctx)
	if err != nil {
		return err
	}
	return j.persist(ctx, pending)
}

// seedCatalogs registers every master catalog sheet found in the workbook.
func (j *importJob) seedCatalogs(ctx context.Context) error {
	for _, seed := range mapper.ReadCatalogSheets(j.wb, j.sheet) {
		fields := logrus.Fields{"dimension": seed.Dimension, "sheet": seed.Sheet}
		if !seed.Bound {
			j.log.WithFields(fields).Warn("catalog sheet has no description column, ignored")
			continue
		}
		created, err := j.resolver.Seed(ctx, seed.Dimension, seed.Entries)
		if err != nil {
			return fmt.Errorf("seeding %s catalog from sheet %q: %w", seed.Dimension, seed.Sheet, err)
		}
		fields["rows"] = len(seed.Entries)
		fields["created"] = created
		j.log.WithFields(fields).Info("catalog sheet seeded")
	}
	return nil
}

func (j *importJob) reset(ctx context.Context) error {
	advances, err := j.s.advances.DeleteForRecordType(ctx, j.req.RecordType)
	if err != nil {
		return fmt.Errorf("resetting advances: %w", err)
	}
	records, err := j.s.records.DeleteAll(ctx, j.req.RecordType)
	if err != nil {
		return fmt.Errorf("resetting records: %w", err)
	}
	j.log.WithFields(logrus.Fields{"records": records, "advances": advances}).Warn("existing rows deleted before import")
	return nil
}

func (j *importJob) mapRows(ctx context.Context) ([]pendingRecord, error) {
	pending := make([]pendingRecord, 0, len(j.table.Rows))
	for i, row := range j.table.Rows {
		rec, err := j.mapper.MapRow(ctx, row)
		if err != nil {
			return nil, fmt.Errorf("mapping row %d: %w", row.Ordinal, err)
		}
		if rec != nil {
			pending = append(pending, pendingRecord{rec: rec, row: row})
		}

		if n := i + 1; j.req.ProgressEvery > 0 && n%j.req.ProgressEvery == 0 {
			stats := j.mapper.Stats()
			j.log.WithFields(logrus.Fields{
				"rows":    n,
				"total":   len(j.table.Rows),
				"emitted": stats.Emitted,
				"skipped": stats.SkippedMissingID + stats.SkippedDuplicate,
			}).Info("mapping progress")
		}
	}
	return pending, nil
}

// persist writes records batch by batch. A failed batch is reported and
// skipped; the advances of its records are not written.
func (j *importJob) persist(ctx context.Context, pending []pendingRecord) error {
	table, err := j.req.RecordType.Table()
	if err != nil {
		return err
	}

	for _, span := range Batches(len(pending), j.req.BatchSize) {
		chunk := pending[span.Start:span.End]
		batch := make([]domain.Record, len(chunk))
		for i, p := range chunk {
			batch[i] = *p.rec
		}

		res, err := j.s.records.UpsertBatch(ctx, j.req.RecordType, batch, j.req.ConflictKey)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			berr := &domain.BatchError{Table: table, Start: span.Start, End: span.End, Err: err}
			j.log.WithError(berr).Error("record batch failed, continuing")
			j.summary.FailedPersist += len(chunk)
			for _, p := range chunk {
				j.issues = append(j.issues, domain.Issue{
					Row:     p.row.Ordinal,
					Column:  table,
					Value:   p.rec.Key(j.req.ConflictKey),
					Kind:    domain.IssuePersistFailed,
					Message: berr.Error(),
				})
			}
			continue
		}

		j.summary.Inserted += res.Inserted
		j.summary.Updated += res.Updated
		j.log.WithFields(logrus.Fields{
			"batch_start": span.Start,
			"batch_end":   span.End,
			"inserted":    res.Inserted,
			"updated":     res.Updated,
		}).Info("record batch written")

		if err := j.persistAdvances(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (j *importJob) persistAdvances(ctx context.Context, chunk []pendingRecord) error {
	var advances []domain.Advance
	for _, p := range chunk {
		advs, err := j.mapper.Advances(ctx, p.row, p.rec)
		if err != nil {
			return fmt.Errorf("extracting advances for row %d: %w", p.row.Ordinal, err)
		}
		advances = append(advances, advs...)
	}

	for _, span := range Batches(len(advances), j.req.BatchSize) {
		batch := advances[span.Start:span.End]
		n, err := j.s.advances.UpsertBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			berr := &domain.BatchError{Table: "avances", Start: span.Start, End: span.End, Err: err}
			j.log.WithError(berr).Error("advance batch failed, continuing")
			j.summary.AdvancesFailed += len(batch)
			continue
		}
		j.summary.AdvancesWritten += n
	}
	return nil
}

func (j *importJob) summarize() *domain.ImportSummary {
	stats := j.mapper.Stats()
	s := j.summary
	s.RowsRead = stats.RowsRead
	s.SkippedMissingID = stats.SkippedMissingID
	s.SkippedDuplicate = stats.SkippedDuplicate
	s.UnresolvedFKs = stats.UnresolvedFKs
	s.UnknownIDs = stats.UnknownIDs
	s.ZeroAmounts = stats.ZeroAmounts
	for _, dim := range domain.Dimensions {
		if n := j.resolver.Created(dim); n > 0 {
			s.CatalogCreated[dim] = n
		}
	}
	s.Issues = append(append([]domain.Issue(nil), j.mapper.Issues()...), j.issues...)
	s.FinishedAt = j.s.now()
	return s
}

func (s *importService) finishRun(ctx context.Context, run *domain.ImportRun, summary *domain.ImportSummary, runErr error, log logrus.FieldLogger) {
	finished := summary.FinishedAt
	if finished.IsZero() {
		finished = s.now()
	}
	run.Status = domain.RunStatusCompleted
	if runErr != nil {
		run.Status = domain.RunStatusFailed
		run.ErrorMessage = runErr.Error()
	}
	run.RowsRead = summary.RowsRead
	run.Inserted = summary.Inserted
	run.Updated = summary.Updated
	run.SkippedMissingID = summary.SkippedMissingID
	run.SkippedDuplicate = summary.SkippedDuplicate
	run.FailedPersist = summary.FailedPersist
	run.FinishedAt = &finished

	if err := s.runs.Finish(ctx, run); err != nil {
		log.WithError(err).WithField("run_id", run.ID).Warn("failed to record import run outcome")
	}
}

// writeReport saves the issues CSV locally and, when a reports bucket is
// configured, uploads it. Report failures never fail the run.
func (j *importJob) writeReport(ctx context.Context) {
	issues := j.summary.Issues
	upload := j.s.storage != nil && j.s.s3Cfg != nil && j.s.s3Cfg.Enabled() && len(issues) > 0
	if j.req.IssuesCSV == "" && !upload {
		return
	}

	var buf bytes.Buffer
	if err := csvexport.WriteReport(&buf, issues); err != nil {
		j.log.WithError(err).Warn("failed to build issues report")
		return
	}

	if j.req.IssuesCSV != "" {
		if err := os.WriteFile(j.req.IssuesCSV, buf.Bytes(), 0o644); err != nil {
			j.log.WithError(err).WithField("path", j.req.IssuesCSV).Warn("failed to write issues report")
		} else {
			j.log.WithFields(logrus.Fields{"path": j.req.IssuesCSV, "issues": len(issues)}).Info("issues report written")
		}
	}

	if upload {
		key := csvexport.BuildFilename(j.req.Source, j.summary.StartedAt)
		if prefix := strings.Trim(j.s.s3Cfg.ReportsPrefix, "/"); prefix != "" {
			key = prefix + "/" + key
		}
		out, err := j.s.storage.Upload(ctx, port.UploadInput{
			Bucket:      j.s.s3Cfg.Bucket,
			Key:         key,
			Body:        bytes.NewReader(buf.Bytes()),
			ContentType: "text/csv",
			Metadata: map[string]string{
				"run-id":      j.summary.RunID.String(),
				"record-type": string(j.req.RecordType),
			},
		})
		if err != nil {
			j.log.WithError(err).WithField("key", key).Warn("failed to upload issues report")
			return
		}
		j.log.WithField("location", out.Location).Info("issues report uploaded")
	}
}

func (j *importJob) notify(ctx context.Context) {
	if j.s.email == nil || len(j.req.NotifyTo) == 0 {
		return
	}
	if err := j.s.email.SendRunSummary(ctx, j.req.NotifyTo, j.summary); err != nil {
		j.log.WithError(err).Warn("failed to send run summary")
	}
}

func logSummary(log logrus.FieldLogger, s *domain.ImportSummary) {
	fields := logrus.Fields{
		"run_id":               s.RunID,
		"sheet":                s.Sheet,
		"rows_read":            s.RowsRead,
		"inserted":             s.Inserted,
		"updated":              s.Updated,
		"skipped_missing_id":   s.SkippedMissingID,
		"skipped_duplicate_id": s.SkippedDuplicate,
		"failed_persist":       s.FailedPersist,
		"unresolved_fks":       s.UnresolvedFKs,
		"unknown_fk_ids":       s.UnknownIDs,
		"zero_amounts":         s.ZeroAmounts,
		"advances_written":     s.AdvancesWritten,
		"advances_failed":      s.AdvancesFailed,
		"issues":               len(s.Issues),
		"elapsed":              s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond).String(),
	}
	for dim, n := range s.CatalogCreated {
		fields["created_"+string(dim)] = n
	}
	log.WithFields(fields).Info("import complete")

	if !s.Balanced() {
		log.WithFields(logrus.Fields{
			"rows_read": s.RowsRead,
			"accounted": s.Persisted() + s.SkippedMissingID + s.SkippedDuplicate + s.FailedPersist,
		}).Error("row counts do not balance")
	}
	if !s.MatchesExpected() {
		log.WithFields(logrus.Fields{
			"expected":  s.ExpectedCount,
			"persisted": s.Persisted(),
		}).Warn("persisted count differs from expected count")
	}
}
