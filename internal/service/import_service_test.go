package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"fondos/internal/catalog"
	"fondos/internal/config"
	"fondos/internal/domain"
	"fondos/internal/port"
	"fondos/internal/repository/memory"
	"fondos/internal/service"
	"fondos/mocks"
)

type fixtureSheet struct {
	name string
	rows [][]interface{}
}

func writeWorkbook(t *testing.T, sheets ...fixtureSheet) string {
	t.Helper()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	for i, s := range sheets {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", s.name))
		} else {
			_, err := f.NewSheet(s.name)
			require.NoError(t, err)
		}
		for r, row := range s.rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			vals := row
			require.NoError(t, f.SetSheetRow(s.name, cell, &vals))
		}
	}

	path := filepath.Join(t.TempDir(), "proyectos.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func projectWorkbook(t *testing.T) string {
	t.Helper()
	return writeWorkbook(t,
		fixtureSheet{name: "Proyectos", rows: [][]interface{}{
			{"Seq", "Código", "Nombre del Proyecto", "Eje", "Línea", "Región", "Periodo", "Fondoempleo", "Contrapartida", "Fecha Inicio", "Ago-25"},
			{1, "SC-001", "Proyecto Uno", 1, "Capacitación", "Lima", 2024, 1000, 200, 45597, 1500},
			{2, nil, "Proyecto Dos", "EMPRENDIMIENTO", nil, "Cusco", 2024, 0, 0, nil, nil},
			{1, "SC-DUP", "Repetido", 1, nil, "Lima", 2024, 10, 0, nil, nil},
			{nil, "SC-004", "Sin secuencia", 1, nil, "Lima", 2024, 10, 0, nil, nil},
			{4, "SC-005", "Eje desconocido", "INEXISTENTE", nil, "lima", 2024, 500, 0, nil, 0},
		}},
		fixtureSheet{name: "Ejes", rows: [][]interface{}{
			{"N°", "Descripción"},
			{1, "EMPLEABILIDAD"},
			{2, "EMPRENDIMIENTO"},
		}},
		fixtureSheet{name: "Líneas", rows: [][]interface{}{
			{"N°", "Descripción"},
			{1, "CAPACITACION"},
		}},
	)
}

type fixture struct {
	store  *memory.Store
	svc    service.ImportService
	hook   *logtest.Hook
	report string
}

func newMemoryFixture(t *testing.T) *fixture {
	t.Helper()
	return newMemoryFixtureWithPolicies(t, catalog.DefaultPolicies())
}

func newMemoryFixtureWithPolicies(t *testing.T, policies map[domain.Dimension]catalog.Policy) *fixture {
	t.Helper()
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	store := memory.NewStore()
	svc := service.NewImportService(
		store.Catalogs(), store.Records(), store.Advances(), store.Runs(),
		nil, nil, policies, &config.S3Config{}, log,
	)
	return &fixture{store: store, svc: svc, hook: hook, report: filepath.Join(t.TempDir(), "issues.csv")}
}

func projectRequest(source string) service.ImportRequest {
	return service.ImportRequest{
		Source:        source,
		RecordType:    domain.RecordTypeProject,
		ConflictKey:   domain.ConflictOnCode,
		BatchSize:     2,
		ProgressEvery: 2,
	}
}

func hasMessage(hook *logtest.Hook, msg string) bool {
	for _, e := range hook.AllEntries() {
		if e.Message == msg {
			return true
		}
	}
	return false
}

func TestImportService_Run_EndToEnd(t *testing.T) {
	fx := newMemoryFixture(t)
	req := projectRequest(projectWorkbook(t))
	req.IssuesCSV = fx.report

	summary, err := fx.svc.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "Proyectos", summary.Sheet)
	assert.Equal(t, 5, summary.RowsRead)
	assert.Equal(t, 3, summary.Inserted)
	assert.Equal(t, 0, summary.Updated)
	assert.Equal(t, 1, summary.SkippedMissingID)
	assert.Equal(t, 1, summary.SkippedDuplicate)
	assert.Equal(t, 0, summary.FailedPersist)
	assert.Equal(t, 1, summary.UnresolvedFKs)
	assert.Equal(t, 1, summary.ZeroAmounts)
	assert.Equal(t, 2, summary.AdvancesWritten)
	assert.True(t, summary.Balanced())
	assert.Equal(t, map[domain.Dimension]int{
		domain.DimensionAxis:   2,
		domain.DimensionLine:   1,
		domain.DimensionRegion: 2,
		domain.DimensionStage:  1,
	}, summary.CatalogCreated)

	records := fx.store.RecordsOf(domain.RecordTypeProject)
	require.Len(t, records, 3)
	first := records[0]
	assert.Equal(t, "SC-001", first.Code)
	require.NotNil(t, first.AxisID)
	assert.Equal(t, int64(1), *first.AxisID)
	require.NotNil(t, first.LineID)
	assert.Equal(t, int64(1), *first.LineID)
	assert.InDelta(t, 1200.0, first.Total, 0.001)

	second := records[1]
	assert.Equal(t, "SC-2024-2", second.Code)
	require.NotNil(t, second.AxisID)
	assert.Equal(t, int64(2), *second.AxisID, "axis resolved by description")
	assert.Nil(t, second.LineID)

	third := records[2]
	assert.Nil(t, third.AxisID, "axis is never auto-created")
	assert.Equal(t, *first.RegionID, *third.RegionID, "region matched case-insensitively")

	advances := fx.store.AdvancesOf(domain.RecordTypeProject)
	require.Len(t, advances, 2)
	for _, a := range advances {
		assert.Equal(t, "SC-001", a.RecordKey)
	}

	run, err := fx.store.Runs().GetByID(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, run.Status)
	assert.Equal(t, 3, run.Inserted)
	require.NotNil(t, run.FinishedAt)

	data, err := os.ReadFile(fx.report)
	require.NoError(t, err)
	report := string(data)
	assert.Contains(t, report, "missing_id")
	assert.Contains(t, report, "duplicate_id")
	assert.Contains(t, report, "unresolved_fk")
	assert.Contains(t, report, "zero_amount")

	assert.True(t, hasMessage(fx.hook, "mapping progress"))
	assert.True(t, hasMessage(fx.hook, "import complete"))
}

func TestImportService_Run_IsIdempotent(t *testing.T) {
	fx := newMemoryFixture(t)
	req := projectRequest(projectWorkbook(t))

	_, err := fx.svc.Run(context.Background(), req)
	require.NoError(t, err)

	summary, err := fx.svc.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Inserted)
	assert.Equal(t, 3, summary.Updated)
	assert.Empty(t, summary.CatalogCreated)
	assert.Len(t, fx.store.RecordsOf(domain.RecordTypeProject), 3)
	assert.Len(t, fx.store.AdvancesOf(domain.RecordTypeProject), 2)
}

func TestImportService_Run_Reset(t *testing.T) {
	fx := newMemoryFixture(t)
	_, err := fx.store.Records().UpsertBatch(context.Background(), domain.RecordTypeProject,
		[]domain.Record{{SourceID: 99, Code: "SC-OLD", Name: "Old"}}, domain.ConflictOnCode)
	require.NoError(t, err)

	req := projectRequest(projectWorkbook(t))
	req.Reset = true
	summary, err := fx.svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Inserted)

	for _, r := range fx.store.RecordsOf(domain.RecordTypeProject) {
		assert.NotEqual(t, "SC-OLD", r.Code)
	}
	assert.True(t, hasMessage(fx.hook, "existing rows deleted before import"))
}

func TestImportService_Run_FailedBatchContinues(t *testing.T) {
	path := writeWorkbook(t, fixtureSheet{name: "Proyectos", rows: [][]interface{}{
		{"Seq", "Código", "Nombre del Proyecto", "Fondoempleo"},
		{1, "SC-1", "Uno", 100},
		{2, "SC-2", "Dos", 200},
	}})

	log, hook := logtest.NewNullLogger()
	store := memory.NewStore()
	records := new(mocks.MockRecordRepo)
	records.On("UpsertBatch", mock.Anything, domain.RecordTypeProject,
		mock.MatchedBy(func(rs []domain.Record) bool { return rs[0].SourceID == 1 }), domain.ConflictOnCode).
		Return(domain.UpsertResult{}, errors.New("value too long for type character varying(50)")).Once()
	records.On("UpsertBatch", mock.Anything, domain.RecordTypeProject,
		mock.MatchedBy(func(rs []domain.Record) bool { return rs[0].SourceID == 2 }), domain.ConflictOnCode).
		Return(domain.UpsertResult{Inserted: 1}, nil).Once()

	svc := service.NewImportService(store.Catalogs(), records, store.Advances(), store.Runs(),
		nil, nil, catalog.DefaultPolicies(), nil, log)

	req := projectRequest(path)
	req.BatchSize = 1
	summary, err := svc.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.RowsRead)
	assert.Equal(t, 1, summary.Inserted)
	assert.Equal(t, 1, summary.FailedPersist)
	assert.True(t, summary.Balanced())

	var failed []domain.Issue
	for _, is := range summary.Issues {
		if is.Kind == domain.IssuePersistFailed {
			failed = append(failed, is)
		}
	}
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].Row)
	assert.Equal(t, "SC-1", failed[0].Value)
	assert.Contains(t, failed[0].Message, "proyectos[0:1]")

	assert.True(t, hasMessage(hook, "record batch failed, continuing"))
	records.AssertExpectations(t)
}

func TestImportService_Run_SetupErrors(t *testing.T) {
	noSheet := writeWorkbook(t,
		fixtureSheet{name: "Resumen", rows: [][]interface{}{{"x"}}},
		fixtureSheet{name: "Notas", rows: [][]interface{}{{"y"}}},
	)
	noSeq := writeWorkbook(t, fixtureSheet{name: "Proyectos", rows: [][]interface{}{
		{"Código", "Nombre del Proyecto"},
		{"SC-1", "Uno"},
	}})

	tests := []struct {
		name    string
		req     service.ImportRequest
		wantErr error
	}{
		{"missing file", projectRequest(filepath.Join(t.TempDir(), "nope.xlsx")), domain.ErrInputNotFound},
		{"missing sheet", projectRequest(noSheet), domain.ErrSheetNotFound},
		{"missing id column", projectRequest(noSeq), domain.ErrMissingIDColumn},
		{"unknown record type", service.ImportRequest{Source: noSeq, RecordType: "grant", ConflictKey: domain.ConflictOnCode}, domain.ErrUnknownRecordType},
		{"unknown conflict key", service.ImportRequest{Source: noSeq, RecordType: domain.RecordTypeProject, ConflictKey: "name"}, domain.ErrUnknownConflictKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs := new(mocks.MockImportRunRepo)
			svc := service.NewImportService(new(mocks.MockCatalogRepo), new(mocks.MockRecordRepo),
				new(mocks.MockAdvanceRepo), runs, nil, nil, catalog.DefaultPolicies(), nil, logrus.New())

			summary, err := svc.Run(context.Background(), tt.req)
			assert.Nil(t, summary)
			assert.ErrorIs(t, err, tt.wantErr)
			runs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestImportService_Run_NamedSheetMissing(t *testing.T) {
	fx := newMemoryFixture(t)
	req := projectRequest(projectWorkbook(t))
	req.Sheet = "Cartera 2025"

	_, err := fx.svc.Run(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrSheetNotFound)
}

func TestImportService_Run_PreloadFailureMarksRunFailed(t *testing.T) {
	catalogs := new(mocks.MockCatalogRepo)
	catalogs.On("ListEntries", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	runs := new(mocks.MockImportRunRepo)
	runs.On("Create", mock.Anything, mock.AnythingOfType("*domain.ImportRun")).Return(nil)
	runs.On("Finish", mock.Anything, mock.MatchedBy(func(r *domain.ImportRun) bool {
		return r.Status == domain.RunStatusFailed && strings.Contains(r.ErrorMessage, "connection refused")
	})).Return(nil)

	svc := service.NewImportService(catalogs, new(mocks.MockRecordRepo), new(mocks.MockAdvanceRepo), runs,
		nil, nil, catalog.DefaultPolicies(), nil, logrus.New())

	_, err := svc.Run(context.Background(), projectRequest(projectWorkbook(t)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preloading catalogs")
	runs.AssertExpectations(t)
}

func TestImportService_Run_S3SourceReportAndNotify(t *testing.T) {
	local := projectWorkbook(t)
	data, err := os.ReadFile(local)
	require.NoError(t, err)

	log, _ := logtest.NewNullLogger()
	store := memory.NewStore()
	storage := new(mocks.MockObjectStorage)
	storage.On("Download", mock.Anything, "inbox", "2024/proyectos.xlsx").Return(data, nil)
	storage.On("Upload", mock.Anything, mock.MatchedBy(func(in port.UploadInput) bool {
		return in.Bucket == "reports" &&
			strings.HasPrefix(in.Key, "import-reports/proyectos_issues_") &&
			in.ContentType == "text/csv" &&
			in.Metadata["record-type"] == "project" &&
			in.Metadata["run-id"] != ""
	})).Return(&port.UploadOutput{Location: "https://reports.s3/x.csv"}, nil)

	email := new(mocks.MockEmailSender)
	email.On("SendRunSummary", mock.Anything, []string{"ops@example.com"},
		mock.MatchedBy(func(s *domain.ImportSummary) bool { return s.Inserted == 3 })).Return(nil)

	svc := service.NewImportService(store.Catalogs(), store.Records(), store.Advances(), store.Runs(),
		storage, email, catalog.DefaultPolicies(),
		&config.S3Config{Bucket: "reports", ReportsPrefix: "import-reports/"}, log)

	req := projectRequest("s3://inbox/2024/proyectos.xlsx")
	req.NotifyTo = []string{"ops@example.com"}
	summary, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Inserted)

	storage.AssertExpectations(t)
	email.AssertExpectations(t)
}

func TestImportService_Run_S3SourceWithoutStorage(t *testing.T) {
	fx := newMemoryFixture(t)
	_, err := fx.svc.Run(context.Background(), projectRequest("s3://inbox/proyectos.xlsx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "object storage is not configured")
}

func TestImportService_Run_ExpectedCountMismatch(t *testing.T) {
	fx := newMemoryFixture(t)
	req := projectRequest(projectWorkbook(t))
	req.ExpectedCount = 5

	summary, err := fx.svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, summary.MatchesExpected())
	assert.True(t, hasMessage(fx.hook, "persisted count differs from expected count"))
}

func TestImportService_GetRun(t *testing.T) {
	fx := newMemoryFixture(t)
	summary, err := fx.svc.Run(context.Background(), projectRequest(projectWorkbook(t)))
	require.NoError(t, err)

	run, err := fx.svc.GetRun(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RecordTypeProject, run.RecordType)

	_, err = fx.svc.GetRun(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestImportService_Run_RepeatedCodeUnderSeqKeyIsSkipped(t *testing.T) {
	fx := newMemoryFixture(t)
	path := writeWorkbook(t, fixtureSheet{name: "Proyectos", rows: [][]interface{}{
		{"Seq", "Código", "Nombre del Proyecto", "Fondoempleo"},
		{1, "SC-X", "Uno", 100},
		{2, "SC-2", "Dos", 100},
		{3, "SC-X", "Tres", 100},
	}})

	req := projectRequest(path)
	req.ConflictKey = domain.ConflictOnSourceID
	req.BatchSize = 100
	summary, err := fx.svc.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.RowsRead)
	assert.Equal(t, 2, summary.Inserted)
	assert.Equal(t, 1, summary.SkippedDuplicate)
	assert.Zero(t, summary.FailedPersist)
	assert.True(t, summary.Balanced())

	require.Len(t, summary.Issues, 1)
	assert.Equal(t, domain.IssueDuplicateID, summary.Issues[0].Kind)
	assert.Equal(t, 4, summary.Issues[0].Row)
	assert.Equal(t, "SC-X", summary.Issues[0].Value)
}

func axisNumberWorkbook(t *testing.T) string {
	t.Helper()
	return writeWorkbook(t,
		fixtureSheet{name: "Proyectos", rows: [][]interface{}{
			{"Seq", "Código", "Nombre del Proyecto", "Eje", "Fondoempleo"},
			{1, "SC-1", "Uno", 1, 100},
			{2, "SC-2", "Dos", 9, 100},
		}},
		fixtureSheet{name: "Ejes", rows: [][]interface{}{
			{"N°", "Descripción"},
			{1, "EMPLEABILIDAD"},
		}},
	)
}

func TestImportService_Run_UnknownAxisNumberIsReported(t *testing.T) {
	fx := newMemoryFixture(t)
	req := projectRequest(axisNumberWorkbook(t))
	req.IssuesCSV = fx.report

	summary, err := fx.svc.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Inserted)
	assert.Equal(t, 1, summary.UnknownIDs)
	assert.Zero(t, summary.UnresolvedFKs)
	require.Len(t, summary.Issues, 1)
	assert.Equal(t, domain.IssueUnknownID, summary.Issues[0].Kind)
	assert.Equal(t, 3, summary.Issues[0].Row)
	assert.Equal(t, "Eje", summary.Issues[0].Column)

	data, err := os.ReadFile(fx.report)
	require.NoError(t, err)
	assert.Contains(t, string(data), "unknown_fk_id")
}

func TestImportService_Run_PassthroughDisabledLeavesAxisUnresolved(t *testing.T) {
	policies := catalog.DefaultPolicies()
	policies[domain.DimensionAxis] = catalog.Policy{}
	fx := newMemoryFixtureWithPolicies(t, policies)

	summary, err := fx.svc.Run(context.Background(), projectRequest(axisNumberWorkbook(t)))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Inserted)
	assert.Zero(t, summary.UnknownIDs)
	assert.Equal(t, 1, summary.UnresolvedFKs)
	require.Len(t, summary.Issues, 1)
	assert.Equal(t, domain.IssueUnresolvedFK, summary.Issues[0].Kind)
}
