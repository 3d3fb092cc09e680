package catalog_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fondos/internal/catalog"
	"fondos/internal/domain"
	"fondos/mocks"
)

func intPtr(n int) *int { return &n }

func newResolver(t *testing.T, repo *mocks.MockCatalogRepo, policies map[domain.Dimension]catalog.Policy) (*catalog.Resolver, *logtest.Hook) {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return catalog.NewResolver(repo, policies, logger), hook
}

func preloadOnly(t *testing.T, repo *mocks.MockCatalogRepo, r *catalog.Resolver, dim domain.Dimension, entries []domain.CatalogEntry) {
	t.Helper()
	repo.On("ListEntries", mock.Anything, dim).Return(entries, nil).Once()
	require.NoError(t, r.Preload(context.Background(), dim))
}

func TestResolve_NotPreloaded(t *testing.T) {
	repo := new(mocks.MockCatalogRepo)
	r, _ := newResolver(t, repo, nil)

	_, _, err := r.Resolve(context.Background(), domain.DimensionRegion, "Piura")
	assert.ErrorIs(t, err, domain.ErrCatalogNotLoaded)
}

func TestResolve_BlankIsNullWithoutSideEffects(t *testing.T) {
	repo := new(mocks.MockCatalogRepo)
	r, _ := newResolver(t, repo, nil)
	preloadOnly(t, repo, r, domain.DimensionRegion, nil)

	id, ok, err := r.Resolve(context.Background(), domain.DimensionRegion, "   ")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, id)
	repo.AssertNotCalled(t, "InsertEntry", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolve_NumericKnownID(t *testing.T) {
	repo := new(mocks.MockCatalogRepo)
	r, _ := newResolver(t, repo, nil)
	preloadOnly(t, repo, r, domain.DimensionAxis, []domain.CatalogEntry{
		{ID: 3, Description: "EMPLEABILIDAD"},
	})

	id, ok, err := r.Resolve(context.Background(), domain.DimensionAxis, "3")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), id)

	id, ok, err = r.Resolve(context.Background(), domain.DimensionAxis, "3.0")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), id)
}

func TestResolve_NumericSourceNumber(t *testing.T) {
	repo := new(mocks.MockCatalogRepo)
	r, _ := newResolver(t, repo, nil)
	preloadOnly(t, repo, r, domain.DimensionStage, []domain.CatalogEntry{
		{ID: 10, Description: "EJECUCION", SourceNumber: intPtr(2)},
	})

	id, ok, err := r.Resolve(context.Background(), domain.DimensionStage, "2")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(10), id)
}

func TestResolve_NumericPassthrough(t *testing.T) {
	repo := new(mocks.MockCatalogRepo)
	r, _ := newResolver(t, repo, nil)
	preloadOnly(t, repo, r, domain.DimensionLine, nil)

	id, ok, err := r.Resolve(context.Background(), domain.DimensionLine, "7")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)
	repo.AssertNotCalled(t, "InsertEntry", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolve_NoAutoCreate(t *testing.T) {
	repo := new(mocks.MockCatalogRepo)
	r, _ := newResolver(t, repo, nil)
	preloadOnly(t, repo, r, domain.DimensionAxis, []domain.CatalogEntry{
		{ID: 1, Description: "Empleabilidad"},
	})

	id, ok, err := r.Resolve(context.Background(), domain.DimensionAxis, "empleabilidad")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)

	_, ok, err = r.Resolve(context.Background(), domain.DimensionAxis, "Eje inexistente")
	require.NoError(t, err)
	assert.False(t, ok)
	repo.AssertNotCalled(t, "InsertEntry", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolve_AutoCreatePersistsImmediately(t *testing.T) {
	repo := new(mocks.MockCatalogRepo)
	r, _ := newResolver(t, repo, nil)
	preloadOnly(t, repo, r, domain.DimensionRegion, []domain.CatalogEntry{
		{ID: 4, Description: "PIURA"},
		{ID: 9, Description: "LIMA"},
	})

	repo.On("InsertEntry", mock.Anything, domain.DimensionRegion, mock.MatchedBy(func(e *domain.CatalogEntry) bool {
		return e.ID == 10 && e.Description == "SAN MARTIN" && e.SourceNumber == nil
	})).Return(nil).Once()

	id, ok, err := r.Resolve(context.Background(), domain.DimensionRegion, " San  Martín")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(10), id)
	assert.Equal(t, 1, r.Created(domain.DimensionRegion))
	assert.Equal(t, int64(10), r.Max(domain.DimensionRegion))
	assert.Equal(t, 3, r.Size(domain.DimensionRegion))

	// A second spelling resolves to the entry just created without a write.
	id, ok, err = r.Resolve(context.Background(), domain.DimensionRegion, "SAN MARTIN")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(10), id)
	repo.AssertExpectations(t)
}

func TestResolve_Bijection(t *testing.T) {
	repo := new(mocks.MockCatalogRepo)
	r, _ := newResolver(t, repo, nil)
	preloadOnly(t, repo, r, domain.DimensionInstitution, nil)
	repo.On("InsertEntry", mock.Anything, domain.DimensionInstitution, mock.Anything).Return(nil)

	spellings := [][]string{
		{"Universidad Nacional de Piura", "UNIVERSIDAD NACIONAL DE PIURA", " universidad  nacional de piura "},
		{"Cámara de Comercio", "CAMARA DE COMERCIO", "cámara DE comercio"},
	}
	ids := make([]int64, 0, len(spellings))
	for _, group := range spellings {
		first, ok, err := r.Resolve(context.Background(), domain.DimensionInstitution, group[0])
		require.NoError(t, err)
		require.True(t, ok)
		for _, s := range group[1:] {
			got, ok, err := r.Resolve(context.Background(), domain.DimensionInstitution, s)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, first, got, "spelling %q", s)
		}
		ids = append(ids, first)
	}
	assert.NotEqual(t, ids[0], ids[1])
	repo.AssertNumberOfCalls(t, "InsertEntry", 2)
}

func TestResolve_MonotonicIdentifiers(t *testing.T) {
	repo := new(mocks.MockCatalogRepo)
	r, _ := newResolver(t, repo, nil)
	preloadOnly(t, repo, r, domain.DimensionModality, []domain.CatalogEntry{
		{ID: 5, Description: "PRESENCIAL"},
	})
	repo.On("InsertEntry", mock.Anything, domain.DimensionModality, mock.Anything).Return(nil)

	seen := map[int64]bool{5: true}
	last := int64(5)
	for _, name := range []string{"Virtual", "Mixta", "Semipresencial", "A distancia"} {
		id, ok, err := r.Resolve(context.Background(), domain.DimensionModality, name)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Greater(t, id, last)
		assert.False(t, seen[id], "id %d issued twice", id)
		seen[id] = true
		last = id
	}
	assert.Equal(t, 4, r.Created(domain.DimensionModality))
}

func TestResolve_InsertFailureLeavesMapUntouched(t *testing.T) {
	repo := new(mocks.MockCatalogRepo)
	r, _ := newResolver(t, repo, nil)
	preloadOnly(t, repo, r, domain.DimensionRegion, nil)

	storeErr := errors.New("unique violation")
	repo.On("InsertEntry", mock.Anything, domain.DimensionRegion, mock.Anything).Return(storeErr).Once()
	repo.On("InsertEntry", mock.Anything, domain.DimensionRegion, mock.Anything).Return(nil).Once()

	_, ok, err := r.Resolve(context.Background(), domain.DimensionRegion, "Tumbes")
	assert.ErrorIs(t, err, storeErr)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Size(domain.DimensionRegion))

	id, ok, err := r.Resolve(context.Background(), domain.DimensionRegion, "Tumbes")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)
}

func TestPreload_DuplicateDescriptionsKeepLowestID(t *testing.T) {
	repo := new(mocks.MockCatalogRepo)
	r, hook := newResolver(t, repo, nil)
	preloadOnly(t, repo, r, domain.DimensionRegion, []domain.CatalogEntry{
		{ID: 2, Description: "Áncash"},
		{ID: 7, Description: "ANCASH"},
	})

	id, ok, err := r.Resolve(context.Background(), domain.DimensionRegion, "ancash")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(2), id)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "duplicate catalog description" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestPreload_StoreError(t *testing.T) {
	repo := new(mocks.MockCatalogRepo)
	r, _ := newResolver(t, repo, nil)
	repo.On("ListEntries", mock.Anything, domain.DimensionAxis).Return(nil, errors.New("connection refused"))

	err := r.PreloadAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preloading axis catalog")
}

func TestPolicyOverride(t *testing.T) {
	repo := new(mocks.MockCatalogRepo)
	r, _ := newResolver(t, repo, map[domain.Dimension]catalog.Policy{
		domain.DimensionLine: {AutoCreate: true},
	})
	preloadOnly(t, repo, r, domain.DimensionLine, nil)
	repo.On("InsertEntry", mock.Anything, domain.DimensionLine, mock.MatchedBy(func(e *domain.CatalogEntry) bool {
		return e.ID == 1 && e.Description == "LINEA DE CAPACITACION"
	})).Return(nil).Once()

	id, ok, err := r.Resolve(context.Background(), domain.DimensionLine, "Línea  DE Capacitación ")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)
	repo.AssertExpectations(t)
}

func TestSeed(t *testing.T) {
	repo := new(mocks.MockCatalogRepo)
	r, _ := newResolver(t, repo, nil)
	preloadOnly(t, repo, r, domain.DimensionAxis, []domain.CatalogEntry{
		{ID: 1, Description: "EMPLEABILIDAD"},
	})

	repo.On("InsertEntry", mock.Anything, domain.DimensionAxis, mock.MatchedBy(func(e *domain.CatalogEntry) bool {
		return e.ID == 4 && e.Description == "EMPRENDIMIENTO" && e.SourceNumber != nil && *e.SourceNumber == 4
	})).Return(nil).Once()
	repo.On("InsertEntry", mock.Anything, domain.DimensionAxis, mock.MatchedBy(func(e *domain.CatalogEntry) bool {
		return e.ID == 5 && e.Description == "INNOVACION"
	})).Return(nil).Once()

	created, err := r.Seed(context.Background(), domain.DimensionAxis, []catalog.SeedEntry{
		{Number: intPtr(1), Description: "Empleabilidad"},
		{Number: intPtr(4), Description: "Emprendimiento"},
		{Description: "Innovación"},
		{Description: "emprendimiento"},
		{Description: "  "},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, int64(5), r.Max(domain.DimensionAxis))

	id, ok, err := r.Resolve(context.Background(), domain.DimensionAxis, "EMPRENDIMIENTO")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(4), id)
	repo.AssertExpectations(t)
}

func TestSuggest(t *testing.T) {
	repo := new(mocks.MockCatalogRepo)
	r, _ := newResolver(t, repo, nil)
	preloadOnly(t, repo, r, domain.DimensionRegion, []domain.CatalogEntry{
		{ID: 1, Description: "PIURA"},
		{ID: 2, Description: "LIMA METROPOLITANA"},
		{ID: 3, Description: "LIMA PROVINCIAS"},
	})

	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{"prefix", "Piur", "PIURA", true},
		{"closest subsequence wins", "lima", "LIMA PROVINCIAS", true},
		{"transposed letters", "Piuar", "PIURA", true},
		{"nothing close", "Cajamarca", "", false},
		{"blank", "  ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Suggest(domain.DimensionRegion, tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := r.Suggest(domain.DimensionAxis, "Piura")
	assert.False(t, ok, "dimension was never preloaded")
}

func TestKnown(t *testing.T) {
	repo := new(mocks.MockCatalogRepo)
	r, _ := newResolver(t, repo, nil)
	preloadOnly(t, repo, r, domain.DimensionAxis, []domain.CatalogEntry{
		{ID: 1, Description: "EMPLEABILIDAD"},
	})

	id, ok, err := r.Resolve(context.Background(), domain.DimensionAxis, "9")
	require.NoError(t, err)
	require.True(t, ok, "axis numbers pass through by default")

	assert.False(t, r.Known(domain.DimensionAxis, id))
	assert.True(t, r.Known(domain.DimensionAxis, 1))
	assert.False(t, r.Known(domain.DimensionRegion, 1), "dimension was never preloaded")
}
