package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"fondos/internal/domain"
)

type MockCatalogRepo struct {
	mock.Mock
}

func (m *MockCatalogRepo) ListEntries(ctx context.Context, dim domain.Dimension) ([]domain.CatalogEntry, error) {
	args := m.Called(ctx, dim)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CatalogEntry), args.Error(1)
}

func (m *MockCatalogRepo) InsertEntry(ctx context.Context, dim domain.Dimension, entry *domain.CatalogEntry) error {
	args := m.Called(ctx, dim, entry)
	return args.Error(0)
}
