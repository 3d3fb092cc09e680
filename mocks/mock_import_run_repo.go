package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"fondos/internal/domain"
)

type MockImportRunRepo struct {
	mock.Mock
}

func (m *MockImportRunRepo) Create(ctx context.Context, run *domain.ImportRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockImportRunRepo) Finish(ctx context.Context, run *domain.ImportRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockImportRunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ImportRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ImportRun), args.Error(1)
}
