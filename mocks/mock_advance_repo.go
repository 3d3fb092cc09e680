package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"fondos/internal/domain"
)

type MockAdvanceRepo struct {
	mock.Mock
}

func (m *MockAdvanceRepo) UpsertBatch(ctx context.Context, advances []domain.Advance) (int, error) {
	args := m.Called(ctx, advances)
	return args.Int(0), args.Error(1)
}

func (m *MockAdvanceRepo) DeleteForRecordType(ctx context.Context, recordType domain.RecordType) (int64, error) {
	args := m.Called(ctx, recordType)
	return args.Get(0).(int64), args.Error(1)
}
