package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"fondos/internal/domain"
)

type MockRecordRepo struct {
	mock.Mock
}

func (m *MockRecordRepo) UpsertBatch(ctx context.Context, recordType domain.RecordType, records []domain.Record, key domain.ConflictKey) (domain.UpsertResult, error) {
	args := m.Called(ctx, recordType, records, key)
	return args.Get(0).(domain.UpsertResult), args.Error(1)
}

func (m *MockRecordRepo) DeleteAll(ctx context.Context, recordType domain.RecordType) (int64, error) {
	args := m.Called(ctx, recordType)
	return args.Get(0).(int64), args.Error(1)
}
