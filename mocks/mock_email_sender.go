package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"fondos/internal/domain"
)

// MockEmailSender is a mock implementation of port.EmailSender.
type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) SendRunSummary(ctx context.Context, to []string, summary *domain.ImportSummary) error {
	args := m.Called(ctx, to, summary)
	return args.Error(0)
}
