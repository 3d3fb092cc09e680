package port

import (
	"context"

	"fondos/internal/domain"
)

// EmailSender defines the contract for operator notifications.
type EmailSender interface {
	SendRunSummary(ctx context.Context, to []string, summary *domain.ImportSummary) error
}
