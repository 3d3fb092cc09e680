package noop

import (
	"context"

	"github.com/sirupsen/logrus"

	"fondos/internal/domain"
	"fondos/internal/port"
)

type noopSender struct {
	log logrus.FieldLogger
}

// NewNoopSender creates an EmailSender that only logs the summary it was
// asked to deliver.
func NewNoopSender(log logrus.FieldLogger) port.EmailSender {
	return &noopSender{log: log}
}

func (s *noopSender) SendRunSummary(_ context.Context, to []string, summary *domain.ImportSummary) error {
	s.log.WithFields(logrus.Fields{
		"to":        to,
		"run_id":    summary.RunID,
		"rows_read": summary.RowsRead,
		"persisted": summary.Persisted(),
		"balanced":  summary.Balanced(),
	}).Info("[NOOP EMAIL] run summary")
	return nil
}
