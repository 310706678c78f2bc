// Package notify delivers agreement events to users through an outbox table,
// Redis pub/sub and structured logs.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"hireflow/agreement"
)

// Topic is the routing key an event is stored and published under.
func Topic(e agreement.Event) string {
	return "agreement." + string(e.Type)
}

// Fanout delivers each event to every notifier and joins their errors.
type Fanout []agreement.Notifier

func (f Fanout) Notify(ctx context.Context, e agreement.Event) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes events to a structured logger.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Notify(ctx context.Context, e agreement.Event) error {
	l.logger.InfoContext(ctx, "notification",
		"topic", Topic(e),
		"recipient_user_id", e.RecipientUserID,
		"agreement_id", e.AgreementID,
	)
	return nil
}
