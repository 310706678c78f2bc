package agreement

import (
	"context"
	"time"
)

// EventType names a notification emitted by the service.
type EventType string

const (
	EventAgreementCreated      EventType = "agreement_created"
	EventAgreementAccepted     EventType = "agreement_accepted"
	EventAgreementRejected     EventType = "agreement_rejected"
	EventAgreementWithdrawn    EventType = "agreement_withdrawn"
	EventAgreementCompleted    EventType = "agreement_completed"
	EventModificationRequested EventType = "modification_requested"
	EventModificationRejected  EventType = "modification_rejected"
	EventAgreementModified     EventType = "agreement_modified"
	EventTerminationRequested  EventType = "termination_requested"
	EventTerminationRejected   EventType = "termination_rejected"
	EventAgreementTerminated   EventType = "agreement_terminated"
	EventWorkLogged            EventType = "work_logged"
	EventWorkApproved          EventType = "work_approved"
	EventWorkRejected          EventType = "work_rejected"
	EventPaymentProcessed      EventType = "payment_processed"
)

// Event is handed to a Notifier after a mutation has been persisted.
type Event struct {
	RecipientUserID string         `json:"recipientUserId"`
	Type            EventType      `json:"eventType"`
	AgreementID     string         `json:"agreementId"`
	Context         map[string]any `json:"context,omitempty"`
	OccurredAt      time.Time      `json:"occurredAt"`
}

// Notifier delivers events. Delivery is best effort: the service logs and
// drops any error it returns.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, e Event) error

func (f NotifierFunc) Notify(ctx context.Context, e Event) error {
	return f(ctx, e)
}

func (s *Service) notify(ctx context.Context, events ...Event) {
	if s.notifier == nil {
		return
	}
	for _, e := range events {
		if e.RecipientUserID == "" {
			continue
		}
		if e.OccurredAt.IsZero() {
			e.OccurredAt = s.now().UTC()
		}
		if err := s.notifier.Notify(ctx, e); err != nil {
			s.logger.WarnContext(ctx, "notification dropped",
				"event", string(e.Type),
				"agreement_id", e.AgreementID,
				"recipient", e.RecipientUserID,
				"error", err,
			)
		}
	}
}

func event(a Agreement, recipient string, typ EventType, fields map[string]any) Event {
	ctx := map[string]any{
		"jobTitle": a.JobTitle,
		"status":   string(a.Status),
	}
	for k, v := range fields {
		ctx[k] = v
	}
	return Event{
		RecipientUserID: recipient,
		Type:            typ,
		AgreementID:     a.ID,
		Context:         ctx,
	}
}

// counterparty returns the user on the other side of role.
func (a Agreement) counterparty(role Role) string {
	if role == RoleEmployer {
		return a.WorkerID
	}
	return a.EmployerID
}
