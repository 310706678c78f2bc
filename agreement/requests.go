package agreement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RequestModification opens a modification round on behalf of either party.
func (s *Service) RequestModification(ctx context.Context, agreementID string, actor Actor, data ModificationData) (Request, error) {
	if err := data.validate(); err != nil {
		return Request{}, err
	}
	data.Reason = strings.TrimSpace(data.Reason)
	req := Request{
		Kind:             KindModification,
		ModificationData: &data,
	}
	return s.openRequest(ctx, agreementID, actor, req, EventModificationRequested)
}

// RequestTermination opens a termination round on behalf of either party. A reason is required.
func (s *Service) RequestTermination(ctx context.Context, agreementID string, actor Actor, data TerminationData) (Request, error) {
	reason := strings.TrimSpace(data.Reason)
	if reason == "" {
		return Request{}, fmt.Errorf("%w: termination reason is required", ErrValidationFailed)
	}
	req := Request{
		Kind:    KindTermination,
		Reason:  reason,
		Details: strings.TrimSpace(data.Details),
	}
	if data.EffectiveDate != nil && !data.EffectiveDate.IsZero() {
		d := dateOnly(*data.EffectiveDate)
		req.EffectiveDate = &d
	}
	return s.openRequest(ctx, agreementID, actor, req, EventTerminationRequested)
}

func (s *Service) openRequest(ctx context.Context, agreementID string, actor Actor, req Request, evt EventType) (Request, error) {
	name := s.displayName(ctx, actor)
	var opened Request
	updated, err := s.mutate(ctx, agreementID, func(a *Agreement, now time.Time) error {
		role, err := a.roleOf(actor)
		if err != nil {
			return err
		}
		req.ID = s.idGenerator()
		req.AgreementID = a.ID
		req.RequestedBy = actor.UserID
		req.RequestedByName = name
		req.RequestedByRole = role
		req.CreatedAt = now
		if err := a.openRequest(req); err != nil {
			return err
		}
		opened = *a.request(req.Kind, req.ID)
		return nil
	})
	if err != nil {
		return Request{}, err
	}

	fields := map[string]any{
		"requestId":       opened.ID,
		"requestedBy":     opened.RequestedBy,
		"requestedByName": opened.RequestedByName,
	}
	if opened.Kind == KindTermination {
		fields["reason"] = opened.Reason
	}
	s.notify(ctx, event(updated, updated.counterparty(opened.RequestedByRole), evt, fields))
	return opened, nil
}

// RespondToModification records one party's decision on a modification request.
// It reports false without an error when the agreement or request does not
// exist or is not in a state that accepts the response.
func (s *Service) RespondToModification(ctx context.Context, agreementID, requestID string, actor Actor, decision Decision, message string) (bool, error) {
	return s.respond(ctx, KindModification, agreementID, requestID, actor, decision, message)
}

// RespondToTermination records one party's decision on a termination request.
func (s *Service) RespondToTermination(ctx context.Context, agreementID, requestID string, actor Actor, decision Decision, message string) (bool, error) {
	return s.respond(ctx, KindTermination, agreementID, requestID, actor, decision, message)
}

func (s *Service) respond(ctx context.Context, kind Kind, agreementID, requestID string, actor Actor, decision Decision, message string) (bool, error) {
	if !decision.valid() {
		return false, fmt.Errorf("%w: response must be accepted or rejected", ErrValidationFailed)
	}
	var (
		resolved bool
		outcome  Request
	)
	updated, err := s.mutate(ctx, agreementID, func(a *Agreement, now time.Time) error {
		role, err := a.roleOf(actor)
		if err != nil {
			return err
		}
		req, done, err := a.respond(kind, requestID, role, Response{
			Decision:    decision,
			Message:     strings.TrimSpace(message),
			RespondedAt: now,
		})
		if err != nil {
			return err
		}
		resolved = done
		outcome = *req
		return nil
	})
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidState):
		s.logger.DebugContext(ctx, "consensus response refused",
			"agreement_id", agreementID,
			"request_id", requestID,
			"kind", string(kind),
			"error", err,
		)
		return false, nil
	case err != nil:
		return false, err
	}

	if resolved {
		s.logger.InfoContext(ctx, "consensus request resolved",
			"agreement_id", updated.ID,
			"request_id", outcome.ID,
			"kind", string(kind),
			"status", string(outcome.Status),
		)
		s.notify(ctx, resolutionEvents(updated, outcome)...)
	}
	return true, nil
}

func resolutionEvents(a Agreement, req Request) []Event {
	fields := map[string]any{"requestId": req.ID}
	var typ EventType
	switch {
	case req.Kind == KindModification && req.Status == RequestAccepted:
		typ = EventAgreementModified
	case req.Kind == KindModification:
		typ = EventModificationRejected
	case req.Status == RequestAccepted:
		typ = EventAgreementTerminated
		fields["reason"] = req.Reason
	default:
		typ = EventTerminationRejected
	}
	return []Event{
		event(a, a.EmployerID, typ, fields),
		event(a, a.WorkerID, typ, fields),
	}
}
