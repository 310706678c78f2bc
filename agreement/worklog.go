package agreement

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// WorkInput is a worker's submission. The unit logged must match the payment
// type: hours for hourly agreements, days for everything else.
type WorkInput struct {
	Hours           *float64   `json:"hours,omitempty"`
	Days            *float64   `json:"days,omitempty"`
	Description     string     `json:"description"`
	Date            *time.Time `json:"date,omitempty"`
	MilestoneAmount *float64   `json:"milestoneAmount,omitempty"`
}

// newWorkLog validates in against the agreement's payment type and builds a pending entry.
func (a *Agreement) newWorkLog(id string, in WorkInput, now time.Time) (WorkLog, error) {
	if a.Status != StatusActive {
		return WorkLog{}, fmt.Errorf("%w: agreement %s is %s, work can only be logged while active", ErrInvalidState, a.ID, a.Status)
	}
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return WorkLog{}, fmt.Errorf("%w: description is required", ErrValidationFailed)
	}

	wl := WorkLog{
		ID:          id,
		AgreementID: a.ID,
		WorkerID:    a.WorkerID,
		JobTitle:    a.JobTitle,
		Date:        now,
		Description: desc,
		Status:      WorkLogPending,
		CreatedAt:   now,
	}
	if in.Date != nil && !in.Date.IsZero() {
		wl.Date = in.Date.UTC()
	}

	if in.MilestoneAmount != nil {
		if *in.MilestoneAmount <= 0 || a.PaymentTerms.Type != PaymentMilestone {
			return WorkLog{}, fmt.Errorf("%w: milestone amount only applies to positive milestone payments", ErrValidationFailed)
		}
		v := *in.MilestoneAmount
		wl.MilestoneAmount = &v
	}

	if a.PaymentTerms.Type == PaymentHourly {
		if in.Hours == nil || *in.Hours <= 0 {
			return WorkLog{}, fmt.Errorf("%w: hourly agreements log positive hours", ErrValidationFailed)
		}
		v := *in.Hours
		wl.Hours = &v
		return wl, nil
	}
	switch {
	case in.Days != nil && *in.Days > 0:
		v := *in.Days
		wl.Days = &v
	case wl.MilestoneAmount != nil && in.Days == nil:
	default:
		return WorkLog{}, fmt.Errorf("%w: %s agreements log positive days", ErrValidationFailed, a.PaymentTerms.Type)
	}
	return wl, nil
}

// reviewable returns the pending work log if it may still be approved or rejected.
func (a *Agreement) reviewable(workLogID string) (*WorkLog, error) {
	wl := a.workLog(workLogID)
	if wl == nil {
		return nil, fmt.Errorf("%w: work log %s", ErrNotFound, workLogID)
	}
	if wl.Status != WorkLogPending {
		return nil, fmt.Errorf("%w: work log %s is %s", ErrAlreadyProcessed, workLogID, wl.Status)
	}
	if a.Status.Terminal() {
		return nil, fmt.Errorf("%w: agreement %s is %s", ErrInvalidState, a.ID, a.Status)
	}
	return wl, nil
}

func (a *Agreement) rejectWorkLog(workLogID, reason string, now time.Time) (WorkLog, error) {
	wl, err := a.reviewable(workLogID)
	if err != nil {
		return WorkLog{}, err
	}
	wl.Status = WorkLogRejected
	wl.RejectionReason = strings.TrimSpace(reason)
	wl.RejectedAt = &now
	return *wl, nil
}

// LogWork appends a pending work log on behalf of the agreement's worker.
func (s *Service) LogWork(ctx context.Context, agreementID string, actor Actor, in WorkInput) (WorkLog, error) {
	var logged WorkLog
	updated, err := s.mutate(ctx, agreementID, func(a *Agreement, now time.Time) error {
		if err := a.requireRole(actor, RoleWorker); err != nil {
			return err
		}
		wl, err := a.newWorkLog(s.idGenerator(), in, now)
		if err != nil {
			return err
		}
		a.WorkLogs = append(a.WorkLogs, wl)
		logged = wl
		return nil
	})
	if err != nil {
		return WorkLog{}, err
	}
	s.notify(ctx, event(updated, updated.EmployerID, EventWorkLogged, map[string]any{
		"workLogId": logged.ID,
		"units":     logged.Units(),
	}))
	return logged, nil
}

// RejectWork refuses a pending work log on behalf of the employer. No amount is computed.
func (s *Service) RejectWork(ctx context.Context, workLogID string, actor Actor, reason string) (WorkLog, error) {
	agreementID, err := s.store.FindByWorkLog(ctx, workLogID)
	if err != nil {
		return WorkLog{}, err
	}
	var rejected WorkLog
	updated, err := s.mutate(ctx, agreementID, func(a *Agreement, now time.Time) error {
		if err := a.requireRole(actor, RoleEmployer); err != nil {
			return err
		}
		wl, err := a.rejectWorkLog(workLogID, reason, now)
		if err != nil {
			return err
		}
		rejected = wl
		return nil
	})
	if err != nil {
		return WorkLog{}, err
	}
	s.notify(ctx, event(updated, updated.WorkerID, EventWorkRejected, map[string]any{
		"workLogId": rejected.ID,
		"reason":    rejected.RejectionReason,
	}))
	return rejected, nil
}
