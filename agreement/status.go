package agreement

import (
	"fmt"
	"strings"
	"time"
)

// transitions lists every status edge an agreement may take.
var transitions = map[Status][]Status{
	StatusPendingWorkerAcceptance: {StatusActive, StatusRejected, StatusWithdrawn},
	StatusActive:                  {StatusModificationPending, StatusTerminationPending, StatusCompleted},
	StatusModificationPending:     {StatusActive, StatusTerminationPending},
	StatusTerminationPending:      {StatusActive, StatusModificationPending, StatusTerminated},
}

// CanTransition reports whether from -> to is a legal status edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (a *Agreement) transition(to Status) error {
	if a.Status.Terminal() {
		return fmt.Errorf("%w: agreement %s is %s", ErrInvalidState, a.ID, a.Status)
	}
	if !CanTransition(a.Status, to) {
		return fmt.Errorf("%w: agreement %s cannot move %s -> %s", ErrInvalidState, a.ID, a.Status, to)
	}
	a.Status = to
	return nil
}

func (a *Agreement) accept(d Defaults, now time.Time) error {
	if a.Status != StatusPendingWorkerAcceptance {
		return fmt.Errorf("%w: agreement %s is %s, not awaiting acceptance", ErrInvalidState, a.ID, a.Status)
	}
	d.backfill(a, now)
	if err := a.transition(StatusActive); err != nil {
		return err
	}
	a.AcceptedAt = &now
	return nil
}

func (a *Agreement) reject(reason string, now time.Time) error {
	if a.Status != StatusPendingWorkerAcceptance {
		return fmt.Errorf("%w: agreement %s is %s, not awaiting acceptance", ErrInvalidState, a.ID, a.Status)
	}
	if err := a.transition(StatusRejected); err != nil {
		return err
	}
	a.RejectionReason = strings.TrimSpace(reason)
	a.RejectedAt = &now
	return nil
}

func (a *Agreement) withdraw(reason string, now time.Time) error {
	if a.Status != StatusPendingWorkerAcceptance {
		return fmt.Errorf("%w: agreement %s is %s, only pending agreements can be withdrawn", ErrInvalidState, a.ID, a.Status)
	}
	if err := a.transition(StatusWithdrawn); err != nil {
		return err
	}
	a.WithdrawalReason = strings.TrimSpace(reason)
	a.WithdrawnAt = &now
	return nil
}

func (a *Agreement) complete(now time.Time) error {
	if a.Status != StatusActive {
		return fmt.Errorf("%w: agreement %s is %s, only active agreements can be completed", ErrInvalidState, a.ID, a.Status)
	}
	if err := a.transition(StatusCompleted); err != nil {
		return err
	}
	a.CompletedAt = &now
	return nil
}
