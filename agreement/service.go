package agreement

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrForbidden is returned when the caller is not the party an operation belongs to.
var ErrForbidden = errors.New("agreement: actor not permitted")

// Directory resolves display names for request authors.
type Directory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

type Service struct {
	store           Store
	sources         SourceReader
	notifier        Notifier
	directory       Directory
	logger          *slog.Logger
	defaults        Defaults
	idGenerator     func() string
	now             func() time.Time
	settlementDelay time.Duration
	paymentMethod   string
}

func NewService(store Store, sources SourceReader, notifier Notifier) *Service {
	return &Service{
		store:         store,
		sources:       sources,
		notifier:      notifier,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		defaults:      DefaultTerms(),
		idGenerator:   func() string { return uuid.NewString() },
		now:           time.Now,
		paymentMethod: "bank_transfer",
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithLogger(logger *slog.Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *Service) WithDefaults(d Defaults) *Service {
	s.defaults = d
	return s
}

func (s *Service) WithDirectory(d Directory) *Service {
	s.directory = d
	return s
}

// WithSettlementDelay simulates the latency of an external payment gateway.
func (s *Service) WithSettlementDelay(d time.Duration) *Service {
	s.settlementDelay = d
	return s
}

func (s *Service) WithPaymentMethod(method string) *Service {
	if method = strings.TrimSpace(method); method != "" {
		s.paymentMethod = method
	}
	return s
}

// mutate runs fn under the store's atomic update and refuses any status edge
// the lifecycle does not allow.
func (s *Service) mutate(ctx context.Context, id string, fn func(a *Agreement, now time.Time) error) (Agreement, error) {
	if id == "" {
		return Agreement{}, fmt.Errorf("%w: missing agreement id", ErrValidationFailed)
	}
	now := s.now().UTC()
	var from Status
	updated, err := s.store.Update(ctx, id, func(a *Agreement) error {
		from = a.Status
		if err := fn(a, now); err != nil {
			return err
		}
		if a.Status != from && !CanTransition(from, a.Status) {
			return fmt.Errorf("%w: agreement %s cannot move %s -> %s", ErrInvalidState, a.ID, from, a.Status)
		}
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Agreement{}, err
	}
	if updated.Status != from {
		s.logger.InfoContext(ctx, "agreement status changed",
			"agreement_id", updated.ID,
			"from", string(from),
			"to", string(updated.Status),
			"version", updated.Version,
		)
	}
	return updated, nil
}

// roleOf resolves which party actor is on a. An explicit role must match the
// agreement; an empty one is derived from membership.
func (a Agreement) roleOf(actor Actor) (Role, error) {
	switch {
	case actor.UserID == "":
	case actor.Role == RoleEmployer && actor.UserID == a.EmployerID:
		return RoleEmployer, nil
	case actor.Role == RoleWorker && actor.UserID == a.WorkerID:
		return RoleWorker, nil
	case actor.Role == "" && actor.UserID == a.EmployerID:
		return RoleEmployer, nil
	case actor.Role == "" && actor.UserID == a.WorkerID:
		return RoleWorker, nil
	}
	return "", fmt.Errorf("%w: %q is not a party of agreement %s", ErrForbidden, actor.UserID, a.ID)
}

func (a Agreement) requireRole(actor Actor, want Role) error {
	role, err := a.roleOf(actor)
	if err != nil {
		return err
	}
	if role != want {
		return fmt.Errorf("%w: only the %s may do this on agreement %s", ErrForbidden, want, a.ID)
	}
	return nil
}

// Accept activates a pending agreement on behalf of its worker.
func (s *Service) Accept(ctx context.Context, agreementID string, actor Actor) (Agreement, error) {
	updated, err := s.mutate(ctx, agreementID, func(a *Agreement, now time.Time) error {
		if err := a.requireRole(actor, RoleWorker); err != nil {
			return err
		}
		return a.accept(s.defaults, now)
	})
	if err != nil {
		return Agreement{}, err
	}
	s.notify(ctx, event(updated, updated.EmployerID, EventAgreementAccepted, nil))
	return updated, nil
}

// Reject declines a pending agreement on behalf of its worker.
func (s *Service) Reject(ctx context.Context, agreementID string, actor Actor, reason string) (Agreement, error) {
	updated, err := s.mutate(ctx, agreementID, func(a *Agreement, now time.Time) error {
		if err := a.requireRole(actor, RoleWorker); err != nil {
			return err
		}
		return a.reject(reason, now)
	})
	if err != nil {
		return Agreement{}, err
	}
	s.notify(ctx, event(updated, updated.EmployerID, EventAgreementRejected, map[string]any{
		"reason": updated.RejectionReason,
	}))
	return updated, nil
}

// Withdraw retracts a pending agreement on behalf of its employer.
func (s *Service) Withdraw(ctx context.Context, agreementID string, actor Actor, reason string) (Agreement, error) {
	updated, err := s.mutate(ctx, agreementID, func(a *Agreement, now time.Time) error {
		if err := a.requireRole(actor, RoleEmployer); err != nil {
			return err
		}
		return a.withdraw(reason, now)
	})
	if err != nil {
		return Agreement{}, err
	}
	s.notify(ctx, event(updated, updated.WorkerID, EventAgreementWithdrawn, map[string]any{
		"reason": updated.WithdrawalReason,
	}))
	return updated, nil
}

// Complete closes an active agreement on behalf of its employer.
func (s *Service) Complete(ctx context.Context, agreementID string, actor Actor) (Agreement, error) {
	updated, err := s.mutate(ctx, agreementID, func(a *Agreement, now time.Time) error {
		if err := a.requireRole(actor, RoleEmployer); err != nil {
			return err
		}
		return a.complete(now)
	})
	if err != nil {
		return Agreement{}, err
	}
	s.notify(ctx, event(updated, updated.WorkerID, EventAgreementCompleted, map[string]any{
		"totalSettled": updated.TotalSettled(),
	}))
	return updated, nil
}

func (s *Service) GetAgreement(ctx context.Context, id string) (Agreement, error) {
	if id == "" {
		return Agreement{}, fmt.Errorf("%w: missing agreement id", ErrValidationFailed)
	}
	return s.store.Get(ctx, id)
}

// GetUserAgreements lists every agreement where userID is employer or worker, newest first.
func (s *Service) GetUserAgreements(ctx context.Context, userID string) ([]Agreement, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrValidationFailed)
	}
	return s.store.ListByParty(ctx, userID)
}

func (s *Service) HasAgreementForApplication(ctx context.Context, applicationID string) (bool, error) {
	return s.store.ExistsForApplication(ctx, applicationID)
}

func (s *Service) HasAgreementForOffer(ctx context.Context, offerID string) (bool, error) {
	return s.store.ExistsForOffer(ctx, offerID)
}

func (s *Service) displayName(ctx context.Context, actor Actor) string {
	if name := strings.TrimSpace(actor.Name); name != "" {
		return name
	}
	if s.directory == nil {
		return ""
	}
	name, err := s.directory.DisplayName(ctx, actor.UserID)
	if err != nil {
		s.logger.DebugContext(ctx, "display name lookup failed", "user_id", actor.UserID, "error", err)
		return ""
	}
	return name
}
