package hiring

import (
	"context"
	"fmt"
)

// Service covers the acceptance step that precedes agreement creation.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// AcceptApplication is performed by the employer who owns the job.
func (s *Service) AcceptApplication(ctx context.Context, id, employerID string) (Application, error) {
	app, err := s.repo.GetApplication(ctx, id)
	if err != nil {
		return Application{}, err
	}
	if app.EmployerID != employerID {
		return Application{}, ErrNotFound
	}
	return s.repo.TransitionApplication(ctx, id, StatusPending, StatusAccepted, nil)
}

// RejectApplication is performed by the employer who owns the job.
func (s *Service) RejectApplication(ctx context.Context, id, employerID string) (Application, error) {
	app, err := s.repo.GetApplication(ctx, id)
	if err != nil {
		return Application{}, err
	}
	if app.EmployerID != employerID {
		return Application{}, ErrNotFound
	}
	return s.repo.TransitionApplication(ctx, id, StatusPending, StatusRejected, nil)
}

// RespondToOffer is performed by the addressed worker.
func (s *Service) RespondToOffer(ctx context.Context, id, workerID string, accept bool) (Offer, error) {
	offer, err := s.repo.GetOffer(ctx, id)
	if err != nil {
		return Offer{}, err
	}
	if offer.WorkerID != workerID {
		return Offer{}, ErrNotFound
	}
	to := StatusDeclined
	if accept {
		to = StatusAccepted
	}
	updated, err := s.repo.TransitionOffer(ctx, id, StatusPending, to, nil)
	if err != nil {
		return Offer{}, fmt.Errorf("hiring: respond to offer: %w", err)
	}
	return updated, nil
}

// ListApplications returns one page of applications matching filters. A
// listing must be scoped to a worker or an employer.
func (s *Service) ListApplications(ctx context.Context, filters Filters) ([]Application, error) {
	if err := filters.check(); err != nil {
		return nil, err
	}
	return s.repo.ListApplications(ctx, filters)
}

// ListOffers returns one page of offers matching filters.
func (s *Service) ListOffers(ctx context.Context, filters Filters) ([]Offer, error) {
	if err := filters.check(); err != nil {
		return nil, err
	}
	return s.repo.ListOffers(ctx, filters)
}

func (f Filters) check() error {
	if f.WorkerID == "" && f.EmployerID == "" {
		return fmt.Errorf("%w: listing needs a worker or employer", ErrInvalid)
	}
	if f.Status != "" && !f.Status.valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalid, f.Status)
	}
	return nil
}
