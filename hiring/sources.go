package hiring

import (
	"context"
	"errors"
	"fmt"

	"hireflow/agreement"
)

// Sources exposes applications and offers to the agreement factory.
type Sources struct {
	repo Repository
}

func NewSources(repo Repository) *Sources {
	return &Sources{repo: repo}
}

var _ agreement.SourceReader = (*Sources)(nil)

func (s *Sources) Source(ctx context.Context, kind agreement.SourceKind, id string) (agreement.Source, error) {
	switch kind {
	case agreement.SourceApplication:
		app, err := s.repo.GetApplication(ctx, id)
		if err != nil {
			return agreement.Source{}, translate(err, kind, id)
		}
		return agreement.Source{
			Kind:           kind,
			ID:             app.ID,
			JobID:          app.JobID,
			JobTitle:       app.JobTitle,
			EmployerID:     app.EmployerID,
			WorkerID:       app.WorkerID,
			Status:         string(app.Status),
			ProposedAmount: app.ProposedAmount,
		}, nil
	case agreement.SourceOffer:
		offer, err := s.repo.GetOffer(ctx, id)
		if err != nil {
			return agreement.Source{}, translate(err, kind, id)
		}
		return agreement.Source{
			Kind:           kind,
			ID:             offer.ID,
			JobID:          offer.JobID,
			JobTitle:       offer.DisplayTitle(),
			EmployerID:     offer.EmployerID,
			WorkerID:       offer.WorkerID,
			Status:         string(offer.Status),
			ProposedAmount: offer.Amount,
		}, nil
	default:
		return agreement.Source{}, fmt.Errorf("%w: unknown source kind %q", agreement.ErrValidationFailed, kind)
	}
}

// MarkAgreementCreated moves an accepted record to agreement_created and
// stores the back reference.
func (s *Sources) MarkAgreementCreated(ctx context.Context, kind agreement.SourceKind, id, agreementID string) error {
	var err error
	switch kind {
	case agreement.SourceApplication:
		_, err = s.repo.TransitionApplication(ctx, id, StatusAccepted, StatusAgreementCreated, &agreementID)
	case agreement.SourceOffer:
		_, err = s.repo.TransitionOffer(ctx, id, StatusAccepted, StatusAgreementCreated, &agreementID)
	default:
		err = fmt.Errorf("%w: unknown source kind %q", agreement.ErrValidationFailed, kind)
	}
	if err != nil {
		return translate(err, kind, id)
	}
	return nil
}

func translate(err error, kind agreement.SourceKind, id string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fmt.Errorf("%w: %s %s", agreement.ErrNotFound, kind, id)
	case errors.Is(err, ErrInvalidState):
		return fmt.Errorf("%w: %v", agreement.ErrInvalidState, err)
	default:
		return err
	}
}
