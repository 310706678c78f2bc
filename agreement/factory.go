package agreement

import (
	"context"
	"fmt"
	"strings"
)

// SourceKind identifies the record an agreement originates from.
type SourceKind string

const (
	SourceApplication SourceKind = "application"
	SourceOffer       SourceKind = "offer"
)

// SourceStatusAccepted is the only source status an agreement may be built from.
const SourceStatusAccepted = "accepted"

// Source is the slice of an application or offer the factory needs.
type Source struct {
	Kind           SourceKind
	ID             string
	JobID          string
	JobTitle       string
	EmployerID     string
	WorkerID       string
	Status         string
	ProposedAmount float64
}

// SourceReader reads application and offer records. Lookups of an unknown id
// must return an error wrapping ErrNotFound.
type SourceReader interface {
	Source(ctx context.Context, kind SourceKind, id string) (Source, error)
	MarkAgreementCreated(ctx context.Context, kind SourceKind, id, agreementID string) error
}

// CreateFromApplication builds a pending agreement from an accepted job application.
func (s *Service) CreateFromApplication(ctx context.Context, applicationID string, terms TermsInput) (Agreement, error) {
	return s.create(ctx, SourceApplication, applicationID, terms)
}

// CreateFromOffer builds a pending agreement from an accepted direct offer.
func (s *Service) CreateFromOffer(ctx context.Context, offerID string, terms TermsInput) (Agreement, error) {
	return s.create(ctx, SourceOffer, offerID, terms)
}

func (s *Service) create(ctx context.Context, kind SourceKind, sourceID string, terms TermsInput) (Agreement, error) {
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return Agreement{}, fmt.Errorf("%w: missing %s id", ErrValidationFailed, kind)
	}
	if s.sources == nil {
		return Agreement{}, fmt.Errorf("agreement: no source reader configured")
	}

	src, err := s.sources.Source(ctx, kind, sourceID)
	if err != nil {
		return Agreement{}, err
	}
	if src.Status != SourceStatusAccepted {
		return Agreement{}, fmt.Errorf("%w: %s %s is %q, not accepted", ErrInvalidState, kind, sourceID, src.Status)
	}
	if src.EmployerID == "" || src.WorkerID == "" {
		return Agreement{}, fmt.Errorf("%w: %s %s has no employer or worker", ErrValidationFailed, kind, sourceID)
	}

	now := s.now().UTC()
	norm := s.defaults.Apply(terms, src.ProposedAmount, now)
	if norm.Payment.Amount <= 0 {
		return Agreement{}, fmt.Errorf("%w: amount must be positive", ErrValidationFailed)
	}

	a := Agreement{
		ID:                   s.idGenerator(),
		EmployerID:           src.EmployerID,
		WorkerID:             src.WorkerID,
		JobID:                src.JobID,
		JobTitle:             src.JobTitle,
		Status:               StatusPendingWorkerAcceptance,
		PaymentTerms:         norm.Payment,
		WorkTerms:            norm.Work,
		LegalTerms:           norm.Legal,
		WorkLogs:             []WorkLog{},
		Payments:             []Payment{},
		ModificationRequests: []Request{},
		TerminationRequests:  []Request{},
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if kind == SourceApplication {
		a.ApplicationID = sourceID
	} else {
		a.OfferID = sourceID
	}

	created, err := s.store.Create(ctx, a)
	if err != nil {
		return Agreement{}, err
	}
	s.logger.InfoContext(ctx, "agreement created",
		"agreement_id", created.ID,
		"source", string(kind),
		"source_id", sourceID,
		"payment_type", string(created.PaymentTerms.Type),
	)

	// The agreement row is the source of truth for uniqueness; a failed
	// back-reference is logged rather than failing the creation.
	if err := s.sources.MarkAgreementCreated(ctx, kind, sourceID, created.ID); err != nil {
		s.logger.ErrorContext(ctx, "mark source agreement_created failed",
			"agreement_id", created.ID,
			"source", string(kind),
			"source_id", sourceID,
			"error", err,
		)
	}

	s.notify(ctx, event(created, created.WorkerID, EventAgreementCreated, map[string]any{
		"source":      string(kind),
		"sourceId":    sourceID,
		"paymentType": string(created.PaymentTerms.Type),
		"amount":      created.PaymentTerms.Amount,
	}))
	return created, nil
}
