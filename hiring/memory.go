package hiring

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"hireflow/job"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository. Job titles and employers are
// resolved through jobs when a record is created.
type MemoryRepository struct {
	mu     sync.Mutex
	jobs   job.Reader
	apps   map[string]Application
	offers map[string]Offer
	now    func() time.Time
}

func NewMemoryRepository(jobs job.Reader) *MemoryRepository {
	return &MemoryRepository{
		jobs:   jobs,
		apps:   make(map[string]Application),
		offers: make(map[string]Offer),
		now:    time.Now,
	}
}

func (r *MemoryRepository) WithClock(now func() time.Time) *MemoryRepository {
	r.now = now
	return r
}

func (r *MemoryRepository) CreateApplication(ctx context.Context, app Application) (Application, error) {
	if err := ctx.Err(); err != nil {
		return Application{}, err
	}
	if err := app.validate(); err != nil {
		return Application{}, err
	}
	posting, err := r.lookupJob(ctx, app.JobID)
	if err != nil {
		return Application{}, err
	}
	app.JobTitle = posting.Title
	app.EmployerID = posting.EmployerID
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.Status == "" {
		app.Status = StatusPending
	}
	now := r.now().UTC()
	app.CreatedAt, app.UpdatedAt = now, now

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.apps {
		if existing.JobID == app.JobID && existing.WorkerID == app.WorkerID {
			return Application{}, ErrDuplicate
		}
	}
	r.apps[app.ID] = app
	return app, nil
}

func (r *MemoryRepository) GetApplication(ctx context.Context, id string) (Application, error) {
	if err := ctx.Err(); err != nil {
		return Application{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.apps[id]
	if !ok {
		return Application{}, ErrNotFound
	}
	return app, nil
}

func (r *MemoryRepository) ListApplications(ctx context.Context, filters Filters) ([]Application, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	list := []Application{}
	for _, app := range r.apps {
		if filters.matches(app.WorkerID, app.EmployerID, app.Status) {
			list = append(list, app)
		}
	}
	r.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return newer(list[i].CreatedAt, list[j].CreatedAt, list[i].ID, list[j].ID) })
	return page(list, filters), nil
}

func (r *MemoryRepository) TransitionApplication(ctx context.Context, id string, from, to Status, agreementID *string) (Application, error) {
	if err := ctx.Err(); err != nil {
		return Application{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.apps[id]
	if !ok {
		return Application{}, ErrNotFound
	}
	if app.Status != from {
		return Application{}, fmt.Errorf("%w: application %s is %s, not %s", ErrInvalidState, id, app.Status, from)
	}
	app.Status = to
	if agreementID != nil {
		ref := *agreementID
		app.AgreementID = &ref
	}
	app.UpdatedAt = r.now().UTC()
	r.apps[id] = app
	return app, nil
}

func (r *MemoryRepository) CreateOffer(ctx context.Context, offer Offer) (Offer, error) {
	if err := ctx.Err(); err != nil {
		return Offer{}, err
	}
	if err := offer.validate(); err != nil {
		return Offer{}, err
	}
	if offer.JobID != "" {
		posting, err := r.lookupJob(ctx, offer.JobID)
		if err != nil {
			return Offer{}, err
		}
		offer.JobTitle = posting.Title
	}
	if offer.ID == "" {
		offer.ID = uuid.NewString()
	}
	if offer.Status == "" {
		offer.Status = StatusPending
	}
	now := r.now().UTC()
	offer.CreatedAt, offer.UpdatedAt = now, now

	r.mu.Lock()
	defer r.mu.Unlock()
	r.offers[offer.ID] = offer
	return offer, nil
}

func (r *MemoryRepository) GetOffer(ctx context.Context, id string) (Offer, error) {
	if err := ctx.Err(); err != nil {
		return Offer{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	offer, ok := r.offers[id]
	if !ok {
		return Offer{}, ErrNotFound
	}
	return offer, nil
}

func (r *MemoryRepository) ListOffers(ctx context.Context, filters Filters) ([]Offer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	list := []Offer{}
	for _, offer := range r.offers {
		if filters.matches(offer.WorkerID, offer.EmployerID, offer.Status) {
			list = append(list, offer)
		}
	}
	r.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return newer(list[i].CreatedAt, list[j].CreatedAt, list[i].ID, list[j].ID) })
	return page(list, filters), nil
}

func (r *MemoryRepository) TransitionOffer(ctx context.Context, id string, from, to Status, agreementID *string) (Offer, error) {
	if err := ctx.Err(); err != nil {
		return Offer{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	offer, ok := r.offers[id]
	if !ok {
		return Offer{}, ErrNotFound
	}
	if offer.Status != from {
		return Offer{}, fmt.Errorf("%w: offer %s is %s, not %s", ErrInvalidState, id, offer.Status, from)
	}
	offer.Status = to
	if agreementID != nil {
		ref := *agreementID
		offer.AgreementID = &ref
	}
	offer.UpdatedAt = r.now().UTC()
	r.offers[id] = offer
	return offer, nil
}

func (r *MemoryRepository) lookupJob(ctx context.Context, id string) (job.Job, error) {
	if r.jobs == nil {
		return job.Job{}, fmt.Errorf("%w: no job directory configured", ErrInvalid)
	}
	posting, err := r.jobs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			return job.Job{}, fmt.Errorf("%w: unknown job %s", ErrInvalid, id)
		}
		return job.Job{}, err
	}
	return posting, nil
}

func (f Filters) matches(workerID, employerID string, status Status) bool {
	if f.WorkerID != "" && f.WorkerID != workerID {
		return false
	}
	if f.EmployerID != "" && f.EmployerID != employerID {
		return false
	}
	return f.Status == "" || f.Status == status
}

func newer(a, b time.Time, aID, bID string) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return aID < bID
}

func page[T any](list []T, f Filters) []T {
	f = f.normalized()
	start := (f.Page - 1) * f.PageSize
	if start >= len(list) {
		return []T{}
	}
	end := start + f.PageSize
	if end > len(list) {
		end = len(list)
	}
	return list[start:end]
}
