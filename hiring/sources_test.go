package hiring

import (
	"context"
	"errors"
	"testing"
	"time"

	"hireflow/agreement"
	"hireflow/job"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

type fixture struct {
	jobs    *job.MemoryRepository
	repo    *MemoryRepository
	sources *Sources
	svc     *Service
	posting job.Job
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	jobs := job.NewMemoryRepository()
	posting, err := jobs.Create(context.Background(), job.Job{ID: "job-1", EmployerID: "emp-1", Title: "Line Cook"})
	require.NoError(t, err)
	repo := NewMemoryRepository(jobs).WithClock(func() time.Time { return fixedNow })
	return fixture{jobs: jobs, repo: repo, sources: NewSources(repo), svc: NewService(repo), posting: posting}
}

func TestApplicationSourceCarriesJobSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	app, err := f.repo.CreateApplication(ctx, Application{ID: "app-1", JobID: "job-1", WorkerID: "wrk-1", ProposedAmount: 3200})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, app.Status)
	assert.Equal(t, "emp-1", app.EmployerID)

	src, err := f.sources.Source(ctx, agreement.SourceApplication, "app-1")
	require.NoError(t, err)
	assert.Equal(t, agreement.Source{
		Kind:           agreement.SourceApplication,
		ID:             "app-1",
		JobID:          "job-1",
		JobTitle:       "Line Cook",
		EmployerID:     "emp-1",
		WorkerID:       "wrk-1",
		Status:         "pending",
		ProposedAmount: 3200,
	}, src)
}

func TestOfferSourceFallsBackToJobTitle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.repo.CreateOffer(ctx, Offer{ID: "off-1", JobID: "job-1", EmployerID: "emp-1", WorkerID: "wrk-1", Amount: 90})
	require.NoError(t, err)
	_, err = f.repo.CreateOffer(ctx, Offer{ID: "off-2", EmployerID: "emp-1", WorkerID: "wrk-1", Title: "Weekend event crew"})
	require.NoError(t, err)

	src, err := f.sources.Source(ctx, agreement.SourceOffer, "off-1")
	require.NoError(t, err)
	assert.Equal(t, "Line Cook", src.JobTitle)
	assert.Equal(t, float64(90), src.ProposedAmount)

	src, err = f.sources.Source(ctx, agreement.SourceOffer, "off-2")
	require.NoError(t, err)
	assert.Equal(t, "Weekend event crew", src.JobTitle)
	assert.Empty(t, src.JobID)
}

func TestSourceErrorsTranslate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.sources.Source(ctx, agreement.SourceApplication, "missing")
	assert.ErrorIs(t, err, agreement.ErrNotFound)
	_, err = f.sources.Source(ctx, agreement.SourceOffer, "missing")
	assert.ErrorIs(t, err, agreement.ErrNotFound)
	_, err = f.sources.Source(ctx, agreement.SourceKind("contract"), "x")
	assert.ErrorIs(t, err, agreement.ErrValidationFailed)

	_, err = f.repo.CreateOffer(ctx, Offer{ID: "off-1", EmployerID: "emp-1", WorkerID: "wrk-1"})
	require.NoError(t, err)
	err = f.sources.MarkAgreementCreated(ctx, agreement.SourceOffer, "off-1", "ag-1")
	assert.ErrorIs(t, err, agreement.ErrInvalidState, "a pending offer cannot be marked")
}

func TestAcceptedRecordsAreMarkedOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.repo.CreateApplication(ctx, Application{ID: "app-1", JobID: "job-1", WorkerID: "wrk-1"})
	require.NoError(t, err)

	_, err = f.svc.AcceptApplication(ctx, "app-1", "emp-2")
	assert.ErrorIs(t, err, ErrNotFound, "only the job owner may accept")
	accepted, err := f.svc.AcceptApplication(ctx, "app-1", "emp-1")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, accepted.Status)

	require.NoError(t, f.sources.MarkAgreementCreated(ctx, agreement.SourceApplication, "app-1", "ag-1"))
	got, err := f.repo.GetApplication(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, StatusAgreementCreated, got.Status)
	require.NotNil(t, got.AgreementID)
	assert.Equal(t, "ag-1", *got.AgreementID)

	err = f.sources.MarkAgreementCreated(ctx, agreement.SourceApplication, "app-1", "ag-2")
	assert.ErrorIs(t, err, agreement.ErrInvalidState)
}

func TestRespondToOffer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.repo.CreateOffer(ctx, Offer{ID: "off-1", EmployerID: "emp-1", WorkerID: "wrk-1", Amount: 50})
	require.NoError(t, err)
	_, err = f.repo.CreateOffer(ctx, Offer{ID: "off-2", EmployerID: "emp-1", WorkerID: "wrk-1", Amount: 50})
	require.NoError(t, err)

	_, err = f.svc.RespondToOffer(ctx, "off-1", "wrk-9", true)
	assert.ErrorIs(t, err, ErrNotFound)

	declined, err := f.svc.RespondToOffer(ctx, "off-1", "wrk-1", false)
	require.NoError(t, err)
	assert.Equal(t, StatusDeclined, declined.Status)
	_, err = f.svc.RespondToOffer(ctx, "off-1", "wrk-1", true)
	assert.ErrorIs(t, err, ErrInvalidState)

	accepted, err := f.svc.RespondToOffer(ctx, "off-2", "wrk-1", true)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, accepted.Status)
}

func TestMemoryRepositoryRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.repo.CreateApplication(ctx, Application{JobID: "job-1", WorkerID: "wrk-1"})
	require.NoError(t, err)
	_, err = f.repo.CreateApplication(ctx, Application{JobID: "job-1", WorkerID: "wrk-1"})
	assert.ErrorIs(t, err, ErrDuplicate)
	_, err = f.repo.CreateApplication(ctx, Application{JobID: "job-404", WorkerID: "wrk-1"})
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = f.repo.CreateOffer(ctx, Offer{EmployerID: "emp-1"})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = f.repo.CreateApplication(ctx, Application{JobID: "job-1", WorkerID: "wrk-2", Status: StatusAccepted})
	require.NoError(t, err)
	list, err := f.repo.ListApplications(ctx, Filters{EmployerID: "emp-1", Status: StatusAccepted})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "wrk-2", list[0].WorkerID)

	list, err = f.repo.ListApplications(ctx, Filters{EmployerID: "emp-1", Page: 2, PageSize: 5})
	require.NoError(t, err)
	assert.Empty(t, list)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = f.repo.GetApplication(cancelled, "x")
	assert.True(t, errors.Is(err, context.Canceled))
}

// End to end through the agreement factory with in-memory collaborators.
func TestFactoryConsumesSources(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.repo.CreateApplication(ctx, Application{ID: "app-1", JobID: "job-1", WorkerID: "wrk-1", ProposedAmount: 2500, Status: StatusAccepted})
	require.NoError(t, err)

	svc := agreement.NewService(agreement.NewMemoryStore(), f.sources, nil).
		WithClock(func() time.Time { return fixedNow })
	created, err := svc.CreateFromApplication(ctx, "app-1", agreement.TermsInput{})
	require.NoError(t, err)
	assert.Equal(t, "Line Cook", created.JobTitle)
	assert.Equal(t, 2500.0, created.PaymentTerms.Amount)

	app, err := f.repo.GetApplication(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, StatusAgreementCreated, app.Status)
	require.NotNil(t, app.AgreementID)
	assert.Equal(t, created.ID, *app.AgreementID)

	_, err = svc.CreateFromApplication(ctx, "app-1", agreement.TermsInput{})
	assert.ErrorIs(t, err, agreement.ErrInvalidState)
}

func TestServiceListsScopedRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, id := range []string{"app-1", "app-2"} {
		_, err := f.repo.CreateApplication(ctx, Application{ID: id, JobID: "job-1", WorkerID: "wrk-1"})
		require.NoError(t, err)
	}
	_, err := f.svc.AcceptApplication(ctx, "app-2", "emp-1")
	require.NoError(t, err)
	_, err = f.repo.CreateOffer(ctx, Offer{ID: "off-1", EmployerID: "emp-1", WorkerID: "wrk-2", Title: "Night audit"})
	require.NoError(t, err)

	apps, err := f.svc.ListApplications(ctx, Filters{EmployerID: "emp-1"})
	require.NoError(t, err)
	assert.Len(t, apps, 2)

	apps, err = f.svc.ListApplications(ctx, Filters{WorkerID: "wrk-1", Status: StatusAccepted})
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "app-2", apps[0].ID)

	apps, err = f.svc.ListApplications(ctx, Filters{EmployerID: "emp-1", PageSize: 1, Page: 2})
	require.NoError(t, err)
	assert.Len(t, apps, 1)

	offers, err := f.svc.ListOffers(ctx, Filters{WorkerID: "wrk-1"})
	require.NoError(t, err)
	assert.Empty(t, offers)
	offers, err = f.svc.ListOffers(ctx, Filters{WorkerID: "wrk-2"})
	require.NoError(t, err)
	assert.Len(t, offers, 1)

	_, err = f.svc.ListOffers(ctx, Filters{})
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = f.svc.ListApplications(ctx, Filters{EmployerID: "emp-1", Status: "lost"})
	assert.ErrorIs(t, err, ErrInvalid)
}
