package hiring

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"hireflow/agreement"
	"hireflow/db"
	"hireflow/job"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestAcceptedApplicationBecomesAgreement(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mustInsert := func(query string, args ...any) string {
		var id string
		if err := pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
			t.Fatalf("seed statement failed: %v", err)
		}
		return id
	}

	stamp := time.Now().UnixNano()
	employerID := mustInsert(`INSERT INTO users (email, full_name, role) VALUES ($1, $2, 'employer') RETURNING id::text`,
		fmt.Sprintf("employer+%d@example.com", stamp), "Erin Employer")
	workerID := mustInsert(`INSERT INTO users (email, full_name, role) VALUES ($1, $2, 'worker') RETURNING id::text`,
		fmt.Sprintf("worker+%d@example.com", stamp), "Walt Worker")

	jobs := job.NewRepository(pool)
	posting, err := jobs.Create(ctx, job.Job{EmployerID: employerID, Title: "Line Cook", PayType: "hourly", PayAmount: 24})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	repo := NewRepository(pool)
	app, err := repo.CreateApplication(ctx, Application{JobID: posting.ID, WorkerID: workerID, ProposedAmount: 24})
	if err != nil {
		t.Fatalf("create application: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM agreements WHERE application_id = $1`, app.ID)
		pool.Exec(ctx2, `DELETE FROM applications WHERE id::text = $1`, app.ID)
		pool.Exec(ctx2, `DELETE FROM jobs WHERE id::text = $1`, posting.ID)
		pool.Exec(ctx2, `DELETE FROM users WHERE id::text IN ($1, $2)`, employerID, workerID)
	})

	if _, err := NewService(repo).AcceptApplication(ctx, app.ID, employerID); err != nil {
		t.Fatalf("accept application: %v", err)
	}

	svc := agreement.NewService(agreement.NewPGStore(pool), NewSources(repo), nil)
	created, err := svc.CreateFromApplication(ctx, app.ID, agreement.TermsInput{PaymentType: "hourly"})
	if err != nil {
		t.Fatalf("create agreement: %v", err)
	}
	if created.JobTitle != "Line Cook" || created.EmployerID != employerID || created.WorkerID != workerID {
		t.Fatalf("unexpected agreement parties or title: %+v", created)
	}
	if created.PaymentTerms.Amount != 24 {
		t.Fatalf("expected proposed amount 24, got %v", created.PaymentTerms.Amount)
	}

	reloaded, err := repo.GetApplication(ctx, app.ID)
	if err != nil {
		t.Fatalf("reload application: %v", err)
	}
	if reloaded.Status != StatusAgreementCreated || reloaded.AgreementID == nil || *reloaded.AgreementID != created.ID {
		t.Fatalf("application not marked: status=%s agreement=%v", reloaded.Status, reloaded.AgreementID)
	}

	exists, err := svc.HasAgreementForApplication(ctx, app.ID)
	if err != nil || !exists {
		t.Fatalf("expected agreement lookup to succeed, exists=%v err=%v", exists, err)
	}

	if _, err := svc.CreateFromApplication(ctx, app.ID, agreement.TermsInput{}); err == nil {
		t.Fatalf("expected second creation to fail")
	}
}
