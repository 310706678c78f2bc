package agreement

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"hireflow/db"
)

// TestPGStoreLifecycle_Integration runs a full agreement lifecycle against the
// PostgreSQL named by DATABASE_URL and checks what was persisted.
func TestPGStoreLifecycle_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
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

	store := NewPGStore(pool)
	sources := newFakeSources()
	svc := NewService(store, sources, nil)

	appID := uuid.NewString()
	sources.add(SourceApplication, appID, 0)

	var created []string
	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		for _, id := range created {
			_, _ = pool.Exec(ctx2, `DELETE FROM agreements WHERE id = $1`, id)
		}
	})

	a, err := svc.CreateFromApplication(ctx, appID, TermsInput{PaymentType: "hourly", Amount: NumberOf(20)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	created = append(created, a.ID)

	if _, err := svc.CreateFromApplication(ctx, appID, TermsInput{Amount: NumberOf(20)}); err == nil {
		t.Fatalf("second agreement for %s was accepted", appID)
	}
	if ok, err := svc.HasAgreementForApplication(ctx, appID); err != nil || !ok {
		t.Fatalf("HasAgreementForApplication = %v, %v; want true", ok, err)
	}

	if _, err := svc.Accept(ctx, a.ID, worker); err != nil {
		t.Fatalf("accept: %v", err)
	}
	hours := 7.5
	wl, err := svc.LogWork(ctx, a.ID, worker, WorkInput{Hours: &hours, Description: "inventory count"})
	if err != nil {
		t.Fatalf("log work: %v", err)
	}
	p, err := svc.ApproveWork(ctx, wl.ID, employer, "")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if p.Amount != 150 {
		t.Fatalf("payment amount = %v, want 150", p.Amount)
	}

	var (
		status  string
		version int64
	)
	if err := pool.QueryRow(ctx, `SELECT status, version FROM agreements WHERE id = $1`, a.ID).Scan(&status, &version); err != nil {
		t.Fatalf("read row: %v", err)
	}
	if status != string(StatusActive) || version != 4 {
		t.Fatalf("row = (%s, %d), want (active, 4)", status, version)
	}

	got, err := svc.GetAgreement(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Payments) != 1 || got.WorkLogs[0].PaymentID != p.ID {
		t.Fatalf("persisted settlement mismatch: %+v", got.Payments)
	}

	owner, err := store.FindByWorkLog(ctx, wl.ID)
	if err != nil || owner != a.ID {
		t.Fatalf("FindByWorkLog = %q, %v; want %q", owner, err, a.ID)
	}
	if _, err := svc.ApproveWork(ctx, wl.ID, employer, ""); err == nil {
		t.Fatalf("second approval of %s succeeded", wl.ID)
	}

	list, err := svc.GetUserAgreements(ctx, worker.UserID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	found := false
	for _, item := range list {
		found = found || item.ID == a.ID
	}
	if !found {
		t.Fatalf("agreement %s missing from worker list", a.ID)
	}

	// a work log id already owned by one agreement cannot be reused by another
	otherApp := uuid.NewString()
	sources.add(SourceApplication, otherApp, 0)
	other, err := svc.CreateFromApplication(ctx, otherApp, TermsInput{PaymentType: "hourly", Amount: NumberOf(20)})
	if err != nil {
		t.Fatalf("create other: %v", err)
	}
	created = append(created, other.ID)
	_, err = store.Update(ctx, other.ID, func(x *Agreement) error {
		x.WorkLogs = append(x.WorkLogs, WorkLog{ID: wl.ID, Status: WorkLogPending})
		return nil
	})
	if err == nil {
		t.Fatalf("reused work log id %s across agreements", wl.ID)
	}
}
