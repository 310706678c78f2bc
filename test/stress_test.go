package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"hireflow/agreement"
	"hireflow/auth"
	"hireflow/hiring"
	"hireflow/job"
	"hireflow/notify"
	"hireflow/test/actors"
	"hireflow/test/chaos"
	"hireflow/test/infra"
	"hireflow/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flSources     = flag.Int("sources", 12, "accepted applications and offers to seed")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func seedRNG(seed int64) { rand.Seed(seed) }

func TestAgreementLifecycleConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	seedRNG(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	// migrations
	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	env := mustSeed(t, ctx, pool)
	relay := notify.NewRelay(pool, agreement.NotifierFunc(func(context.Context, agreement.Event) error { return nil })).
		WithBatchSize(50)

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	// creators race over the same sources; approvers race over the same work logs
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error { return actors.Creator(ctx2, env, stop) })
		g.Go(func() error { return actors.Approver(ctx2, env, stop) })
		g.Go(func() error { return actors.Responder(ctx2, env, stop) })
	}
	g.Go(func() error { return actors.Acceptor(ctx2, env, stop) })
	g.Go(func() error { return actors.Requester(ctx2, env, stop) })
	g.Go(func() error { return actors.WorkLogger(ctx2, env, stop) })
	g.Go(func() error { return actors.OutboxWorker(ctx2, env, relay, stop) })
	go chaos.TerminateRandomBackend(ctx2, pool, infra.AppName, stop)

	// schedule oracle checks until duration reached
	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v (seed=%d)", err, seed)
		}
	}
	if name, row, err := oracles.Run(context.Background(), pool); err == nil && name != "" {
		dumpRecent(t, context.Background(), pool)
		t.Fatalf("Oracle %s failed after drain. First row: %s (seed=%d)", name, row, seed)
	}
	t.Logf("stress done: %s (seed=%d)", env.Stats, seed)
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

// mustSeed creates one employer, one worker, a job per source and the
// accepted applications and offers the actors fight over.
func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) *actors.Env {
	t.Helper()
	users := auth.NewRepository(pool)
	suffix := rand.Int63()
	employer, err := users.CreateUser(ctx, auth.CreateUserParams{
		Email: fmt.Sprintf("boss%d@example.com", suffix), FullName: "Stress Employer", Role: auth.RoleEmployer,
	})
	if err != nil {
		t.Fatalf("seed employer: %v", err)
	}
	worker, err := users.CreateUser(ctx, auth.CreateUserParams{
		Email: fmt.Sprintf("crew%d@example.com", suffix), FullName: "Stress Worker", Role: auth.RoleWorker,
	})
	if err != nil {
		t.Fatalf("seed worker: %v", err)
	}

	jobs := job.NewRepository(pool)
	hires := hiring.NewRepository(pool)
	env := &actors.Env{
		Employer: agreement.Actor{UserID: employer.ID, Name: employer.FullName, Role: agreement.RoleEmployer},
		Worker:   agreement.Actor{UserID: worker.ID, Name: worker.FullName, Role: agreement.RoleWorker},
		Stats:    &actors.Stats{},
	}
	for i := 0; i < *flSources; i++ {
		j, err := jobs.Create(ctx, job.Job{
			EmployerID: employer.ID, Title: fmt.Sprintf("Stress job %d", i), PayType: "hourly", PayAmount: 25,
		})
		if err != nil {
			t.Fatalf("seed job: %v", err)
		}
		app, err := hires.CreateApplication(ctx, hiring.Application{
			JobID: j.ID, WorkerID: worker.ID, ProposedAmount: 30, Status: hiring.StatusPending,
		})
		if err != nil {
			t.Fatalf("seed application: %v", err)
		}
		if _, err := hires.TransitionApplication(ctx, app.ID, hiring.StatusPending, hiring.StatusAccepted, nil); err != nil {
			t.Fatalf("accept application: %v", err)
		}
		env.Applications = append(env.Applications, app.ID)

		offer, err := hires.CreateOffer(ctx, hiring.Offer{
			JobID: j.ID, EmployerID: employer.ID, WorkerID: worker.ID, Amount: 40, Status: hiring.StatusPending,
		})
		if err != nil {
			t.Fatalf("seed offer: %v", err)
		}
		if _, err := hires.TransitionOffer(ctx, offer.ID, hiring.StatusPending, hiring.StatusAccepted, nil); err != nil {
			t.Fatalf("accept offer: %v", err)
		}
		env.Offers = append(env.Offers, offer.ID)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.Service = agreement.NewService(agreement.NewPGStore(pool), hiring.NewSources(hires), notify.NewOutbox(pool)).
		WithLogger(logger).
		WithDirectory(auth.NewService(users, "stress-secret"))
	return env
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"agreements", `SELECT id, status, version, application_id, offer_id, jsonb_array_length(doc->'workLogs') AS logs,
                               jsonb_array_length(doc->'payments') AS payments, updated_at
                        FROM agreements ORDER BY updated_at DESC LIMIT 50`},
		{"applications", `SELECT id, status, agreement_id, updated_at FROM applications ORDER BY updated_at DESC LIMIT 50`},
		{"offers", `SELECT id, status, agreement_id, updated_at FROM offers ORDER BY updated_at DESC LIMIT 50`},
		{"outbox", `SELECT id, topic, recipient_user_id, agreement_id, created_at, delivered_at FROM outbox ORDER BY id DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			// compact print
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
