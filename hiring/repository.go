package hiring

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound     = errors.New("hiring: not found")
	ErrInvalidState = errors.New("hiring: invalid state")
	ErrDuplicate    = errors.New("hiring: duplicate application")
	ErrInvalid      = errors.New("hiring: invalid record")
)

// Repository stores applications and offers. Transition* moves a record from
// one status to the next atomically and fails with ErrInvalidState when the
// record is no longer in the expected status.
type Repository interface {
	CreateApplication(ctx context.Context, app Application) (Application, error)
	GetApplication(ctx context.Context, id string) (Application, error)
	ListApplications(ctx context.Context, filters Filters) ([]Application, error)
	TransitionApplication(ctx context.Context, id string, from, to Status, agreementID *string) (Application, error)

	CreateOffer(ctx context.Context, offer Offer) (Offer, error)
	GetOffer(ctx context.Context, id string) (Offer, error)
	ListOffers(ctx context.Context, filters Filters) ([]Offer, error)
	TransitionOffer(ctx context.Context, id string, from, to Status, agreementID *string) (Offer, error)
}

// DB is the subset of *pgxpool.Pool the repository needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type PGRepository struct {
	db DB
}

func NewRepository(db DB) *PGRepository {
	return &PGRepository{db: db}
}

const (
	applicationSelect = `
		SELECT a.id::text, a.job_id::text, j.title, j.employer_id::text, a.worker_id::text,
		       a.cover_letter, a.proposed_amount::float8, a.status, a.agreement_id, a.created_at, a.updated_at
		FROM applications a
		JOIN jobs j ON j.id = a.job_id`

	offerSelect = `
		SELECT o.id::text, COALESCE(o.job_id::text, ''), COALESCE(j.title, ''), o.employer_id::text, o.worker_id::text,
		       o.title, o.message, o.amount::float8, o.status, o.agreement_id, o.created_at, o.updated_at
		FROM offers o
		LEFT JOIN jobs j ON j.id = o.job_id`
)

func (r *PGRepository) CreateApplication(ctx context.Context, app Application) (Application, error) {
	if err := app.validate(); err != nil {
		return Application{}, err
	}
	if app.Status == "" {
		app.Status = StatusPending
	}

	const insert = `
		INSERT INTO applications (id, job_id, worker_id, cover_letter, proposed_amount, status)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6)
		RETURNING id::text`

	var id string
	err := r.db.QueryRow(ctx, insert,
		app.ID, app.JobID, app.WorkerID, app.CoverLetter, app.ProposedAmount, app.Status,
	).Scan(&id)
	if err != nil {
		return Application{}, mapWriteError("create application", err)
	}
	return r.GetApplication(ctx, id)
}

func (r *PGRepository) GetApplication(ctx context.Context, id string) (Application, error) {
	app, err := scanApplication(r.db.QueryRow(ctx, applicationSelect+` WHERE a.id::text = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Application{}, ErrNotFound
		}
		return Application{}, fmt.Errorf("hiring: get application: %w", err)
	}
	return app, nil
}

func (r *PGRepository) ListApplications(ctx context.Context, filters Filters) ([]Application, error) {
	where, args := filters.clauses("a.worker_id", "j.employer_id", "a.status")
	query := applicationSelect + where + " ORDER BY a.created_at DESC" + filters.window()

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("hiring: list applications: %w", err)
	}
	defer rows.Close()

	list := []Application{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("hiring: scan application: %w", err)
		}
		list = append(list, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hiring: iterate applications: %w", err)
	}
	return list, nil
}

func (r *PGRepository) TransitionApplication(ctx context.Context, id string, from, to Status, agreementID *string) (Application, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return Application{}, fmt.Errorf("hiring: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanApplication(tx.QueryRow(ctx, applicationSelect+` WHERE a.id::text = $1 FOR UPDATE OF a`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Application{}, ErrNotFound
		}
		return Application{}, fmt.Errorf("hiring: lock application: %w", err)
	}
	if current.Status != from {
		return Application{}, fmt.Errorf("%w: application %s is %s, not %s", ErrInvalidState, id, current.Status, from)
	}

	const update = `
		UPDATE applications
		SET status = $2, agreement_id = COALESCE($3, agreement_id), updated_at = now()
		WHERE id::text = $1`
	if _, err := tx.Exec(ctx, update, id, to, agreementID); err != nil {
		return Application{}, fmt.Errorf("hiring: update application: %w", err)
	}

	updated, err := scanApplication(tx.QueryRow(ctx, applicationSelect+` WHERE a.id::text = $1`, id))
	if err != nil {
		return Application{}, fmt.Errorf("hiring: reload application: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Application{}, fmt.Errorf("hiring: commit: %w", err)
	}
	return updated, nil
}

func (r *PGRepository) CreateOffer(ctx context.Context, offer Offer) (Offer, error) {
	if err := offer.validate(); err != nil {
		return Offer{}, err
	}
	if offer.Status == "" {
		offer.Status = StatusPending
	}

	const insert = `
		INSERT INTO offers (id, job_id, employer_id, worker_id, title, message, amount, status)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), NULLIF($2, '')::uuid, $3, $4, $5, $6, $7, $8)
		RETURNING id::text`

	var id string
	err := r.db.QueryRow(ctx, insert,
		offer.ID, offer.JobID, offer.EmployerID, offer.WorkerID, offer.Title, offer.Message, offer.Amount, offer.Status,
	).Scan(&id)
	if err != nil {
		return Offer{}, mapWriteError("create offer", err)
	}
	return r.GetOffer(ctx, id)
}

func (r *PGRepository) GetOffer(ctx context.Context, id string) (Offer, error) {
	offer, err := scanOffer(r.db.QueryRow(ctx, offerSelect+` WHERE o.id::text = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Offer{}, ErrNotFound
		}
		return Offer{}, fmt.Errorf("hiring: get offer: %w", err)
	}
	return offer, nil
}

func (r *PGRepository) ListOffers(ctx context.Context, filters Filters) ([]Offer, error) {
	where, args := filters.clauses("o.worker_id", "o.employer_id", "o.status")
	query := offerSelect + where + " ORDER BY o.created_at DESC" + filters.window()

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("hiring: list offers: %w", err)
	}
	defer rows.Close()

	list := []Offer{}
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("hiring: scan offer: %w", err)
		}
		list = append(list, offer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("hiring: iterate offers: %w", err)
	}
	return list, nil
}

func (r *PGRepository) TransitionOffer(ctx context.Context, id string, from, to Status, agreementID *string) (Offer, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return Offer{}, fmt.Errorf("hiring: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanOffer(tx.QueryRow(ctx, offerSelect+` WHERE o.id::text = $1 FOR UPDATE OF o`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Offer{}, ErrNotFound
		}
		return Offer{}, fmt.Errorf("hiring: lock offer: %w", err)
	}
	if current.Status != from {
		return Offer{}, fmt.Errorf("%w: offer %s is %s, not %s", ErrInvalidState, id, current.Status, from)
	}

	const update = `
		UPDATE offers
		SET status = $2, agreement_id = COALESCE($3, agreement_id), updated_at = now()
		WHERE id::text = $1`
	if _, err := tx.Exec(ctx, update, id, to, agreementID); err != nil {
		return Offer{}, fmt.Errorf("hiring: update offer: %w", err)
	}

	updated, err := scanOffer(tx.QueryRow(ctx, offerSelect+` WHERE o.id::text = $1`, id))
	if err != nil {
		return Offer{}, fmt.Errorf("hiring: reload offer: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Offer{}, fmt.Errorf("hiring: commit: %w", err)
	}
	return updated, nil
}

// clauses builds the WHERE clause shared by the list queries.
func (f Filters) clauses(workerCol, employerCol, statusCol string) (string, []any) {
	where := []string{"1=1"}
	args := []any{}

	if f.WorkerID != "" {
		where = append(where, fmt.Sprintf("%s::text = $%d", workerCol, len(args)+1))
		args = append(args, f.WorkerID)
	}
	if f.EmployerID != "" {
		where = append(where, fmt.Sprintf("%s::text = $%d", employerCol, len(args)+1))
		args = append(args, f.EmployerID)
	}
	if f.Status != "" {
		where = append(where, fmt.Sprintf("%s = $%d", statusCol, len(args)+1))
		args = append(args, f.Status)
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func (f Filters) normalized() Filters {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 || f.PageSize > 100 {
		f.PageSize = 20
	}
	return f
}

func (f Filters) window() string {
	f = f.normalized()
	return fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, (f.Page-1)*f.PageSize)
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrDuplicate
		case "23503":
			return fmt.Errorf("%w: %s references an unknown job or user", ErrInvalid, op)
		}
	}
	return fmt.Errorf("hiring: %s: %w", op, err)
}

func scanApplication(row pgx.Row) (Application, error) {
	var app Application
	return app, row.Scan(
		&app.ID,
		&app.JobID,
		&app.JobTitle,
		&app.EmployerID,
		&app.WorkerID,
		&app.CoverLetter,
		&app.ProposedAmount,
		&app.Status,
		&app.AgreementID,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
}

func scanOffer(row pgx.Row) (Offer, error) {
	var o Offer
	return o, row.Scan(
		&o.ID,
		&o.JobID,
		&o.JobTitle,
		&o.EmployerID,
		&o.WorkerID,
		&o.Title,
		&o.Message,
		&o.Amount,
		&o.Status,
		&o.AgreementID,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
}

func (a Application) validate() error {
	if strings.TrimSpace(a.JobID) == "" || strings.TrimSpace(a.WorkerID) == "" {
		return fmt.Errorf("%w: application needs a job and a worker", ErrInvalid)
	}
	if a.ProposedAmount < 0 {
		return fmt.Errorf("%w: proposed amount must not be negative", ErrInvalid)
	}
	return nil
}

func (o Offer) validate() error {
	if strings.TrimSpace(o.EmployerID) == "" || strings.TrimSpace(o.WorkerID) == "" {
		return fmt.Errorf("%w: offer needs an employer and a worker", ErrInvalid)
	}
	if o.Amount < 0 {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalid)
	}
	return nil
}
