package job

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound signals the requested job does not exist.
	ErrNotFound = errors.New("job: not found")
	// ErrInvalid signals a job that fails validation.
	ErrInvalid = errors.New("job: invalid")
)

// Reader is the read side used by the hiring records.
type Reader interface {
	GetByID(ctx context.Context, id string) (Job, error)
}

// Repository stores job postings.
type Repository interface {
	Reader
	Create(ctx context.Context, j Job) (Job, error)
	ListByEmployer(ctx context.Context, employerID string, limit int) ([]Job, error)
}

// DB is the subset of *pgxpool.Pool the repository needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGRepository is a Repository backed by PostgreSQL.
type PGRepository struct {
	db DB
}

func NewRepository(db DB) *PGRepository {
	return &PGRepository{db: db}
}

const jobColumns = `id::text, employer_id::text, title, description, pay_type, pay_amount::float8, status, created_at`

func (r *PGRepository) Create(ctx context.Context, j Job) (Job, error) {
	if err := j.validate(); err != nil {
		return Job{}, err
	}
	if j.Status == "" {
		j.Status = StatusOpen
	}

	query := `
		INSERT INTO jobs (id, employer_id, title, description, pay_type, pay_amount, status)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7)
		RETURNING ` + jobColumns

	created, err := scanJob(r.db.QueryRow(ctx, query,
		j.ID, j.EmployerID, j.Title, j.Description, j.PayType, j.PayAmount, j.Status))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Job{}, fmt.Errorf("%w: unknown employer %s", ErrInvalid, j.EmployerID)
		}
		return Job{}, fmt.Errorf("job: create: %w", err)
	}
	return created, nil
}

// GetByID fetches a job by its primary key.
func (r *PGRepository) GetByID(ctx context.Context, id string) (Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id::text = $1`

	j, err := scanJob(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, fmt.Errorf("job: query by id: %w", err)
	}
	return j, nil
}

// ListByEmployer fetches up to limit jobs of one employer, newest first.
func (r *PGRepository) ListByEmployer(ctx context.Context, employerID string, limit int) ([]Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	query := `SELECT ` + jobColumns + `
		FROM jobs
		WHERE employer_id::text = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, employerID, limit)
	if err != nil {
		return nil, fmt.Errorf("job: list: %w", err)
	}
	defer rows.Close()

	jobs := make([]Job, 0, 8)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("job: scan: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("job: iterate: %w", err)
	}
	return jobs, nil
}

func (j Job) validate() error {
	if strings.TrimSpace(j.EmployerID) == "" {
		return fmt.Errorf("%w: employer is required", ErrInvalid)
	}
	if strings.TrimSpace(j.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if j.PayAmount < 0 {
		return fmt.Errorf("%w: pay amount must not be negative", ErrInvalid)
	}
	return nil
}

func scanJob(row pgx.Row) (Job, error) {
	var j Job
	return j, row.Scan(
		&j.ID,
		&j.EmployerID,
		&j.Title,
		&j.Description,
		&j.PayType,
		&j.PayAmount,
		&j.Status,
		&j.CreatedAt,
	)
}
