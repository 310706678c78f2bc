package agreement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a referenced agreement, source record, request or work log does not exist.
	ErrNotFound = errors.New("agreement: not found")
	// ErrInvalidState is returned when the target is not in the state the operation requires.
	ErrInvalidState = errors.New("agreement: invalid state")
	// ErrValidationFailed is returned when a genuinely required field is missing or malformed.
	ErrValidationFailed = errors.New("agreement: validation failed")
	// ErrAlreadyProcessed is returned when a work log has already been approved or rejected.
	ErrAlreadyProcessed = errors.New("agreement: work log already processed")
	// ErrDuplicateAgreement signals a second agreement for the same application or offer.
	ErrDuplicateAgreement = errors.New("agreement: duplicate agreement for source")
	// ErrDuplicateWorkLog signals a work log id already owned by another agreement.
	ErrDuplicateWorkLog = errors.New("agreement: duplicate work log id")
)

// Store persists agreements as whole documents. Update is the only mutation
// path after creation and must apply fn atomically: either the mutated
// agreement is written in full or nothing is.
type Store interface {
	Create(ctx context.Context, a Agreement) (Agreement, error)
	Get(ctx context.Context, id string) (Agreement, error)
	Update(ctx context.Context, id string, fn func(*Agreement) error) (Agreement, error)
	ListByParty(ctx context.Context, userID string) ([]Agreement, error)
	FindByWorkLog(ctx context.Context, workLogID string) (string, error)
	ExistsForApplication(ctx context.Context, applicationID string) (bool, error)
	ExistsForOffer(ctx context.Context, offerID string) (bool, error)
}

// DB abstracts pgxpool.Pool for testability.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGStore keeps each agreement as a JSONB document next to the columns used
// for lookups. Updates lock the row with SELECT ... FOR UPDATE.
type PGStore struct {
	db DB
}

func NewPGStore(db DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, a Agreement) (Agreement, error) {
	if a.ID == "" {
		return Agreement{}, fmt.Errorf("agreement: missing agreement id")
	}
	a.Version = 1
	doc, err := json.Marshal(a)
	if err != nil {
		return Agreement{}, fmt.Errorf("agreement: marshal document: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Agreement{}, fmt.Errorf("agreement: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertSQL = `
INSERT INTO agreements (id, employer_id, worker_id, job_id, application_id, offer_id, status, doc, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, $11)
`
	if _, err := tx.Exec(ctx, insertSQL,
		a.ID,
		a.EmployerID,
		a.WorkerID,
		a.JobID,
		nullableString(a.ApplicationID),
		nullableString(a.OfferID),
		string(a.Status),
		doc,
		a.Version,
		a.CreatedAt,
		a.UpdatedAt,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Agreement{}, ErrDuplicateAgreement
		}
		return Agreement{}, fmt.Errorf("agreement: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Agreement{}, fmt.Errorf("agreement: commit insert: %w", err)
	}
	return a, nil
}

func (s *PGStore) Get(ctx context.Context, id string) (Agreement, error) {
	var doc []byte
	if err := s.db.QueryRow(ctx, `SELECT doc FROM agreements WHERE id = $1`, id).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agreement{}, fmt.Errorf("%w: agreement %s", ErrNotFound, id)
		}
		return Agreement{}, fmt.Errorf("agreement: get: %w", err)
	}
	return decodeDocument(doc)
}

func (s *PGStore) Update(ctx context.Context, id string, fn func(*Agreement) error) (Agreement, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Agreement{}, fmt.Errorf("agreement: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var doc []byte
	if err := tx.QueryRow(ctx, `SELECT doc FROM agreements WHERE id = $1 FOR UPDATE`, id).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agreement{}, fmt.Errorf("%w: agreement %s", ErrNotFound, id)
		}
		return Agreement{}, fmt.Errorf("agreement: lock for update: %w", err)
	}
	current, err := decodeDocument(doc)
	if err != nil {
		return Agreement{}, err
	}
	known := workLogIDs(current)

	next := current
	if err := fn(&next); err != nil {
		return Agreement{}, err
	}

	for _, wl := range next.WorkLogs {
		if _, ok := known[wl.ID]; ok {
			continue
		}
		var owner string
		err := tx.QueryRow(ctx, workLogOwnerSQL, wl.ID, id).Scan(&owner)
		switch {
		case err == nil:
			return Agreement{}, fmt.Errorf("%w: %s belongs to %s", ErrDuplicateWorkLog, wl.ID, owner)
		case !errors.Is(err, pgx.ErrNoRows):
			return Agreement{}, fmt.Errorf("agreement: check work log id: %w", err)
		}
	}

	next.Version = current.Version + 1
	body, err := json.Marshal(next)
	if err != nil {
		return Agreement{}, fmt.Errorf("agreement: marshal document: %w", err)
	}

	const updateSQL = `
UPDATE agreements
SET status = $2,
    doc = $3::jsonb,
    version = $4,
    updated_at = $5
WHERE id = $1
`
	if _, err := tx.Exec(ctx, updateSQL, id, string(next.Status), body, next.Version, next.UpdatedAt); err != nil {
		return Agreement{}, fmt.Errorf("agreement: update: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Agreement{}, fmt.Errorf("agreement: commit update: %w", err)
	}
	return next, nil
}

func (s *PGStore) ListByParty(ctx context.Context, userID string) ([]Agreement, error) {
	const query = `
SELECT doc
FROM agreements
WHERE employer_id = $1 OR worker_id = $1
ORDER BY created_at DESC
`
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("agreement: list by party: %w", err)
	}
	defer rows.Close()

	out := make([]Agreement, 0, 8)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("agreement: scan document: %w", err)
		}
		a, err := decodeDocument(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("agreement: iterate documents: %w", err)
	}
	return out, nil
}

const workLogOwnerSQL = `
SELECT id
FROM agreements
WHERE doc @> jsonb_build_object('workLogs', jsonb_build_array(jsonb_build_object('id', $1::text)))
  AND id <> $2
LIMIT 1
`

func (s *PGStore) FindByWorkLog(ctx context.Context, workLogID string) (string, error) {
	var id string
	if err := s.db.QueryRow(ctx, workLogOwnerSQL, workLogID, "").Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: work log %s", ErrNotFound, workLogID)
		}
		return "", fmt.Errorf("agreement: find by work log: %w", err)
	}
	return id, nil
}

func (s *PGStore) ExistsForApplication(ctx context.Context, applicationID string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM agreements WHERE application_id = $1)`, applicationID)
}

func (s *PGStore) ExistsForOffer(ctx context.Context, offerID string) (bool, error) {
	return s.exists(ctx, `SELECT EXISTS (SELECT 1 FROM agreements WHERE offer_id = $1)`, offerID)
}

func (s *PGStore) exists(ctx context.Context, query, id string) (bool, error) {
	var ok bool
	if err := s.db.QueryRow(ctx, query, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("agreement: check existing agreement: %w", err)
	}
	return ok, nil
}

func decodeDocument(doc []byte) (Agreement, error) {
	var a Agreement
	if err := json.Unmarshal(doc, &a); err != nil {
		return Agreement{}, fmt.Errorf("agreement: decode document: %w", err)
	}
	return a, nil
}

func workLogIDs(a Agreement) map[string]struct{} {
	ids := make(map[string]struct{}, len(a.WorkLogs))
	for _, wl := range a.WorkLogs {
		ids[wl.ID] = struct{}{}
	}
	return ids
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
