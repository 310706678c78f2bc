package hiring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPGTransitionRefusesUnexpectedStatus(t *testing.T) {
	tx := &fakeTx{rows: []pgx.Row{applicationRow("app-1", StatusRejected)}}
	repo := NewRepository(&fakeDB{tx: tx})

	_, err := repo.TransitionApplication(context.Background(), "app-1", StatusAccepted, StatusAgreementCreated, nil)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Empty(t, tx.execs)
	assert.True(t, tx.rolled)
	require.NotEmpty(t, tx.queries)
	assert.Contains(t, tx.queries[0], "FOR UPDATE OF a")
}

func TestPGTransitionWritesAndCommits(t *testing.T) {
	tx := &fakeTx{rows: []pgx.Row{
		applicationRow("app-1", StatusAccepted),
		applicationRow("app-1", StatusAgreementCreated),
	}}
	repo := NewRepository(&fakeDB{tx: tx})
	ref := "ag-1"

	got, err := repo.TransitionApplication(context.Background(), "app-1", StatusAccepted, StatusAgreementCreated, &ref)
	require.NoError(t, err)
	assert.Equal(t, StatusAgreementCreated, got.Status)
	assert.True(t, tx.committed)
	require.Len(t, tx.execs, 1)
	assert.Equal(t, []any{"app-1", StatusAgreementCreated, &ref}, tx.execs[0])
}

func TestPGTransitionOfferNotFound(t *testing.T) {
	tx := &fakeTx{}
	_, err := NewRepository(&fakeDB{tx: tx}).TransitionOffer(context.Background(), "off-1", StatusPending, StatusAccepted, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPGCreateMapsConstraintErrors(t *testing.T) {
	db := &fakeDB{row: errRow{&pgconn.PgError{Code: "23505"}}}
	_, err := NewRepository(db).CreateApplication(context.Background(), Application{JobID: "j", WorkerID: "w"})
	assert.ErrorIs(t, err, ErrDuplicate)

	db = &fakeDB{row: errRow{&pgconn.PgError{Code: "23503"}}}
	_, err = NewRepository(db).CreateOffer(context.Background(), Offer{EmployerID: "e", WorkerID: "w"})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestFilterClauses(t *testing.T) {
	where, args := Filters{WorkerID: "w1", Status: StatusPending}.clauses("a.worker_id", "j.employer_id", "a.status")
	assert.Equal(t, " WHERE 1=1 AND a.worker_id::text = $1 AND a.status = $2", where)
	assert.Equal(t, []any{"w1", StatusPending}, args)
	assert.Equal(t, " LIMIT 20 OFFSET 0", Filters{}.window())
	assert.Equal(t, " LIMIT 10 OFFSET 20", Filters{Page: 3, PageSize: 10}.window())
}

// valuesRow assigns its values to the scan destinations in order.
type valuesRow []any

func (r valuesRow) Scan(dest ...any) error {
	if len(dest) != len(r) {
		return fmt.Errorf("valuesRow: %d destinations for %d values", len(dest), len(r))
	}
	for i, v := range r {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *float64:
			*d = v.(float64)
		case *Status:
			*d = v.(Status)
		case **string:
			*d, _ = v.(*string)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("valuesRow: unsupported destination %T", dest[i])
		}
	}
	return nil
}

func applicationRow(id string, status Status) valuesRow {
	return valuesRow{id, "job-1", "Line Cook", "emp-1", "wrk-1", "", 100.0, status, (*string)(nil), fixedNow, fixedNow}
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

type fakeDB struct {
	tx  *fakeTx
	row pgx.Row
}

func (f *fakeDB) Begin(context.Context) (pgx.Tx, error) {
	if f.tx == nil {
		return nil, errors.New("fakeDB: no transaction scripted")
	}
	return f.tx, nil
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	if f.row == nil {
		return errRow{pgx.ErrNoRows}
	}
	return f.row
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("fakeDB: query not supported")
}

// fakeTx scripts QueryRow results; methods it does not override panic
// through the nil embedded interface.
type fakeTx struct {
	pgx.Tx
	rows      []pgx.Row
	queries   []string
	execs     [][]any
	rolled    bool
	committed bool
}

func (f *fakeTx) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	f.queries = append(f.queries, strings.TrimSpace(sql))
	if len(f.rows) == 0 {
		return errRow{pgx.ErrNoRows}
	}
	row := f.rows[0]
	f.rows = f.rows[1:]
	return row
}

func (f *fakeTx) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, args)
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if !f.committed {
		f.rolled = true
	}
	return nil
}
